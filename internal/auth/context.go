package auth

import (
	"context"

	"github.com/punchcardhq/punchcard/internal/model"
)

type contextKey struct{}

// AuthContext carries the authenticated staff member through the request.
// Handlers pass Staff to the engine explicitly; the engine itself never
// reads from ambient context.
type AuthContext struct {
	Staff     model.Staff
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func StaffFromContext(ctx context.Context) (model.Staff, bool) {
	ac, ok := FromContext(ctx)
	return ac.Staff, ok
}
