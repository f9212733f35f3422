package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/punchcardhq/punchcard/internal/auth"
	"github.com/punchcardhq/punchcard/internal/middleware"
	"github.com/punchcardhq/punchcard/internal/stamp"
	"github.com/punchcardhq/punchcard/internal/store"
)

type StampHandler struct {
	engine   *stamp.Engine
	accounts *store.AccountStore
	logger   *slog.Logger
}

func NewStampHandler(engine *stamp.Engine, accounts *store.AccountStore, logger *slog.Logger) *StampHandler {
	return &StampHandler{engine: engine, accounts: accounts, logger: logger}
}

type stampRequest struct {
	Token string `json:"token"`
	// Pointer so an omitted count (defaults to 1) is distinguishable from
	// an explicit zero, which is rejected.
	Count          *int   `json:"count"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Stamp handles POST /api/stamp. The acting staff member comes from the
// authenticated session and is passed to the engine explicitly.
func (h *StampHandler) Stamp(w http.ResponseWriter, r *http.Request) {
	staff, ok := auth.StaffFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req stampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "invalid JSON")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "token is required")
		return
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	if count <= 0 {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "count must be positive")
		return
	}

	acct, err := h.accounts.GetByPublicToken(req.Token)
	if err != nil {
		h.logger.Error("account lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "storage_error", "account lookup failed")
		return
	}
	if acct == nil {
		errorJSON(w, http.StatusNotFound, "not_found", "account not found")
		return
	}

	result, err := h.engine.ApplyStamp(r.Context(), stamp.StampRequest{
		AccountID:      acct.ID,
		Staff:          staff,
		Count:          count,
		IdempotencyKey: req.IdempotencyKey,
		Meta: stamp.ClientMeta{
			UserAgent: r.UserAgent(),
			IP:        middleware.RealIP(r),
		},
	})
	if err != nil {
		if stamp.IsStorageError(err) {
			h.logger.Error("stamp failed", "account_id", acct.ID, "staff_id", staff.ID, "error", err)
		}
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type redeemRequest struct {
	Token          string `json:"token"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Redeem handles POST /api/redeem, consuming one earned reward.
func (h *StampHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	staff, ok := auth.StaffFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "invalid JSON")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", "token is required")
		return
	}

	acct, err := h.accounts.GetByPublicToken(req.Token)
	if err != nil {
		h.logger.Error("account lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "storage_error", "account lookup failed")
		return
	}
	if acct == nil {
		errorJSON(w, http.StatusNotFound, "not_found", "account not found")
		return
	}

	result, err := h.engine.Redeem(r.Context(), stamp.RedeemRequest{
		AccountID:      acct.ID,
		Staff:          staff,
		IdempotencyKey: req.IdempotencyKey,
		Meta: stamp.ClientMeta{
			UserAgent: r.UserAgent(),
			IP:        middleware.RealIP(r),
		},
	})
	if err != nil {
		if stamp.IsStorageError(err) {
			h.logger.Error("redeem failed", "account_id", acct.ID, "staff_id", staff.ID, "error", err)
		}
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
