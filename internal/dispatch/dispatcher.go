// Package dispatch runs post-commit side effects for the stamp engine.
// Hooks execute off the request goroutine; their failures are logged and
// contained — the primary contract is "the stamp was recorded", not "all
// downstream systems are in sync yet".
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/punchcardhq/punchcard/internal/stamp"
)

// Hook is one post-commit side effect. Hooks must tolerate redundant and
// delayed invocation; the committed snapshot they receive may already be
// stale by the time they run.
type Hook struct {
	Name string
	Run  func(ctx context.Context, snap stamp.Snapshot) error
}

// Dispatcher fans a committed account snapshot out to registered hooks,
// each in its own goroutine. Hooks are mutually independent: one failing or
// panicking never affects the others or the already-returned response.
type Dispatcher struct {
	hooks   []Hook
	timeout time.Duration
	logger  *slog.Logger
}

func New(logger *slog.Logger, hooks ...Hook) *Dispatcher {
	return &Dispatcher{
		hooks:   hooks,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Register appends a hook. Call during wiring, before traffic.
func (d *Dispatcher) Register(h Hook) {
	d.hooks = append(d.hooks, h)
}

// Dispatch triggers every hook for the snapshot. It returns immediately;
// the caller's transaction has already committed.
func (d *Dispatcher) Dispatch(snap stamp.Snapshot) {
	for _, h := range d.hooks {
		go d.run(h, snap)
	}
}

func (d *Dispatcher) run(h Hook, snap stamp.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("side-effect hook panicked", "hook", h.Name, "account_id", snap.AccountID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := h.Run(ctx, snap); err != nil {
		d.logger.Error("side-effect hook failed", "hook", h.Name, "account_id", snap.AccountID, "error", err)
	}
}
