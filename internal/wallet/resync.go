// Package wallet keeps Apple Wallet passes in sync with account state.
// Pass file generation and signing live in an external service; this
// package only queues resync requests toward it. Resync is idempotent —
// the pass service recomputes pass contents from current account state, so
// redundant or delayed execution causes no harm.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// PassRefresher regenerates and pushes the wallet pass for an account.
type PassRefresher interface {
	Refresh(ctx context.Context, accountID int64) error
}

const jobBuffer = 64

// Queue decouples pass resyncs from the stamping request path. Enqueue
// never blocks; a worker goroutine drains jobs and retries each a bounded
// number of times with exponential backoff.
type Queue struct {
	jobs      chan int64
	refresher PassRefresher
	logger    *slog.Logger

	// newBackoff builds a fresh backoff per job; go-retry backoffs are
	// stateful and cannot be shared across attempts.
	newBackoff func() retry.Backoff

	mu        sync.Mutex
	closed    bool
	started   bool
	startOnce sync.Once
	done      chan struct{}
}

func NewQueue(refresher PassRefresher, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:      make(chan int64, jobBuffer),
		refresher: refresher,
		logger:    logger,
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(10*time.Second))
		},
		done: make(chan struct{}),
	}
}

// Start launches the worker. Safe to call once; jobs enqueued before Start
// wait in the buffer.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.mu.Lock()
		q.started = true
		q.mu.Unlock()
		go q.worker(ctx)
	})
}

// Stop closes the queue and waits for the worker to drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	started := q.started
	q.mu.Unlock()
	if started {
		<-q.done
	}
}

// Enqueue registers an account for pass resync. When the buffer is full the
// job is dropped with an error; the pass catches up on the next operation.
func (q *Queue) Enqueue(accountID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- accountID:
		return nil
	default:
		return fmt.Errorf("wallet resync queue full, dropping account %d", accountID)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer close(q.done)

	for accountID := range q.jobs {
		if err := q.resync(ctx, accountID); err != nil {
			q.logger.Error("wallet resync gave up", "account_id", accountID, "error", err)
		}
	}
}

func (q *Queue) resync(ctx context.Context, accountID int64) error {
	return retry.Do(ctx, q.newBackoff(), func(ctx context.Context) error {
		if err := q.refresher.Refresh(ctx, accountID); err != nil {
			q.logger.Warn("wallet resync attempt failed", "account_id", accountID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// WebhookRefresher notifies an external pass service over HTTP.
type WebhookRefresher struct {
	URL    string
	Client *http.Client
}

func NewWebhookRefresher(url string) *WebhookRefresher {
	return &WebhookRefresher{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *WebhookRefresher) Refresh(ctx context.Context, accountID int64) error {
	body, err := json.Marshal(map[string]int64{"account_id": accountID})
	if err != nil {
		return fmt.Errorf("marshal resync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build resync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post resync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("pass service returned %d", resp.StatusCode)
	}
	return nil
}

// NoopRefresher is used when no pass service is configured.
type NoopRefresher struct {
	Logger *slog.Logger
}

func (r *NoopRefresher) Refresh(ctx context.Context, accountID int64) error {
	if r.Logger != nil {
		r.Logger.Debug("wallet resync skipped, no pass service configured", "account_id", accountID)
	}
	return nil
}

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("wallet resync queue closed")
