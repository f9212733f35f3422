package stamp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/punchcardhq/punchcard/internal/model"
	"github.com/punchcardhq/punchcard/internal/store"
)

const (
	// DefaultRewardTarget applies when a merchant leaves the target unset.
	DefaultRewardTarget = 10

	// MaxCount bounds stamps applied in one call. The boundary already
	// validates, but the engine guards against absurd values itself.
	MaxCount = 1000
)

// MerchantConfig supplies per-merchant configuration. Implemented by
// store.MerchantStore.
type MerchantConfig interface {
	RewardTarget(merchantID int64) (int, error)
}

// ClientMeta is request metadata recorded on the audit trail.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// StampRequest describes one stamp operation. Staff is always explicit;
// the engine never reads the acting user from ambient state.
type StampRequest struct {
	AccountID      int64
	Staff          model.Staff
	Count          int
	IdempotencyKey string
	Meta           ClientMeta
}

// RedeemRequest describes one reward redemption.
type RedeemRequest struct {
	AccountID      int64
	Staff          model.Staff
	IdempotencyKey string
	Meta           ClientMeta
}

// StampResult is the post-operation snapshot returned to the caller. For a
// replayed idempotency key IsDuplicate is true and no mutation occurred.
type StampResult struct {
	StampCount    int        `json:"stamp_count"`
	RewardBalance int        `json:"reward_balance"`
	RewardTarget  int        `json:"reward_target"`
	LastStampedAt *time.Time `json:"last_stamped_at"`
	RewardEarned  bool       `json:"reward_earned"`
	IsDuplicate   bool       `json:"is_duplicate"`
}

// Snapshot is the committed account state handed to the side-effect
// dispatcher after a successful commit.
type Snapshot struct {
	AccountID         int64
	MerchantID        int64
	CustomerID        int64
	PublicToken       string
	StampCount        int
	RewardBalance     int
	RewardTarget      int
	LastStampedAt     *time.Time
	RewardAvailableAt *time.Time
	RewardRedeemedAt  *time.Time
}

// Engine applies stamp and redeem operations to loyalty accounts inside a
// single write transaction per operation. Idempotency rides on the unique
// index over stamp_events.idempotency_key: the engine pre-checks the key,
// and a losing race at insert time rolls the whole transaction back and
// returns the winner's snapshot instead.
type Engine struct {
	db       *sql.DB
	accounts *store.AccountStore
	events   *store.StampEventStore
	ledger   *store.PointsLedgerStore
	config   MerchantConfig
	authz    *Authorizer
	dispatch func(Snapshot)
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires the engine. dispatch may be nil; when set it is invoked
// after a successful commit only, never for duplicates.
func NewEngine(db *sql.DB, accounts *store.AccountStore, events *store.StampEventStore, ledger *store.PointsLedgerStore, config MerchantConfig, authz *Authorizer, dispatch func(Snapshot), logger *slog.Logger) *Engine {
	return &Engine{
		db:       db,
		accounts: accounts,
		events:   events,
		ledger:   ledger,
		config:   config,
		authz:    authz,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}
}

// ApplyStamp adds req.Count stamps to the account, folding overshoot past
// the merchant's reward target into the reward balance.
func (e *Engine) ApplyStamp(ctx context.Context, req StampRequest) (*StampResult, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidArgument)
	}
	if req.Count > MaxCount {
		return nil, fmt.Errorf("%w: count exceeds maximum of %d", ErrInvalidArgument, MaxCount)
	}

	return e.execute(ctx, req.AccountID, req.Staff, req.IdempotencyKey, req.Meta,
		model.OpStamp, req.Count,
		func(acct *model.LoyaltyAccount, target int, now time.Time) error {
			acct.StampCount += req.Count
			// A single batch can overshoot by more than one full card.
			for acct.StampCount >= target {
				acct.StampCount -= target
				acct.RewardBalance++
			}
			t := now
			acct.LastStampedAt = &t
			return nil
		})
}

// Redeem consumes one earned reward. When the balance returns to zero the
// redeem token and reward-available timestamp are cleared.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (*StampResult, error) {
	return e.execute(ctx, req.AccountID, req.Staff, req.IdempotencyKey, req.Meta,
		model.OpRedeem, 1,
		func(acct *model.LoyaltyAccount, target int, now time.Time) error {
			if acct.RewardBalance <= 0 {
				return fmt.Errorf("%w: no reward available to redeem", ErrInvalidArgument)
			}
			acct.RewardBalance--
			t := now
			acct.RewardRedeemedAt = &t
			return nil
		})
}

// execute runs the shared transactional state machine: idempotency
// pre-check, access check, locked read-modify-write, audit insert with race
// resolution, best-effort ledger mirror, commit, post-commit dispatch.
func (e *Engine) execute(ctx context.Context, accountID int64, staff model.Staff, idempotencyKey string, meta ClientMeta, opType string, count int, mutate func(*model.LoyaltyAccount, int, time.Time) error) (*StampResult, error) {
	key := idempotencyKey
	if key == "" {
		// Callers without an explicit key never collide with each other.
		key = uuid.NewString()
	}

	// Fast path, outside the lock: the key may belong to an operation that
	// already committed.
	ev, err := e.events.GetByIdempotencyKey(key)
	if err != nil {
		return nil, storageErr("idempotency pre-check", err)
	}
	if ev != nil {
		return e.duplicateResult(ev)
	}

	acct, err := e.accounts.GetByID(accountID)
	if err != nil {
		return nil, storageErr("load account", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	if err := e.authz.Authorize(staff, acct.MerchantID); err != nil {
		return nil, err
	}

	// Resolved before the write transaction opens so the config store never
	// competes with it for a connection.
	target, err := e.rewardTarget(acct.MerchantID)
	if err != nil {
		return nil, err
	}

	res, snap, err := e.transact(ctx, accountID, staff, key, meta, opType, count, target, mutate)
	if err != nil {
		return nil, err
	}

	if !res.IsDuplicate && e.dispatch != nil {
		e.dispatch(*snap)
	}
	return res, nil
}

func (e *Engine) transact(ctx context.Context, accountID int64, staff model.Staff, key string, meta ClientMeta, opType string, count, target int, mutate func(*model.LoyaltyAccount, int, time.Time) error) (*StampResult, *Snapshot, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	acct, err := e.accounts.GetTx(tx, accountID)
	if err != nil {
		return nil, nil, storageErr("read account", err)
	}
	if acct == nil {
		return nil, nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	before := *acct
	now := e.now().UTC()

	if err := mutate(acct, target, now); err != nil {
		return nil, nil, err
	}

	if acct.RewardBalance > 0 {
		if acct.RewardAvailableAt == nil {
			t := now
			acct.RewardAvailableAt = &t
		}
		if acct.RedeemToken == nil {
			tok := uuid.NewString()
			acct.RedeemToken = &tok
		}
	} else {
		acct.RewardAvailableAt = nil
		acct.RedeemToken = nil
	}
	acct.Version++

	if err := e.accounts.UpdateTx(tx, acct); err != nil {
		return nil, nil, storageErr("write account", err)
	}

	eventID, err := e.events.InsertTx(tx, &model.StampEvent{
		AccountID:      acct.ID,
		MerchantID:     acct.MerchantID,
		StaffID:        staff.ID,
		OpType:         opType,
		Count:          count,
		IdempotencyKey: key,
		UserAgent:      meta.UserAgent,
		IP:             meta.IP,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			// A concurrent transaction won the race between the pre-check
			// and this insert. Discard every mutation and surface the
			// winner's snapshot; no caller ever observes a double stamp.
			tx.Rollback()
			winner, ferr := e.events.GetByIdempotencyKey(key)
			if ferr != nil {
				return nil, nil, storageErr("re-fetch winning event", ferr)
			}
			if winner == nil {
				return nil, nil, storageErr("re-fetch winning event", errors.New("winning event not visible after unique violation"))
			}
			res, derr := e.duplicateResult(winner)
			return res, nil, derr
		}
		return nil, nil, storageErr("write audit event", err)
	}

	// Secondary analytics ledger is best-effort: a failure here must never
	// take down the committed stamp.
	if err := e.ledger.InsertTx(tx, &model.PointsLedgerEntry{
		EventID:       eventID,
		AccountID:     acct.ID,
		StampsBefore:  before.StampCount,
		StampsAfter:   acct.StampCount,
		RewardBefore:  before.RewardBalance,
		RewardAfter:   acct.RewardBalance,
		VersionBefore: before.Version,
		VersionAfter:  acct.Version,
	}); err != nil {
		e.logger.Warn("points ledger write failed", "account_id", acct.ID, "event_id", eventID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storageErr("commit", err)
	}

	res := &StampResult{
		StampCount:    acct.StampCount,
		RewardBalance: acct.RewardBalance,
		RewardTarget:  target,
		LastStampedAt: acct.LastStampedAt,
		RewardEarned:  acct.RewardBalance > before.RewardBalance,
	}
	snap := &Snapshot{
		AccountID:         acct.ID,
		MerchantID:        acct.MerchantID,
		CustomerID:        acct.CustomerID,
		PublicToken:       acct.PublicToken,
		StampCount:        acct.StampCount,
		RewardBalance:     acct.RewardBalance,
		RewardTarget:      target,
		LastStampedAt:     acct.LastStampedAt,
		RewardAvailableAt: acct.RewardAvailableAt,
		RewardRedeemedAt:  acct.RewardRedeemedAt,
	}
	return res, snap, nil
}

// duplicateResult builds the response for an already-consumed idempotency
// key: the current state of the event's account, with no mutation applied.
// RewardEarned is recovered from the ledger mirror when available.
func (e *Engine) duplicateResult(ev *model.StampEvent) (*StampResult, error) {
	acct, err := e.accounts.GetByID(ev.AccountID)
	if err != nil {
		return nil, storageErr("load account for duplicate", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("account %d: %w", ev.AccountID, ErrNotFound)
	}

	target, err := e.rewardTarget(acct.MerchantID)
	if err != nil {
		return nil, err
	}

	rewardEarned := false
	if entry, err := e.ledger.GetByEventID(ev.ID); err == nil && entry != nil {
		rewardEarned = entry.RewardAfter > entry.RewardBefore
	}

	return &StampResult{
		StampCount:    acct.StampCount,
		RewardBalance: acct.RewardBalance,
		RewardTarget:  target,
		LastStampedAt: acct.LastStampedAt,
		RewardEarned:  rewardEarned,
		IsDuplicate:   true,
	}, nil
}

func (e *Engine) rewardTarget(merchantID int64) (int, error) {
	target, err := e.config.RewardTarget(merchantID)
	if err != nil {
		return 0, storageErr("reward target lookup", err)
	}
	if target <= 0 {
		target = DefaultRewardTarget
	}
	return target, nil
}
