package stamp_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchcardhq/punchcard/internal/database"
	"github.com/punchcardhq/punchcard/internal/model"
	"github.com/punchcardhq/punchcard/internal/stamp"
	"github.com/punchcardhq/punchcard/internal/store"
)

type fixture struct {
	db       *sql.DB
	engine   *stamp.Engine
	accounts *store.AccountStore
	events   *store.StampEventStore
	staff    model.Staff
	account  *model.LoyaltyAccount
	merchant *model.Merchant

	mu         sync.Mutex
	dispatched []stamp.Snapshot
}

func (f *fixture) dispatch(snap stamp.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, snap)
}

func (f *fixture) snapshots() []stamp.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stamp.Snapshot, len(f.dispatched))
	copy(out, f.dispatched)
	return out
}

// newFixture builds an engine over an in-memory database with one merchant,
// one customer account, and one staff member who works for the merchant.
func newFixture(t *testing.T, rewardTarget int) *fixture {
	t.Helper()
	return newFixtureAt(t, ":memory:", rewardTarget)
}

// newFileFixture is newFixture over a file-backed database, so tests run
// against the real connection pool and real SQLite lock contention instead
// of the single pinned connection ":memory:" gets.
func newFileFixture(t *testing.T, rewardTarget int) *fixture {
	t.Helper()
	return newFixtureAt(t, filepath.Join(t.TempDir(), "engine.db"), rewardTarget)
}

func newFixtureAt(t *testing.T, dbPath string, rewardTarget int) *fixture {
	t.Helper()

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	merchants := store.NewMerchantStore(db)
	customers := store.NewCustomerStore(db)
	accounts := store.NewAccountStore(db)
	events := store.NewStampEventStore(db)
	ledger := store.NewPointsLedgerStore(db)
	staffStore := store.NewStaffStore(db)

	merchant, err := merchants.Create("Bluebird Coffee", rewardTarget, "Free drink")
	require.NoError(t, err)
	customer, err := customers.Create("Ada", "ada@example.com")
	require.NoError(t, err)
	account, err := accounts.Create(merchant.ID, customer.ID)
	require.NoError(t, err)

	staff, err := staffStore.Create("barista@example.com", "Sam", "pw", false)
	require.NoError(t, err)
	require.NoError(t, staffStore.AddToMerchant(staff.ID, merchant.ID))

	f := &fixture{
		db:       db,
		accounts: accounts,
		events:   events,
		staff:    *staff,
		account:  account,
		merchant: merchant,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = stamp.NewEngine(db, accounts, events, ledger, merchants, stamp.NewAuthorizer(staffStore), f.dispatch, logger)
	return f
}

func (f *fixture) stamp(t *testing.T, count int, key string) (*stamp.StampResult, error) {
	t.Helper()
	return f.engine.ApplyStamp(context.Background(), stamp.StampRequest{
		AccountID:      f.account.ID,
		Staff:          f.staff,
		Count:          count,
		IdempotencyKey: key,
	})
}

func TestApplyStamp_Increment(t *testing.T) {
	f := newFixture(t, 10)

	res, err := f.stamp(t, 1, "k-inc")
	require.NoError(t, err)

	assert.Equal(t, 1, res.StampCount)
	assert.Equal(t, 0, res.RewardBalance)
	assert.Equal(t, 10, res.RewardTarget)
	assert.False(t, res.RewardEarned)
	assert.False(t, res.IsDuplicate)
	assert.NotNil(t, res.LastStampedAt)

	acct, err := f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, f.account.Version+1, acct.Version)
	assert.Nil(t, acct.RedeemToken)
	assert.Nil(t, acct.RewardAvailableAt)
}

func TestApplyStamp_Validation(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.stamp(t, 0, "")
	assert.ErrorIs(t, err, stamp.ErrInvalidArgument)

	_, err = f.stamp(t, -3, "")
	assert.ErrorIs(t, err, stamp.ErrInvalidArgument)

	_, err = f.stamp(t, stamp.MaxCount+1, "")
	assert.ErrorIs(t, err, stamp.ErrInvalidArgument)

	// Nothing committed.
	n, err := f.events.CountByAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApplyStamp_AccountNotFound(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.engine.ApplyStamp(context.Background(), stamp.StampRequest{
		AccountID: 9999,
		Staff:     f.staff,
		Count:     1,
	})
	assert.ErrorIs(t, err, stamp.ErrNotFound)
}

func TestApplyStamp_AccessControl(t *testing.T) {
	f := newFixture(t, 10)

	outsider := model.Staff{ID: f.staff.ID + 100, Email: "other@example.com"}
	_, err := f.engine.ApplyStamp(context.Background(), stamp.StampRequest{
		AccountID: f.account.ID,
		Staff:     outsider,
		Count:     1,
	})
	assert.ErrorIs(t, err, stamp.ErrForbidden)

	// Super-admin bypasses merchant membership.
	admin := model.Staff{ID: outsider.ID, SuperAdmin: true}
	res, err := f.engine.ApplyStamp(context.Background(), stamp.StampRequest{
		AccountID: f.account.ID,
		Staff:     admin,
		Count:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StampCount)
}

func TestApplyStamp_RolloverFoldsOvershoot(t *testing.T) {
	f := newFixture(t, 10)

	res, err := f.stamp(t, 8, "k-seed")
	require.NoError(t, err)
	require.Equal(t, 8, res.StampCount)
	require.Equal(t, 0, res.RewardBalance)

	// 8 + 25 = 33 against a target of 10: three full cards fold into the
	// reward balance, three stamps remain.
	res, err = f.stamp(t, 25, "k-batch")
	require.NoError(t, err)
	assert.Equal(t, 3, res.StampCount)
	assert.Equal(t, 3, res.RewardBalance)
	assert.True(t, res.RewardEarned)
}

func TestApplyStamp_DefaultRewardTarget(t *testing.T) {
	// Merchant with no configured target falls back to the global default.
	f := newFixture(t, 0)

	res, err := f.stamp(t, stamp.DefaultRewardTarget, "k-full")
	require.NoError(t, err)
	assert.Equal(t, stamp.DefaultRewardTarget, res.RewardTarget)
	assert.Equal(t, 0, res.StampCount)
	assert.Equal(t, 1, res.RewardBalance)
	assert.True(t, res.RewardEarned)
}

func TestApplyStamp_ScenarioNinthThenTenth(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.stamp(t, 9, "k-seed")
	require.NoError(t, err)

	res, err := f.stamp(t, 1, "k1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.StampCount)
	assert.Equal(t, 1, res.RewardBalance)
	assert.True(t, res.RewardEarned)
	assert.False(t, res.IsDuplicate)

	// Identical replay: same result, duplicate flag set, no state change.
	replay, err := f.stamp(t, 1, "k1")
	require.NoError(t, err)
	assert.Equal(t, res.StampCount, replay.StampCount)
	assert.Equal(t, res.RewardBalance, replay.RewardBalance)
	assert.True(t, replay.RewardEarned)
	assert.True(t, replay.IsDuplicate)

	n, err := f.events.CountByAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApplyStamp_TokenLifecycle(t *testing.T) {
	f := newFixture(t, 10)

	res, err := f.stamp(t, 10, "k-earn")
	require.NoError(t, err)
	require.Equal(t, 1, res.RewardBalance)

	acct, err := f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	require.NotNil(t, acct.RedeemToken)
	require.NotNil(t, acct.RewardAvailableAt)
	firstToken := *acct.RedeemToken

	// Earning a second reward keeps the existing token.
	_, err = f.stamp(t, 10, "k-earn-2")
	require.NoError(t, err)
	acct, err = f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	require.NotNil(t, acct.RedeemToken)
	assert.Equal(t, firstToken, *acct.RedeemToken)

	// Redeeming down to zero clears both token and availability timestamp.
	for i := 0; i < 2; i++ {
		_, err = f.engine.Redeem(context.Background(), stamp.RedeemRequest{
			AccountID:      f.account.ID,
			Staff:          f.staff,
			IdempotencyKey: fmt.Sprintf("k-redeem-%d", i),
		})
		require.NoError(t, err)
	}

	acct, err = f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, acct.RewardBalance)
	assert.Nil(t, acct.RedeemToken)
	assert.Nil(t, acct.RewardAvailableAt)
	assert.NotNil(t, acct.RewardRedeemedAt)
}

func TestRedeem_NoRewardAvailable(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.engine.Redeem(context.Background(), stamp.RedeemRequest{
		AccountID: f.account.ID,
		Staff:     f.staff,
	})
	assert.ErrorIs(t, err, stamp.ErrInvalidArgument)
}

func TestApplyStamp_ConcurrentSameKey(t *testing.T) {
	runConcurrentSameKey(t, newFixture(t, 10))
}

func TestApplyStamp_ConcurrentSameKeyFileBacked(t *testing.T) {
	runConcurrentSameKey(t, newFileFixture(t, 10))
}

func runConcurrentSameKey(t *testing.T, f *fixture) {
	t.Helper()
	const n = 8

	results := make([]*stamp.StampResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.stamp(t, 1, "k-race")
		}(i)
	}
	wg.Wait()

	committers := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i].StampCount)
		assert.Equal(t, 0, results[i].RewardBalance)
		if !results[i].IsDuplicate {
			committers++
		}
	}
	assert.Equal(t, 1, committers, "exactly one call should commit")

	n2, err := f.events.CountByAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n2, "exactly one audit event for the shared key")

	acct, err := f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, acct.StampCount)
	assert.Equal(t, f.account.Version+1, acct.Version)

	// Side effects fire once, for the committer only.
	assert.Len(t, f.snapshots(), 1)
}

func TestApplyStamp_ConcurrentDistinctKeys(t *testing.T) {
	runConcurrentDistinctKeys(t, newFixture(t, 10))
}

func TestApplyStamp_ConcurrentDistinctKeysFileBacked(t *testing.T) {
	runConcurrentDistinctKeys(t, newFileFixture(t, 10))
}

func runConcurrentDistinctKeys(t *testing.T, f *fixture) {
	t.Helper()
	const m = 25

	var wg sync.WaitGroup
	errs := make([]error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.stamp(t, 1, fmt.Sprintf("k-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < m; i++ {
		require.NoError(t, errs[i])
	}

	// 25 single stamps at target 10: two full cards, five stamps left.
	acct, err := f.accounts.GetByID(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, acct.StampCount)
	assert.Equal(t, 2, acct.RewardBalance)
	assert.Equal(t, f.account.Version+m, acct.Version, "version advances once per committed call")

	n, err := f.events.CountByAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, m, n)

	assert.Len(t, f.snapshots(), m)
}

func TestApplyStamp_BlankKeyNeverCollides(t *testing.T) {
	f := newFixture(t, 10)

	r1, err := f.stamp(t, 1, "")
	require.NoError(t, err)
	r2, err := f.stamp(t, 1, "")
	require.NoError(t, err)

	assert.False(t, r1.IsDuplicate)
	assert.False(t, r2.IsDuplicate)
	assert.Equal(t, 2, r2.StampCount)
}

func TestDispatchCarriesCommittedState(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.stamp(t, 10, "k-earn")
	require.NoError(t, err)

	snaps := f.snapshots()
	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, f.account.ID, snap.AccountID)
	assert.Equal(t, f.merchant.ID, snap.MerchantID)
	assert.Equal(t, f.account.PublicToken, snap.PublicToken)
	assert.Equal(t, 0, snap.StampCount)
	assert.Equal(t, 1, snap.RewardBalance)
	assert.NotNil(t, snap.RewardAvailableAt)
}
