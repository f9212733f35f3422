package store

import (
	"database/sql"
	"testing"

	"github.com/punchcardhq/punchcard/internal/database"
	"github.com/punchcardhq/punchcard/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedAccount creates a merchant, a customer, and a loyalty account linking
// them, returning the stores and the account ID.
func seedAccount(t *testing.T, db *sql.DB) (*AccountStore, int64) {
	t.Helper()
	merchants := NewMerchantStore(db)
	customers := NewCustomerStore(db)
	accounts := NewAccountStore(db)

	m, err := merchants.Create("Bluebird Coffee", 10, "Free drink")
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	c, err := customers.Create("Ada", "ada@example.com")
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	a, err := accounts.Create(m.ID, c.ID)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return accounts, a.ID
}

func TestAccountCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	accounts, id := seedAccount(t, db)

	a, err := accounts.GetByID(id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if a == nil {
		t.Fatal("expected account, got nil")
	}
	if a.StampCount != 0 || a.RewardBalance != 0 {
		t.Errorf("new account = %d stamps / %d rewards, want 0/0", a.StampCount, a.RewardBalance)
	}
	if a.PublicToken == "" {
		t.Error("expected a public token")
	}
	if a.RedeemToken != nil {
		t.Error("new account should have no redeem token")
	}

	byToken, err := accounts.GetByPublicToken(a.PublicToken)
	if err != nil {
		t.Fatalf("get by public token: %v", err)
	}
	if byToken == nil || byToken.ID != a.ID {
		t.Errorf("get by token returned %+v, want account %d", byToken, a.ID)
	}
}

func TestAccountGetMissing(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)

	a, err := accounts.GetByID(9999)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil, got %+v", a)
	}

	a, err = accounts.GetByPublicToken("no-such-token")
	if err != nil {
		t.Fatalf("get by missing token: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestAccountUpdateTxVersionGuard(t *testing.T) {
	db := setupTestDB(t)
	accounts, id := seedAccount(t, db)

	a, err := accounts.GetByID(id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	a.StampCount = 3
	a.Version++
	if err := accounts.UpdateTx(tx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := accounts.GetByID(id)
	if err != nil {
		t.Fatalf("re-fetch: %v", err)
	}
	if got.StampCount != 3 || got.Version != a.Version {
		t.Errorf("got %d stamps v%d, want 3 stamps v%d", got.StampCount, got.Version, a.Version)
	}

	// Re-running the same update with the stale version must not match a row.
	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := accounts.UpdateTx(tx, a); err == nil {
		t.Error("expected stale-version update to fail")
	}
}

func TestStampEventIdempotencyKeyUnique(t *testing.T) {
	db := setupTestDB(t)
	accounts, id := seedAccount(t, db)
	events := NewStampEventStore(db)

	a, err := accounts.GetByID(id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}

	insert := func() error {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback()
		_, err = events.InsertTx(tx, &model.StampEvent{
			AccountID:      a.ID,
			MerchantID:     a.MerchantID,
			OpType:         model.OpStamp,
			Count:          1,
			IdempotencyKey: "dup-key",
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = insert()
	if err == nil {
		t.Fatal("expected unique violation on second insert")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	ev, err := events.GetByIdempotencyKey("dup-key")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if ev == nil || ev.Count != 1 {
		t.Errorf("got %+v, want the committed event", ev)
	}
}
