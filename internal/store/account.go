package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/punchcardhq/punchcard/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.LoyaltyAccount, error) {
	var a model.LoyaltyAccount
	var lastStamped, rewardAvailable, rewardRedeemed sql.NullTime
	var redeemToken sql.NullString

	err := scanner.Scan(
		&a.ID, &a.MerchantID, &a.CustomerID, &a.StampCount, &a.RewardBalance,
		&a.Version, &lastStamped, &rewardAvailable, &rewardRedeemed,
		&a.PublicToken, &redeemToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastStamped.Valid {
		a.LastStampedAt = &lastStamped.Time
	}
	if rewardAvailable.Valid {
		a.RewardAvailableAt = &rewardAvailable.Time
	}
	if rewardRedeemed.Valid {
		a.RewardRedeemedAt = &rewardRedeemed.Time
	}
	if redeemToken.Valid {
		a.RedeemToken = &redeemToken.String
	}
	return &a, nil
}

const accountCols = `id, merchant_id, customer_id, stamp_count, reward_balance, version, last_stamped_at, reward_available_at, reward_redeemed_at, public_token, redeem_token, created_at, updated_at`

// Create inserts a fully-initialized account for the (merchant, customer)
// pair. The public token is generated here, never by a lifecycle hook.
func (s *AccountStore) Create(merchantID, customerID int64) (*model.LoyaltyAccount, error) {
	publicToken := uuid.NewString()

	result, err := s.db.Exec(
		`INSERT INTO loyalty_accounts (merchant_id, customer_id, public_token) VALUES (?, ?, ?)`,
		merchantID, customerID, publicToken,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccountStore) GetByID(id int64) (*model.LoyaltyAccount, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM loyalty_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByPublicToken(token string) (*model.LoyaltyAccount, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM loyalty_accounts WHERE public_token = ?`, token)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by token: %w", err)
	}
	return a, nil
}

// GetTx reads an account inside an open transaction. Within an immediate
// write transaction this read is the locked read-modify-write read.
func (s *AccountStore) GetTx(tx *sql.Tx, id int64) (*model.LoyaltyAccount, error) {
	row := tx.QueryRow(`SELECT `+accountCols+` FROM loyalty_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account in tx: %w", err)
	}
	return a, nil
}

// UpdateTx persists a mutated account. The WHERE clause matches the version
// the mutation started from (a.Version is the already-incremented value), so
// a concurrent write that slipped past the transaction lock shows up as zero
// rows affected.
func (s *AccountStore) UpdateTx(tx *sql.Tx, a *model.LoyaltyAccount) error {
	var redeemToken sql.NullString
	if a.RedeemToken != nil {
		redeemToken = sql.NullString{String: *a.RedeemToken, Valid: true}
	}
	var lastStamped, rewardAvailable, rewardRedeemed sql.NullTime
	if a.LastStampedAt != nil {
		lastStamped = sql.NullTime{Time: *a.LastStampedAt, Valid: true}
	}
	if a.RewardAvailableAt != nil {
		rewardAvailable = sql.NullTime{Time: *a.RewardAvailableAt, Valid: true}
	}
	if a.RewardRedeemedAt != nil {
		rewardRedeemed = sql.NullTime{Time: *a.RewardRedeemedAt, Valid: true}
	}

	result, err := tx.Exec(
		`UPDATE loyalty_accounts
		 SET stamp_count = ?, reward_balance = ?, version = ?, last_stamped_at = ?,
		     reward_available_at = ?, reward_redeemed_at = ?, redeem_token = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		a.StampCount, a.RewardBalance, a.Version, lastStamped,
		rewardAvailable, rewardRedeemed, redeemToken, time.Now().UTC(),
		a.ID, a.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("update account %d: version %d no longer current", a.ID, a.Version-1)
	}
	return nil
}
