package store

import (
	"database/sql"
	"fmt"

	"github.com/punchcardhq/punchcard/internal/model"
)

type MerchantStore struct {
	db *sql.DB
}

func NewMerchantStore(db *sql.DB) *MerchantStore {
	return &MerchantStore{db: db}
}

func scanMerchant(scanner interface{ Scan(...any) error }) (*model.Merchant, error) {
	var m model.Merchant
	err := scanner.Scan(&m.ID, &m.Name, &m.RewardTarget, &m.RewardTitle, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const merchantCols = `id, name, reward_target, reward_title, created_at, updated_at`

func (s *MerchantStore) Create(name string, rewardTarget int, rewardTitle string) (*model.Merchant, error) {
	result, err := s.db.Exec(
		`INSERT INTO merchants (name, reward_target, reward_title) VALUES (?, ?, ?)`,
		name, rewardTarget, rewardTitle,
	)
	if err != nil {
		return nil, fmt.Errorf("insert merchant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MerchantStore) GetByID(id int64) (*model.Merchant, error) {
	row := s.db.QueryRow(`SELECT `+merchantCols+` FROM merchants WHERE id = ?`, id)
	m, err := scanMerchant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	return m, nil
}

func (s *MerchantStore) Update(id int64, name string, rewardTarget int, rewardTitle string) (*model.Merchant, error) {
	_, err := s.db.Exec(
		`UPDATE merchants SET name = ?, reward_target = ?, reward_title = ?, updated_at = datetime('now') WHERE id = ?`,
		name, rewardTarget, rewardTitle, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update merchant: %w", err)
	}
	return s.GetByID(id)
}

// RewardTarget returns the merchant's configured stamps-per-reward, 0 when
// the merchant leaves it unset. The engine applies the process-wide default.
// Implements the stamp engine's MerchantConfig interface.
func (s *MerchantStore) RewardTarget(merchantID int64) (int, error) {
	var target int
	err := s.db.QueryRow(`SELECT reward_target FROM merchants WHERE id = ?`, merchantID).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reward target: %w", err)
	}
	return target, nil
}
