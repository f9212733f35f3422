package store

import (
	"database/sql"
	"fmt"

	"github.com/punchcardhq/punchcard/internal/model"
)

type CustomerStore struct {
	db *sql.DB
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

const customerCols = `id, display_name, email, created_at`

func (s *CustomerStore) Create(displayName, email string) (*model.Customer, error) {
	result, err := s.db.Exec(
		`INSERT INTO customers (display_name, email) VALUES (?, ?)`,
		displayName, email,
	)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CustomerStore) GetByID(id int64) (*model.Customer, error) {
	var c model.Customer
	err := s.db.QueryRow(`SELECT `+customerCols+` FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.Email, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}
