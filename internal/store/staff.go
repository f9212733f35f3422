package store

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/punchcardhq/punchcard/internal/model"
)

type StaffStore struct {
	db *sql.DB
}

func NewStaffStore(db *sql.DB) *StaffStore {
	return &StaffStore{db: db}
}

func scanStaff(scanner interface{ Scan(...any) error }) (*model.Staff, error) {
	var st model.Staff
	var superAdmin int
	err := scanner.Scan(&st.ID, &st.Email, &st.Name, &st.PasswordHash, &superAdmin, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.SuperAdmin = superAdmin != 0
	return &st, nil
}

const staffCols = `id, email, name, password_hash, super_admin, created_at`

func (s *StaffStore) Create(email, name, password string, superAdmin bool) (*model.Staff, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var sa int
	if superAdmin {
		sa = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO staff (email, name, password_hash, super_admin) VALUES (?, ?, ?, ?)`,
		email, name, string(hash), sa,
	)
	if err != nil {
		return nil, fmt.Errorf("insert staff: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *StaffStore) GetByID(id int64) (*model.Staff, error) {
	row := s.db.QueryRow(`SELECT `+staffCols+` FROM staff WHERE id = ?`, id)
	st, err := scanStaff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return st, nil
}

func (s *StaffStore) GetByEmail(email string) (*model.Staff, error) {
	row := s.db.QueryRow(`SELECT `+staffCols+` FROM staff WHERE email = ?`, email)
	st, err := scanStaff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff by email: %w", err)
	}
	return st, nil
}

// AddToMerchant grants the staff member access to a merchant's accounts.
func (s *StaffStore) AddToMerchant(staffID, merchantID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO staff_merchants (staff_id, merchant_id) VALUES (?, ?)`,
		staffID, merchantID,
	)
	if err != nil {
		return fmt.Errorf("add staff to merchant: %w", err)
	}
	return nil
}

func (s *StaffStore) RemoveFromMerchant(staffID, merchantID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM staff_merchants WHERE staff_id = ? AND merchant_id = ?`,
		staffID, merchantID,
	)
	if err != nil {
		return fmt.Errorf("remove staff from merchant: %w", err)
	}
	return nil
}

// BelongsToMerchant reads membership fresh on every call; it backs the
// access guard, and store assignments can change between requests.
// Implements the stamp engine's StaffDirectory interface.
func (s *StaffStore) BelongsToMerchant(staffID, merchantID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM staff_merchants WHERE staff_id = ? AND merchant_id = ?`,
		staffID, merchantID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check staff membership: %w", err)
	}
	return n > 0, nil
}
