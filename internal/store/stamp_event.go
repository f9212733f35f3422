package store

import (
	"database/sql"
	"fmt"

	"github.com/punchcardhq/punchcard/internal/model"
)

type StampEventStore struct {
	db *sql.DB
}

func NewStampEventStore(db *sql.DB) *StampEventStore {
	return &StampEventStore{db: db}
}

func scanStampEvent(scanner interface{ Scan(...any) error }) (*model.StampEvent, error) {
	var e model.StampEvent
	err := scanner.Scan(
		&e.ID, &e.AccountID, &e.MerchantID, &e.StaffID, &e.OpType,
		&e.Count, &e.IdempotencyKey, &e.UserAgent, &e.IP, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const stampEventCols = `id, account_id, merchant_id, staff_id, op_type, count, idempotency_key, user_agent, ip, created_at`

// GetByIdempotencyKey returns the event that already consumed the key, or
// nil if the key is unused.
func (s *StampEventStore) GetByIdempotencyKey(key string) (*model.StampEvent, error) {
	row := s.db.QueryRow(`SELECT `+stampEventCols+` FROM stamp_events WHERE idempotency_key = ?`, key)
	e, err := scanStampEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event by key: %w", err)
	}
	return e, nil
}

// InsertTx appends the audit record inside the stamping transaction. A
// unique violation on idempotency_key is returned unwrapped so the engine
// can recognize it with IsUniqueViolation.
func (s *StampEventStore) InsertTx(tx *sql.Tx, e *model.StampEvent) (int64, error) {
	result, err := tx.Exec(
		`INSERT INTO stamp_events (account_id, merchant_id, staff_id, op_type, count, idempotency_key, user_agent, ip)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.MerchantID, e.StaffID, e.OpType, e.Count, e.IdempotencyKey, e.UserAgent, e.IP,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *StampEventStore) ListByAccount(accountID int64, limit int) ([]model.StampEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+stampEventCols+` FROM stamp_events WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by account: %w", err)
	}
	defer rows.Close()

	var events []model.StampEvent
	for rows.Next() {
		e, err := scanStampEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *StampEventStore) CountByAccount(accountID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM stamp_events WHERE account_id = ?`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
