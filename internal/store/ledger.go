package store

import (
	"database/sql"
	"fmt"

	"github.com/punchcardhq/punchcard/internal/model"
)

// PointsLedgerStore is the best-effort analytics mirror of stamp_events.
// Writes here never block or roll back the stamping transaction.
type PointsLedgerStore struct {
	db *sql.DB
}

func NewPointsLedgerStore(db *sql.DB) *PointsLedgerStore {
	return &PointsLedgerStore{db: db}
}

const ledgerCols = `id, event_id, account_id, stamps_before, stamps_after, reward_before, reward_after, version_before, version_after, created_at`

func (s *PointsLedgerStore) InsertTx(tx *sql.Tx, e *model.PointsLedgerEntry) error {
	_, err := tx.Exec(
		`INSERT INTO points_ledger (event_id, account_id, stamps_before, stamps_after, reward_before, reward_after, version_before, version_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.AccountID, e.StampsBefore, e.StampsAfter,
		e.RewardBefore, e.RewardAfter, e.VersionBefore, e.VersionAfter,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func scanLedgerEntry(scanner interface{ Scan(...any) error }) (*model.PointsLedgerEntry, error) {
	var e model.PointsLedgerEntry
	err := scanner.Scan(
		&e.ID, &e.EventID, &e.AccountID, &e.StampsBefore, &e.StampsAfter,
		&e.RewardBefore, &e.RewardAfter, &e.VersionBefore, &e.VersionAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PointsLedgerStore) GetByEventID(eventID int64) (*model.PointsLedgerEntry, error) {
	row := s.db.QueryRow(`SELECT `+ledgerCols+` FROM points_ledger WHERE event_id = ?`, eventID)
	e, err := scanLedgerEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

func (s *PointsLedgerStore) ListByAccount(accountID int64, limit int) ([]model.PointsLedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+ledgerCols+` FROM points_ledger WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsLedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
