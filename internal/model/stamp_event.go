package model

import "time"

// Operation types recorded in the stamp_events audit trail.
const (
	OpStamp  = "stamp"
	OpRedeem = "redeem"
)

// StampEvent is the append-only audit record for one accepted operation.
// IdempotencyKey carries a unique index; a second insert with the same key
// fails, which the engine interprets as "already processed".
type StampEvent struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	MerchantID     int64     `json:"merchant_id"`
	StaffID        int64     `json:"staff_id"`
	OpType         string    `json:"op_type"`
	Count          int       `json:"count"`
	IdempotencyKey string    `json:"idempotency_key"`
	UserAgent      string    `json:"user_agent"`
	IP             string    `json:"ip"`
	CreatedAt      time.Time `json:"created_at"`
}

// PointsLedgerEntry mirrors a StampEvent with before/after snapshots for
// analytics. Best-effort: its write never blocks the primary transaction.
type PointsLedgerEntry struct {
	ID            int64     `json:"id"`
	EventID       int64     `json:"event_id"`
	AccountID     int64     `json:"account_id"`
	StampsBefore  int       `json:"stamps_before"`
	StampsAfter   int       `json:"stamps_after"`
	RewardBefore  int       `json:"reward_before"`
	RewardAfter   int       `json:"reward_after"`
	VersionBefore int64     `json:"version_before"`
	VersionAfter  int64     `json:"version_after"`
	CreatedAt     time.Time `json:"created_at"`
}
