package model

import "time"

// Merchant is a café (or other venue) running a loyalty card program.
type Merchant struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	RewardTarget int       `json:"reward_target"` // stamps needed per reward; 0 = use global default
	RewardTitle  string    `json:"reward_title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Customer struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}
