package model

import "time"

// LoyaltyAccount tracks one customer's stamp progress at one merchant.
//
// Invariants maintained by the stamp engine:
//   - 0 <= StampCount < reward target after every committed operation;
//     overshoot folds into RewardBalance.
//   - RedeemToken and RewardAvailableAt are set iff RewardBalance > 0.
//   - Version strictly increases on every successful mutation.
type LoyaltyAccount struct {
	ID                int64      `json:"id"`
	MerchantID        int64      `json:"merchant_id"`
	CustomerID        int64      `json:"customer_id"`
	StampCount        int        `json:"stamp_count"`
	RewardBalance     int        `json:"reward_balance"`
	Version           int64      `json:"version"`
	LastStampedAt     *time.Time `json:"last_stamped_at"`
	RewardAvailableAt *time.Time `json:"reward_available_at"`
	RewardRedeemedAt  *time.Time `json:"reward_redeemed_at"`
	PublicToken       string     `json:"public_token"`
	RedeemToken       *string    `json:"redeem_token,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
