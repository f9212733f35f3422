package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/punchcardhq/punchcard/internal/stamp"
	"github.com/punchcardhq/punchcard/internal/store"
)

type AccountHandler struct {
	accounts  *store.AccountStore
	merchants *store.MerchantStore
	customers *store.CustomerStore
	logger    *slog.Logger
}

func NewAccountHandler(accounts *store.AccountStore, merchants *store.MerchantStore, customers *store.CustomerStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, merchants: merchants, customers: customers, logger: logger}
}

type accountView struct {
	StampCount        int        `json:"stamp_count"`
	RewardBalance     int        `json:"reward_balance"`
	RewardTarget      int        `json:"reward_target"`
	RewardTitle       string     `json:"reward_title"`
	MerchantName      string     `json:"merchant_name"`
	CustomerName      string     `json:"customer_name"`
	LastStampedAt     *time.Time `json:"last_stamped_at"`
	RewardAvailableAt *time.Time `json:"reward_available_at"`
	RewardRedeemedAt  *time.Time `json:"reward_redeemed_at"`
}

// Get handles GET /api/accounts/{token}. No session required: the public
// token is the capability, and this is what realtime subscribers re-fetch
// after a balance-update broadcast.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	acct, err := h.accounts.GetByPublicToken(token)
	if err != nil {
		h.logger.Error("account lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "storage_error", "account lookup failed")
		return
	}
	if acct == nil {
		errorJSON(w, http.StatusNotFound, "not_found", "account not found")
		return
	}

	view := accountView{
		StampCount:        acct.StampCount,
		RewardBalance:     acct.RewardBalance,
		RewardTarget:      stamp.DefaultRewardTarget,
		LastStampedAt:     acct.LastStampedAt,
		RewardAvailableAt: acct.RewardAvailableAt,
		RewardRedeemedAt:  acct.RewardRedeemedAt,
	}

	if m, err := h.merchants.GetByID(acct.MerchantID); err == nil && m != nil {
		view.MerchantName = m.Name
		view.RewardTitle = m.RewardTitle
		if m.RewardTarget > 0 {
			view.RewardTarget = m.RewardTarget
		}
	}
	if c, err := h.customers.GetByID(acct.CustomerID); err == nil && c != nil {
		view.CustomerName = c.DisplayName
	}

	writeJSON(w, http.StatusOK, view)
}
