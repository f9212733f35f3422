// Package realtime broadcasts balance updates to WebSocket subscribers.
// Channels are keyed by an account's public token, so only holders of the
// token observe its updates. Delivery is best-effort, at-most-once;
// subscribers can always re-fetch current state over HTTP.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// BalanceUpdate is the payload published after a committed stamp or redeem.
type BalanceUpdate struct {
	Type              string     `json:"type"`
	MerchantName      string     `json:"merchant_name"`
	RewardTarget      int        `json:"reward_target"`
	RewardTitle       string     `json:"reward_title"`
	StampCount        int        `json:"stamp_count"`
	RewardBalance     int        `json:"reward_balance"`
	LastStampedAt     *time.Time `json:"last_stamped_at"`
	RewardAvailableAt *time.Time `json:"reward_available_at"`
	RewardRedeemedAt  *time.Time `json:"reward_redeemed_at"`
	CustomerName      string     `json:"customer_name"`
}

// Hub maintains per-channel subscriber sets and fans published payloads out
// to them.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		logger:   logger,
	}
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(channel string, c *Client) {
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes a client and closes its send channel. Empty channels
// are pruned.
func (h *Hub) Unsubscribe(channel string, c *Client) {
	h.mu.Lock()
	if subs, ok := h.channels[channel]; ok {
		if _, ok := subs[c]; ok {
			delete(subs, c)
			close(c.send)
		}
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()
}

// Publish sends the payload to every subscriber of the channel.
func (h *Hub) Publish(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.channels[channel] {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// SubscriberCount returns the number of clients on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
