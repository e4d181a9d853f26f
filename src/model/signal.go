package model

import "time"

const (
	ActionOpen    = "open"
	ActionClose   = "close"
	ActionUnknown = "unknown"
)

// Delivery outcome strings recorded on signal history entries.
const (
	SignalStatusDelivered      = "delivered"
	SignalStatusBlockedRouting = "blocked by admin routing"
	SignalStatusNoSubscribers  = "no approved subscribers"
)

// Signal is a resolved webhook alert. It is transient: copies only live in
// the bounded per-strategy and per-subscriber history buffers.
type Signal struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Indicator           string    `json:"indicator"`
	Symbol              string    `json:"symbol"`
	Action              string    `json:"action"`
	Side                string    `json:"side"`
	Size                string    `json:"size,omitempty"`
	Leverage            int       `json:"leverage,omitempty"`
	StrategyID          string    `json:"strategy_id"`
	Status              string    `json:"status"`
	AutoTradingExecuted bool      `json:"auto_trading_executed"`
}
