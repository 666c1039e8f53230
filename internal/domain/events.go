package domain

import "time"

// Signal bus channels for market lifecycle events.
const (
	ChannelMarketCreated = "market_created"
	ChannelMarketLocked  = "market_locked"
	ChannelMarketSettled = "market_settled"
)

// MarketEvent is the payload published on the market lifecycle channels.
type MarketEvent struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id"`
	Question string    `json:"question,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`
	Outcome  *bool     `json:"outcome,omitempty"`
	At       time.Time `json:"at"`
}
