package types

import (
	"strconv"
	"time"
)

// User channel event types.
const (
	EventTrade = "trade"
	EventOrder = "order"
)

// Trade statuses that carry a real match.
const (
	TradeStatusMatched   = "MATCHED"
	TradeStatusMined     = "MINED"
	TradeStatusConfirmed = "CONFIRMED"
	TradeStatusFailed    = "FAILED"
)

// Order event subtypes on the user channel.
const (
	OrderEventPlacement    = "PLACEMENT"
	OrderEventUpdate       = "UPDATE"
	OrderEventCancellation = "CANCELLATION"
)

// UserSubscription authenticates the user channel.
type UserSubscription struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
	Auth    UserAuth `json:"auth"`
}

// UserAuth carries L2 API credentials.
type UserAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// MarketSubscription subscribes the market channel to a set of tokens.
type MarketSubscription struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// UserTradeMessage is a match involving one of our orders, as taker or maker.
type UserTradeMessage struct {
	EventType    string       `json:"event_type"`
	ID           string       `json:"id"`
	TakerOrderID string       `json:"taker_order_id"`
	MakerOrders  []MakerOrder `json:"maker_orders"`
	AssetID      string       `json:"asset_id"`
	Market       string       `json:"market"`
	Side         string       `json:"side"`
	Price        string       `json:"price"`
	Size         string       `json:"size"`
	Status       string       `json:"status"`
	MatchTime    string       `json:"match_time"`
	Timestamp    string       `json:"timestamp"`
	Owner        string       `json:"owner"`
	TraderSide   string       `json:"trader_side,omitempty"` // TAKER or MAKER, REST only
}

// MakerOrder is one resting order matched by a trade.
type MakerOrder struct {
	OrderID       string `json:"order_id"`
	AssetID       string `json:"asset_id"`
	MatchedAmount string `json:"matched_amount"`
	Price         string `json:"price"`
	Owner         string `json:"owner"`
	Side          string `json:"side,omitempty"`
}

// Trader sides reported by the trades endpoint.
const (
	TraderSideTaker = "TAKER"
	TraderSideMaker = "MAKER"
)

// Counts reports whether a trade status represents an executed match.
func (t *UserTradeMessage) Counts() bool {
	switch t.Status {
	case TradeStatusMatched, TradeStatusMined, TradeStatusConfirmed:
		return true
	}
	return false
}

// Time returns the match time, falling back to the event timestamp.
// Both are unix seconds or milliseconds encoded as strings.
func (t *UserTradeMessage) Time() time.Time {
	for _, s := range []string{t.MatchTime, t.Timestamp} {
		if ts, ok := ParseUnixString(s); ok {
			return ts
		}
	}
	return time.Time{}
}

// ParseUnixString parses a unix timestamp in seconds or milliseconds.
func ParseUnixString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	// Anything past 1e12 is milliseconds.
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
