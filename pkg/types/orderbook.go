package types

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// Market channel event types.
const (
	EventBook           = "book"
	EventPriceChange    = "price_change"
	EventTickSizeChange = "tick_size_change"
	EventLastTradePrice = "last_trade_price"
)

// EventHeader is decoded first to route a websocket message by type.
type EventHeader struct {
	EventType string `json:"event_type"`
}

// BookMessage is a full book snapshot for one token, sent on subscribe and
// after trades. The REST /book endpoint returns the same shape.
type BookMessage struct {
	EventType    string       `json:"event_type"`
	AssetID      string       `json:"asset_id"`
	Market       string       `json:"market"`
	Timestamp    int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash         string       `json:"hash,omitempty"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	MinOrderSize string       `json:"min_order_size,omitempty"`
	TickSize     string       `json:"tick_size,omitempty"`
}

// UnmarshalJSON handles the string millisecond timestamp.
func (o *BookMessage) UnmarshalJSON(data []byte) error {
	type Alias BookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.TimestampStr)
	if err != nil {
		return err
	}
	o.Timestamp = ts

	return nil
}

// PriceLevel represents a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage carries incremental level updates for one or more tokens.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    int64         `json:"-"`
	PriceChanges []PriceChange `json:"price_changes"`
}

// UnmarshalJSON handles the string millisecond timestamp.
func (p *PriceChangeMessage) UnmarshalJSON(data []byte) error {
	type Alias PriceChangeMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.TimestampStr)
	if err != nil {
		return err
	}
	p.Timestamp = ts

	return nil
}

// PriceChange sets the aggregate size at one price level. Size "0" removes it.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // BUY (bid) or SELL (ask)
	Hash    string `json:"hash,omitempty"`
	BestBid string `json:"best_bid,omitempty"`
	BestAsk string `json:"best_ask,omitempty"`
}

// TickSizeChangeMessage is sent when a token's tick size changes near the edges.
type TickSizeChangeMessage struct {
	EventType   string `json:"event_type"`
	AssetID     string `json:"asset_id"`
	Market      string `json:"market"`
	OldTickSize string `json:"old_tick_size"`
	NewTickSize string `json:"new_tick_size"`
}

func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
