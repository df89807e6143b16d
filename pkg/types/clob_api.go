package types

// OrderSubmissionResponse represents the response from POST /order.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderID"`
	OrderHashes  []string `json:"orderHashes"` // settlement transaction hashes
	Status       string   `json:"status"`      // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"`
	MakingAmount string   `json:"makingAmount"`
}

// SignedOrderJSON is a signed order in the format expected by the CLOB API.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`  // funder address
	Signer        string `json:"signer"` // signing EOA
	Taker         string `json:"taker"`  // zero address for public orders
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"` // 6-decimal raw units
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`       // "BUY" or "SELL"
	Expiration    string `json:"expiration"` // 0 for no expiry
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order with its owner and time in force.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`     // API key, not the maker address
	OrderType string          `json:"orderType"` // GTC, FOK, GTD or FAK
}

// CancelOrderRequest is the body of DELETE /order.
type CancelOrderRequest struct {
	OrderID string `json:"orderID"`
}

// CancelMarketRequest is the body of DELETE /cancel-market-orders.
type CancelMarketRequest struct {
	Market  string `json:"market,omitempty"`
	AssetID string `json:"asset_id,omitempty"`
}

// CancelResponse is returned by every cancel endpoint.
type CancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// Order statuses returned by GET /data/order.
const (
	OrderStatusLive      = "LIVE"
	OrderStatusMatched   = "MATCHED"
	OrderStatusCanceled  = "CANCELED"
	OrderStatusDelayed   = "DELAYED"
	OrderStatusUnmatched = "UNMATCHED"
)

// OrderQueryResponse is the response from GET /data/order/{id}.
type OrderQueryResponse struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Market          string   `json:"market"`
	AssetID         string   `json:"asset_id"`
	Side            string   `json:"side"`
	Price           string   `json:"price"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Outcome         string   `json:"outcome"`
	OrderType       string   `json:"order_type"`
	CreatedAt       int64    `json:"created_at"`
	AssociateTrades []string `json:"associate_trades"`
}

// OpenOrdersPage is one page of GET /data/orders.
type OpenOrdersPage struct {
	Data       []OrderQueryResponse `json:"data"`
	NextCursor string               `json:"next_cursor"`
}

// TradeRecord is one entry of GET /data/trades.
type TradeRecord struct {
	ID           string       `json:"id"`
	TakerOrderID string       `json:"taker_order_id"`
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Side         string       `json:"side"`
	Size         string       `json:"size"`
	Price        string       `json:"price"`
	Status       string       `json:"status"`
	MatchTime    string       `json:"match_time"`
	Owner        string       `json:"owner"`
	TraderSide   string       `json:"trader_side"` // TAKER or MAKER
	MakerOrders  []MakerOrder `json:"maker_orders"`
}

// TradesPage is one page of GET /data/trades.
type TradesPage struct {
	Data       []TradeRecord `json:"data"`
	NextCursor string        `json:"next_cursor"`
}

// EndCursor marks the last page of a paginated CLOB listing.
const EndCursor = "LTE="

// TickSizeResponse is the response from GET /tick-size.
type TickSizeResponse struct {
	MinimumTickSize float64 `json:"minimum_tick_size"`
}
