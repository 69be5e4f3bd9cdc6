package api

// Wire types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// MarketInfo describes the market's current configuration.
type MarketInfo struct {
	Symbol    string `json:"symbol"`
	Leverage  uint64 `json:"leverage"`
	Paused    bool   `json:"paused"`
	Positions int    `json:"positions"`
}

// PoolInfo reports the pooled settlement-asset balance.
type PoolInfo struct {
	Balance uint64 `json:"balance"`
}

// PriceInfo reports the last committed oracle price.
type PriceInfo struct {
	Price       uint64 `json:"price"`
	LastUpdated int64  `json:"lastUpdated"`
}

// PositionInfo describes one open position.
type PositionInfo struct {
	Owner      string `json:"owner"`
	Size       uint64 `json:"size"`
	Collateral uint64 `json:"collateral"`
	EntryPrice uint64 `json:"entryPrice"`
	Direction  string `json:"direction"`
	OpenedAt   int64  `json:"openedAt"`
}

// PayoutResponse reports the coin paid out by a close or liquidation.
type PayoutResponse struct {
	Status string `json:"status"`
	Paid   uint64 `json:"paid"`
}

// BalanceResponse reports the pool balance after a liquidity operation.
type BalanceResponse struct {
	Status  string `json:"status"`
	Balance uint64 `json:"balance"`
}

// StatusResponse is the generic success envelope.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the generic failure envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// OpenPositionRequest opens or merges a position.
type OpenPositionRequest struct {
	Address    string `json:"address"`
	Size       uint64 `json:"size"`
	Direction  string `json:"direction"` // "long" or "short"
	Collateral uint64 `json:"collateral"`
}

// ClosePositionRequest closes the caller's position.
type ClosePositionRequest struct {
	Address string `json:"address"`
}

// LiquidateRequest liquidates someone else's position.
type LiquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Owner      string `json:"owner"`
}

// LiquidityRequest adds or removes LP capital.
type LiquidityRequest struct {
	Provider string `json:"provider"`
	Amount   uint64 `json:"amount"`
}

// PauseRequest toggles the market pause flag.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// LeverageRequest overwrites the market leverage cap.
type LeverageRequest struct {
	Leverage uint64 `json:"leverage"`
}

// PriceUpdateRequest commits a new oracle price.
type PriceUpdateRequest struct {
	Price uint64 `json:"price"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest subscribes or unsubscribes event-type channels.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
