package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event is a fire-and-forget structured record describing one committed
// mutation. External indexers consume these; delivery failure is not a core
// concern and never fails the originating call.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventSink receives committed-mutation records.
type EventSink interface {
	Publish(Event)
}

// Event type tags.
const (
	EvLiquidityAdded     = "liquidity_added"
	EvLiquidityRemoved   = "liquidity_removed"
	EvPositionOpened     = "position_opened"
	EvPositionUpdated    = "position_updated"
	EvPositionClosed     = "position_closed"
	EvPositionLiquidated = "position_liquidated"
	EvPauseToggled       = "pause_toggled"
	EvLeverageChanged    = "leverage_changed"
	EvPriceUpdated       = "price_updated"
)

// LiquidityEvent records an LP deposit or withdrawal and the new pool total.
type LiquidityEvent struct {
	Provider common.Address `json:"provider"`
	Amount   uint64         `json:"amount"`
	Balance  uint64         `json:"balance"`
}

// PositionEvent records an open or merge.
type PositionEvent struct {
	Owner      common.Address `json:"owner"`
	Size       uint64         `json:"size"`
	Collateral uint64         `json:"collateral"`
	EntryPrice uint64         `json:"entry_price"`
	Direction  string         `json:"direction"`
}

// CloseEvent records a voluntary close.
type CloseEvent struct {
	Owner     common.Address `json:"owner"`
	Size      uint64         `json:"size"`
	Pnl       uint64         `json:"pnl"`
	Profit    bool           `json:"profit"`
	ExitPrice uint64         `json:"exit_price"`
	Returned  uint64         `json:"returned"`
}

// LiquidationEvent records a forced close by a keeper.
type LiquidationEvent struct {
	Owner      common.Address `json:"owner"`
	Liquidator common.Address `json:"liquidator"`
	Size       uint64         `json:"size"`
	Collateral uint64         `json:"collateral"`
	Loss       uint64         `json:"loss"`
	Paid       uint64         `json:"paid"`
	ExitPrice  uint64         `json:"exit_price"`
}

// AdminEvent records a pause toggle or leverage change.
type AdminEvent struct {
	Paused   bool   `json:"paused,omitempty"`
	Leverage uint64 `json:"leverage,omitempty"`
}

// PriceEvent records a committed oracle write.
type PriceEvent struct {
	Price     uint64 `json:"price"`
	UpdatedAt int64  `json:"updated_at"`
}

func newEvent(typ string, now int64, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: now,
		Data:      data,
	}
}
