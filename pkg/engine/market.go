package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Market holds the per-instrument configuration and the position table.
// Exactly one position per account; merges happen in place.
type Market struct {
	Symbol string

	// Maximum notional multiplier: collateral × Leverage must cover size.
	// Also drives the maintenance-margin percentage (100/Leverage %).
	Leverage uint64

	// Paused halts open/close/liquidate. Liquidity ops ignore it.
	Paused bool

	positions map[common.Address]*Position
}

// NewMarket creates a market with the given leverage cap.
func NewMarket(symbol string, leverage uint64) (*Market, error) {
	if leverage == 0 {
		return nil, fmt.Errorf("market %s: %w", symbol, ErrInvalidLeverage)
	}
	return &Market{
		Symbol:    symbol,
		Leverage:  leverage,
		positions: make(map[common.Address]*Position),
	}, nil
}

// Position returns the open position for owner, or nil.
func (m *Market) Position(owner common.Address) *Position {
	return m.positions[owner]
}

// PositionCount returns the number of open positions.
func (m *Market) PositionCount() int {
	return len(m.positions)
}

// Positions returns a snapshot slice of all open positions.
func (m *Market) Positions() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	return out
}

func (m *Market) insertPosition(pos *Position) {
	m.positions[pos.Owner] = pos
}

func (m *Market) deletePosition(owner common.Address) {
	delete(m.positions, owner)
}
