package engine

import (
	"math"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
)

// Direction of a leveraged position.
type Direction int8

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the two tradable directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Position is an account's open leveraged exposure in one market.
// At most one position exists per account; repeated opens in the same
// direction merge into it. Terminal states (close, liquidation) delete the
// entry, after which a fresh position may be opened.
type Position struct {
	Owner common.Address `json:"owner"`

	// Notional exposure in settlement-asset units.
	Size uint64 `json:"size"`

	// Collateral posted by the owner, held inside the pool.
	// Invariant while open: Collateral × leverage ≥ Size.
	Collateral uint64 `json:"collateral"`

	// Oracle price at open; volume-weighted average under merges.
	// Fixed-point, scale implied by the oracle (1e6).
	EntryPrice uint64 `json:"entry_price"`

	Direction Direction `json:"direction"`

	// Unix milliseconds at first open. Never touched by merges.
	OpenedAt int64 `json:"opened_at"`
}

// mulDiv computes a×b/d with a 128-bit intermediate product, so the multiply
// cannot overflow before the divide. Saturates if the quotient itself does
// not fit in 64 bits. d must be non-zero.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// weightedEntry computes (oldEntry×oldSize + price×size) / newSize with a
// 128-bit intermediate sum. newSize must be oldSize+size and non-zero.
func weightedEntry(oldEntry, oldSize, price, size, newSize uint64) uint64 {
	hi1, lo1 := bits.Mul64(oldEntry, oldSize)
	hi2, lo2 := bits.Mul64(price, size)
	lo, carry := bits.Add64(lo1, lo2, 0)
	hi := hi1 + hi2 + carry
	if hi >= newSize {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, newSize)
	return q
}

// coversLeverage reports whether collateral×leverage ≥ size, with the
// product taken at 128-bit width.
func coversLeverage(collateral, leverage, size uint64) bool {
	hi, lo := bits.Mul64(collateral, leverage)
	return hi > 0 || lo >= size
}

// ComputePnL returns the profit-or-loss magnitude for closing size at
// exitPrice against entryPrice, and whether it is a profit.
//
//	long:  profit when exit > entry
//	short: profit when exit < entry
//	magnitude = size × |exit − entry| / entry
//
// Equal prices yield (0, false): a zero loss. entryPrice must be positive,
// which holds for any position the engine created.
func ComputePnL(size, entryPrice, exitPrice uint64, dir Direction) (uint64, bool) {
	var diff uint64
	var profit bool
	if exitPrice > entryPrice {
		diff = exitPrice - entryPrice
		profit = dir == Long
	} else {
		diff = entryPrice - exitPrice
		profit = dir == Short && diff > 0
	}
	return mulDiv(size, diff, entryPrice), profit
}

// MaintenanceMargin derives the minimum collateral a position of this size
// must retain before it becomes liquidatable, as a percentage of notional
// implied by the leverage cap: size × (100/leverage) / 100, integer division
// at both steps. Leverage 10 → 10% of size. leverage must be positive.
func MaintenanceMargin(size, leverage uint64) uint64 {
	pct := 100 / leverage
	return mulDiv(size, pct, 100)
}
