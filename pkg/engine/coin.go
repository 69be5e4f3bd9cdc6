package engine

// Coin is the settlement-asset primitive the engine moves around.
// The host ledger owns real balances; inside the engine a Coin is just a
// value that gets deposited into the pool or paid out of it. All values are
// integer units of the settlement asset (e.g. USDC micro-units).
type Coin struct {
	Amount uint64
}

// NewCoin wraps an amount of the settlement asset.
func NewCoin(amount uint64) Coin {
	return Coin{Amount: amount}
}

// ZeroCoin returns an empty coin.
func ZeroCoin() Coin {
	return Coin{}
}

// Value returns the amount carried by the coin.
func (c Coin) Value() uint64 {
	return c.Amount
}

// IsZero reports whether the coin carries no value.
func (c Coin) IsZero() bool {
	return c.Amount == 0
}
