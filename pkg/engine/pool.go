package engine

import "fmt"

// LiquidityPool is the single pooled balance of the settlement asset.
// Trading collateral and LP capital are co-mingled: deposits from opens and
// add-liquidity both land in the same balance, payouts from closes,
// liquidations and remove-liquidity all draw from it. There is no separate
// locked-collateral reserve, so LPs can withdraw down to the amount backing
// open positions (known solvency gap, kept deliberately).
type LiquidityPool struct {
	balance uint64
}

// NewLiquidityPool creates an empty pool.
func NewLiquidityPool() *LiquidityPool {
	return &LiquidityPool{}
}

// Balance returns the current pooled balance.
func (p *LiquidityPool) Balance() uint64 {
	return p.balance
}

// Deposit adds a coin's value to the pool.
func (p *LiquidityPool) Deposit(c Coin) {
	p.balance += c.Amount
}

// Withdraw removes amount from the pool and returns it as a coin.
// Withdrawing more than the pool holds fails with ErrInsufficientLiquidity
// and leaves the balance untouched.
func (p *LiquidityPool) Withdraw(amount uint64) (Coin, error) {
	if amount > p.balance {
		return ZeroCoin(), fmt.Errorf("withdraw %d exceeds pool balance %d: %w", amount, p.balance, ErrInsufficientLiquidity)
	}
	p.balance -= amount
	return NewCoin(amount), nil
}

// restore overwrites the balance from persisted state.
func (p *LiquidityPool) restore(balance uint64) {
	p.balance = balance
}
