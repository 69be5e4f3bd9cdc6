package engine

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice  = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob    = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	keeper = common.HexToAddress("0xCC00000000000000000000000000000000000000")
	lp     = common.HexToAddress("0x1100000000000000000000000000000000000000")
)

// newTestEngine builds an engine with leverage 10, a funded pool and a
// published price of 1.0 (1e6 fixed-point).
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	market, err := NewMarket("BTC-USD", 10)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	e := NewEngine(market, NewLiquidityPool(), NewPriceFeed())
	if err := e.UpdatePrice(RoleOracleOperator, 1_000_000, 1); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	if _, err := e.AddLiquidity(RoleLiquidityProvider, lp, NewCoin(1_000_000), 1); err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
	return e
}

func setPrice(t *testing.T, e *Engine, price uint64, now int64) {
	t.Helper()
	if err := e.UpdatePrice(RoleOracleOperator, price, now); err != nil {
		t.Fatalf("update price: %v", err)
	}
}

// ==============================
// Liquidity
// ==============================

func TestAddLiquidity(t *testing.T) {
	e := newTestEngine(t)

	balance, err := e.AddLiquidity(RoleLiquidityProvider, lp, NewCoin(500), 2)
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if balance != 1_000_500 {
		t.Errorf("balance = %d, want 1000500", balance)
	}

	if _, err := e.AddLiquidity(RoleLiquidityProvider, lp, ZeroCoin(), 3); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("zero deposit: err = %v, want ErrZeroAmount", err)
	}
	if _, err := e.AddLiquidity(RoleAdmin, lp, NewCoin(1), 3); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong role: err = %v, want ErrUnauthorized", err)
	}
}

func TestRemoveLiquidity(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.RemoveLiquidity(RoleLiquidityProvider, lp, 400_000, 2)
	if err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	if out.Value() != 400_000 {
		t.Errorf("withdrawn = %d, want 400000", out.Value())
	}
	if e.PoolBalance() != 600_000 {
		t.Errorf("balance = %d, want 600000", e.PoolBalance())
	}

	if _, err := e.RemoveLiquidity(RoleLiquidityProvider, lp, 0, 3); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("zero withdraw: err = %v, want ErrZeroAmount", err)
	}
	if _, err := e.RemoveLiquidity(RoleLiquidityProvider, lp, 600_001, 3); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("overdraw: err = %v, want ErrInsufficientLiquidity", err)
	}
}

// Liquidity operations deliberately ignore the pause flag: LPs can withdraw
// even while trading is halted, down to the amount backing open positions.
func TestRemoveLiquidityIgnoresPause(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetPaused(RoleAdmin, true, 2); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := e.RemoveLiquidity(RoleLiquidityProvider, lp, 1000, 3); err != nil {
		t.Errorf("remove while paused: %v", err)
	}
	if _, err := e.AddLiquidity(RoleLiquidityProvider, lp, NewCoin(1000), 3); err != nil {
		t.Errorf("add while paused: %v", err)
	}
}

// ==============================
// Open / merge
// ==============================

func TestOpenPosition(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}

	pos := e.PositionOf(alice)
	if pos == nil {
		t.Fatal("position missing after open")
	}
	if pos.Size != 5000 || pos.Collateral != 1000 || pos.EntryPrice != 1_000_000 {
		t.Errorf("position = {size %d, col %d, entry %d}", pos.Size, pos.Collateral, pos.EntryPrice)
	}
	if pos.Direction != Long || pos.OpenedAt != 10 {
		t.Errorf("direction/openedAt = %v/%d", pos.Direction, pos.OpenedAt)
	}
	// Collateral lands in the pool.
	if e.PoolBalance() != 1_001_000 {
		t.Errorf("pool = %d, want 1001000", e.PoolBalance())
	}
	// collateral × leverage ≥ size holds.
	if !coversLeverage(pos.Collateral, e.Leverage(), pos.Size) {
		t.Error("leverage invariant violated after open")
	}
}

func TestOpenPositionValidation(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero size", func() error { return e.OpenPosition(alice, 0, Long, NewCoin(100), 1) }, ErrInvalidSize},
		{"bad direction", func() error { return e.OpenPosition(alice, 100, Direction(9), NewCoin(100), 1) }, ErrInvalidDirection},
		{"zero collateral", func() error { return e.OpenPosition(alice, 100, Long, ZeroCoin(), 1) }, ErrInvalidCollateral},
		{"undercollateralized", func() error { return e.OpenPosition(alice, 10001, Long, NewCoin(1000), 1) }, ErrInvalidCollateral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if e.PositionOf(alice) != nil {
				t.Error("failed open must not leave a position")
			}
		})
	}
}

func TestOpenPositionNoPrice(t *testing.T) {
	market, _ := NewMarket("BTC-USD", 10)
	e := NewEngine(market, NewLiquidityPool(), NewPriceFeed())

	if err := e.OpenPosition(alice, 100, Long, NewCoin(100), 1); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("err = %v, want ErrInvalidPrice", err)
	}
}

func TestOpenPositionPaused(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetPaused(RoleAdmin, true, 2); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := e.OpenPosition(alice, 100, Long, NewCoin(100), 3); !errors.Is(err, ErrMarketPaused) {
		t.Errorf("err = %v, want ErrMarketPaused", err)
	}
}

func TestMergeWeightedEntry(t *testing.T) {
	e := newTestEngine(t)

	// 5000 @ 1.0, then 5000 @ 2.0 → size 10000, collateral 2000, entry 1.5
	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("first open: %v", err)
	}
	setPrice(t, e, 2_000_000, 20)
	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 20); err != nil {
		t.Fatalf("merge: %v", err)
	}

	pos := e.PositionOf(alice)
	if pos.Size != 10000 || pos.Collateral != 2000 || pos.EntryPrice != 1_500_000 {
		t.Errorf("merged = {size %d, col %d, entry %d}, want {10000, 2000, 1500000}", pos.Size, pos.Collateral, pos.EntryPrice)
	}
	if pos.OpenedAt != 10 {
		t.Errorf("openedAt = %d, merge must not touch it", pos.OpenedAt)
	}
}

func TestMergeDirectionMismatch(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := e.OpenPosition(alice, 5000, Short, NewCoin(1000), 11)
	if !errors.Is(err, ErrDirectionMismatch) {
		t.Errorf("err = %v, want ErrDirectionMismatch", err)
	}

	// Nothing changed: same position, no extra pool deposit.
	pos := e.PositionOf(alice)
	if pos.Size != 5000 || pos.Collateral != 1000 {
		t.Errorf("position mutated by failed merge: {size %d, col %d}", pos.Size, pos.Collateral)
	}
	if e.PoolBalance() != 1_001_000 {
		t.Errorf("pool = %d, failed merge must not deposit", e.PoolBalance())
	}
}

func TestMergeUndercollateralized(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	// Merge adds size without enough extra collateral.
	err := e.OpenPosition(alice, 5000, Long, NewCoin(100), 11)
	if !errors.Is(err, ErrInvalidCollateral) {
		t.Errorf("err = %v, want ErrInvalidCollateral", err)
	}
}

// ==============================
// Close
// ==============================

func TestCloseProfit(t *testing.T) {
	e := newTestEngine(t)

	// Long 5000 @ 1.0 with 1000 collateral, exit 1.2 → pnl 1000, payout 2000.
	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 1_200_000, 20)

	out, err := e.ClosePosition(alice, 20)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.Value() != 2000 {
		t.Errorf("payout = %d, want 2000", out.Value())
	}
	if e.PositionOf(alice) != nil {
		t.Error("position survived close")
	}
	// Pool: 1e6 + 1000 deposit − 2000 payout.
	if e.PoolBalance() != 999_000 {
		t.Errorf("pool = %d, want 999000", e.PoolBalance())
	}
}

func TestCloseLoss(t *testing.T) {
	e := newTestEngine(t)

	// Long 5000 @ 1.0 with 1000 collateral, exit 0.9 → pnl 500, payout 500.
	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 900_000, 20)

	out, err := e.ClosePosition(alice, 20)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.Value() != 500 {
		t.Errorf("payout = %d, want 500", out.Value())
	}
}

func TestCloseWipeout(t *testing.T) {
	e := newTestEngine(t)

	// Loss ≥ collateral pays exactly zero, never negative.
	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 800_000, 20) // loss = 10000 × 0.2 = 2000 > 1000

	out, err := e.ClosePosition(alice, 20)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.Value() != 0 {
		t.Errorf("payout = %d, want 0", out.Value())
	}
	if e.PositionOf(alice) != nil {
		t.Error("position survived wipeout close")
	}
}

func TestCloseInsufficientLiquidityRollsBack(t *testing.T) {
	market, _ := NewMarket("BTC-USD", 10)
	e := NewEngine(market, NewLiquidityPool(), NewPriceFeed())
	setPrice(t, e, 1_000_000, 1)

	// Pool only holds alice's own 1000 collateral; a 2000 payout cannot be
	// covered, so the close must abort and keep the position open.
	if err := e.OpenPosition(alice, 5000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 1_200_000, 20)

	_, err := e.ClosePosition(alice, 20)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
	if e.PositionOf(alice) == nil {
		t.Error("aborted close must leave the position open")
	}
	if e.PoolBalance() != 1000 {
		t.Errorf("pool = %d, aborted close must not move funds", e.PoolBalance())
	}
}

func TestCloseNotFound(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ClosePosition(bob, 5); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("err = %v, want ErrPositionNotFound", err)
	}
}

// ==============================
// Liquidation
// ==============================

func TestLiquidationBoundary(t *testing.T) {
	e := newTestEngine(t)

	// size 10000, leverage 10 → maintenance 1000. Collateral 1000, entry
	// 1.0, price drops to 0.91 → loss 900, remaining 100 < 1000.
	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 910_000, 20)

	out, err := e.Liquidate(keeper, alice, 20)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// The keeper receives the entire remaining collateral.
	if out.Value() != 100 {
		t.Errorf("reward = %d, want 100", out.Value())
	}
	if e.PositionOf(alice) != nil {
		t.Error("position survived liquidation")
	}
}

func TestLiquidateHealthyPosition(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}

	// No price movement: zero loss, remaining = collateral = maintenance,
	// not strictly below → not liquidatable.
	if _, err := e.Liquidate(keeper, alice, 11); !errors.Is(err, ErrCannotLiquidate) {
		t.Errorf("err = %v, want ErrCannotLiquidate", err)
	}
	if e.PositionOf(alice) == nil {
		t.Error("rejected liquidation must keep the position")
	}
}

func TestLiquidateProfitablePosition(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 1_100_000, 20)

	// A position in profit is never liquidatable.
	if _, err := e.Liquidate(keeper, alice, 20); !errors.Is(err, ErrCannotLiquidate) {
		t.Errorf("err = %v, want ErrCannotLiquidate", err)
	}
}

func TestLiquidateBankruptPaysNothing(t *testing.T) {
	e := newTestEngine(t)

	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 800_000, 20) // loss 2000 ≥ collateral 1000

	before := e.PoolBalance()
	out, err := e.Liquidate(keeper, alice, 20)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if out.Value() != 0 {
		t.Errorf("reward = %d, want 0 for bankrupt position", out.Value())
	}
	if e.PoolBalance() != before {
		t.Errorf("pool moved on zero-reward liquidation: %d → %d", before, e.PoolBalance())
	}
}

func TestLiquidateShort(t *testing.T) {
	e := newTestEngine(t)

	// Short loses when price rises. size 10000, collateral 1000, entry 1.0,
	// price 1.09 → loss 900, remaining 100 < maintenance 1000.
	if err := e.OpenPosition(bob, 10000, Short, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 1_090_000, 20)

	out, err := e.Liquidate(keeper, bob, 20)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if out.Value() != 100 {
		t.Errorf("reward = %d, want 100", out.Value())
	}
}

func TestLiquidatePaused(t *testing.T) {
	e := newTestEngine(t)
	if err := e.OpenPosition(alice, 10000, Long, NewCoin(1000), 10); err != nil {
		t.Fatalf("open: %v", err)
	}
	setPrice(t, e, 910_000, 20)
	if err := e.SetPaused(RoleAdmin, true, 21); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := e.Liquidate(keeper, alice, 22); !errors.Is(err, ErrMarketPaused) {
		t.Errorf("err = %v, want ErrMarketPaused", err)
	}
}

// ==============================
// Admin
// ==============================

func TestSetPaused(t *testing.T) {
	e := newTestEngine(t)

	if err := e.SetPaused(RoleLiquidityProvider, true, 2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong role: err = %v, want ErrUnauthorized", err)
	}
	if err := e.SetPaused(RoleAdmin, true, 2); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !e.IsPaused() {
		t.Error("market not paused")
	}
	if err := e.SetPaused(RoleAdmin, false, 3); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if e.IsPaused() {
		t.Error("market still paused")
	}
}

func TestEditLeverage(t *testing.T) {
	e := newTestEngine(t)

	if err := e.EditLeverage(RoleAdmin, 20, 2); err != nil {
		t.Fatalf("edit leverage: %v", err)
	}
	if e.Leverage() != 20 {
		t.Errorf("leverage = %d, want 20", e.Leverage())
	}

	// Zero is rejected: the maintenance-margin formula divides by leverage.
	if err := e.EditLeverage(RoleAdmin, 0, 3); !errors.Is(err, ErrInvalidLeverage) {
		t.Errorf("err = %v, want ErrInvalidLeverage", err)
	}
	if err := e.EditLeverage(RoleOracleOperator, 5, 3); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong role: err = %v, want ErrUnauthorized", err)
	}
}

// ==============================
// Restore
// ==============================

func TestRestoreSnapshot(t *testing.T) {
	market, _ := NewMarket("BTC-USD", 10)
	e := NewEngine(market, NewLiquidityPool(), NewPriceFeed())

	e.Restore(Snapshot{
		PoolBalance: 5000,
		Leverage:    25,
		Paused:      true,
		Positions: []*Position{
			{Owner: alice, Size: 1000, Collateral: 100, EntryPrice: 1_000_000, Direction: Long, OpenedAt: 7},
		},
		Price:       2_000_000,
		LastUpdated: 99,
	})

	if e.PoolBalance() != 5000 || e.Leverage() != 25 || !e.IsPaused() {
		t.Errorf("restored state = {pool %d, lev %d, paused %v}", e.PoolBalance(), e.Leverage(), e.IsPaused())
	}
	if pos := e.PositionOf(alice); pos == nil || pos.Size != 1000 {
		t.Error("position not restored")
	}
	price, updated := e.GetPrice()
	if price != 2_000_000 || updated != 99 {
		t.Errorf("feed = (%d, %d), want (2000000, 99)", price, updated)
	}
}
