package engine

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openperp/margind/pkg/metrics"
)

// Persister durably records committed mutations. Implemented by the pebble
// store; nil disables persistence (tests).
type Persister interface {
	SavePool(balance uint64) error
	SaveMarket(leverage uint64, paused bool) error
	SavePosition(pos *Position) error
	DeletePosition(owner common.Address) error
	SaveFeed(price uint64, lastUpdated int64) error
}

// Snapshot is the persisted state restored on boot.
type Snapshot struct {
	PoolBalance uint64
	Leverage    uint64
	Paused      bool
	Positions   []*Position
	Price       uint64
	LastUpdated int64
}

// Engine is the margin engine for one Market + LiquidityPool + PriceFeed
// triple. A single mutex serializes all mutating calls, standing in for the
// host substrate's single-writer-at-a-time guarantee; every call validates
// all preconditions before touching state, so a failure leaves zero change.
type Engine struct {
	mu     sync.Mutex
	market *Market
	pool   *LiquidityPool
	feed   *PriceFeed

	// Optional collaborators, set after construction.
	Logger *zap.SugaredLogger
	Store  Persister
	Sink   EventSink
}

// NewEngine wires a market, pool and price feed into an engine.
func NewEngine(market *Market, pool *LiquidityPool, feed *PriceFeed) *Engine {
	return &Engine{
		market: market,
		pool:   pool,
		feed:   feed,
		Logger: zap.NewNop().Sugar(),
	}
}

// Restore overwrites in-memory state from a persisted snapshot.
// Called once on boot, before the engine serves calls.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.restore(s.PoolBalance)
	if s.Leverage > 0 {
		e.market.Leverage = s.Leverage
	}
	e.market.Paused = s.Paused
	for _, pos := range s.Positions {
		e.market.insertPosition(pos)
	}
	e.feed.restore(s.Price, s.LastUpdated)
	metrics.PoolBalance.Set(float64(s.PoolBalance))
}

// ==============================
// Liquidity
// ==============================

// AddLiquidity deposits LP capital into the pool and returns the new total.
func (e *Engine) AddLiquidity(role Role, provider common.Address, c Coin, now int64) (uint64, error) {
	if err := requireRole(role, RoleLiquidityProvider); err != nil {
		return 0, e.reject("add_liquidity", err)
	}
	if c.IsZero() {
		return 0, e.reject("add_liquidity", ErrZeroAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pool.Deposit(c)
	balance := e.pool.Balance()
	e.persistPool()
	e.emit(newEvent(EvLiquidityAdded, now, LiquidityEvent{Provider: provider, Amount: c.Value(), Balance: balance}))
	e.Logger.Infow("liquidity_added", "provider", provider.Hex(), "amount", c.Value(), "balance", balance)
	return balance, nil
}

// RemoveLiquidity withdraws LP capital, checked only against the raw pool
// balance. The pause flag and open-position collateral are deliberately not
// consulted: LPs can drain down to the amount backing open positions.
func (e *Engine) RemoveLiquidity(role Role, provider common.Address, amount uint64, now int64) (Coin, error) {
	if err := requireRole(role, RoleLiquidityProvider); err != nil {
		return ZeroCoin(), e.reject("remove_liquidity", err)
	}
	if amount == 0 {
		return ZeroCoin(), e.reject("remove_liquidity", ErrZeroAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.pool.Withdraw(amount)
	if err != nil {
		return ZeroCoin(), e.reject("remove_liquidity", err)
	}
	balance := e.pool.Balance()
	e.persistPool()
	e.emit(newEvent(EvLiquidityRemoved, now, LiquidityEvent{Provider: provider, Amount: amount, Balance: balance}))
	e.Logger.Infow("liquidity_removed", "provider", provider.Hex(), "amount", amount, "balance", balance)
	return out, nil
}

// ==============================
// Position lifecycle
// ==============================

// OpenPosition opens a new position or merges into the caller's existing one.
// The supplied collateral is deposited into the pool on success; the merged
// entry price is the size-weighted average of old entry and current oracle
// price, computed at 128-bit width before the division.
func (e *Engine) OpenPosition(owner common.Address, size uint64, dir Direction, collateral Coin, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market.Paused {
		return e.reject("open", ErrMarketPaused)
	}
	if size == 0 {
		return e.reject("open", ErrInvalidSize)
	}
	if !dir.Valid() {
		return e.reject("open", ErrInvalidDirection)
	}
	price, _ := e.feed.Price()
	if price == 0 {
		return e.reject("open", ErrInvalidPrice)
	}

	col := collateral.Value()
	leverage := e.market.Leverage
	existing := e.market.Position(owner)

	if existing == nil {
		if col == 0 || !coversLeverage(col, leverage, size) {
			return e.reject("open", ErrInvalidCollateral)
		}
		e.pool.Deposit(collateral)
		pos := &Position{
			Owner:      owner,
			Size:       size,
			Collateral: col,
			EntryPrice: price,
			Direction:  dir,
			OpenedAt:   now,
		}
		e.market.insertPosition(pos)
		e.persistPool()
		e.persistPosition(pos)
		metrics.PositionsOpened.WithLabelValues("new").Inc()
		e.emit(newEvent(EvPositionOpened, now, PositionEvent{
			Owner: owner, Size: size, Collateral: col, EntryPrice: price, Direction: dir.String(),
		}))
		e.Logger.Infow("position_opened", "owner", owner.Hex(), "size", size, "collateral", col, "entry", price, "dir", dir.String())
		return nil
	}

	// Merge into the existing position.
	if existing.Direction != dir {
		return e.reject("open", ErrDirectionMismatch)
	}
	newSize := existing.Size + size
	newCol := existing.Collateral + col
	if !coversLeverage(newCol, leverage, newSize) {
		return e.reject("open", ErrInvalidCollateral)
	}
	newEntry := weightedEntry(existing.EntryPrice, existing.Size, price, size, newSize)

	e.pool.Deposit(collateral)
	existing.Size = newSize
	existing.Collateral = newCol
	existing.EntryPrice = newEntry
	// OpenedAt stays fixed at first creation.
	e.persistPool()
	e.persistPosition(existing)
	metrics.PositionsOpened.WithLabelValues("merge").Inc()
	e.emit(newEvent(EvPositionUpdated, now, PositionEvent{
		Owner: owner, Size: newSize, Collateral: newCol, EntryPrice: newEntry, Direction: dir.String(),
	}))
	e.Logger.Infow("position_updated", "owner", owner.Hex(), "size", newSize, "collateral", newCol, "entry", newEntry)
	return nil
}

// ClosePosition closes the caller's position at the current oracle price and
// pays out collateral adjusted by pnl, floored at zero. If the pool cannot
// cover the payout the whole call aborts and the position stays open.
func (e *Engine) ClosePosition(owner common.Address, now int64) (Coin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market.Paused {
		return ZeroCoin(), e.reject("close", ErrMarketPaused)
	}
	pos := e.market.Position(owner)
	if pos == nil {
		return ZeroCoin(), e.reject("close", ErrPositionNotFound)
	}
	price, _ := e.feed.Price()
	if price == 0 {
		return ZeroCoin(), e.reject("close", ErrInvalidPrice)
	}

	pnl, profit := ComputePnL(pos.Size, pos.EntryPrice, price, pos.Direction)
	var ret uint64
	if profit {
		ret = pos.Collateral + pnl
	} else if pnl < pos.Collateral {
		ret = pos.Collateral - pnl
	}
	// A loss meeting or exceeding collateral returns exactly zero.

	if ret > e.pool.Balance() {
		return ZeroCoin(), e.reject("close", ErrInsufficientLiquidity)
	}

	e.market.deletePosition(owner)
	out, _ := e.pool.Withdraw(ret)
	e.persistPool()
	e.persistDelete(owner)
	outcome := "loss"
	if profit {
		outcome = "profit"
	}
	metrics.PositionsClosed.WithLabelValues(outcome).Inc()
	e.emit(newEvent(EvPositionClosed, now, CloseEvent{
		Owner: owner, Size: pos.Size, Pnl: pnl, Profit: profit, ExitPrice: price, Returned: ret,
	}))
	e.Logger.Infow("position_closed", "owner", owner.Hex(), "pnl", pnl, "profit", profit, "exit", price, "returned", ret)
	return out, nil
}

// Liquidate forcibly closes a losing, under-margined position. Callable by
// any keeper, not just the owner. A position in profit is never
// liquidatable. A bankrupt position (loss ≥ collateral) pays the keeper
// nothing; otherwise the keeper receives the entire remaining collateral.
func (e *Engine) Liquidate(keeper, owner common.Address, now int64) (Coin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market.Paused {
		return ZeroCoin(), e.reject("liquidate", ErrMarketPaused)
	}
	pos := e.market.Position(owner)
	if pos == nil {
		return ZeroCoin(), e.reject("liquidate", ErrPositionNotFound)
	}
	price, _ := e.feed.Price()
	if price == 0 {
		return ZeroCoin(), e.reject("liquidate", ErrInvalidPrice)
	}

	loss, profit := ComputePnL(pos.Size, pos.EntryPrice, price, pos.Direction)
	if profit {
		return ZeroCoin(), e.reject("liquidate", ErrCannotLiquidate)
	}

	maintenance := MaintenanceMargin(pos.Size, e.market.Leverage)
	bankrupt := loss >= pos.Collateral
	var reward uint64
	if !bankrupt {
		remaining := pos.Collateral - loss
		if remaining >= maintenance {
			return ZeroCoin(), e.reject("liquidate", ErrCannotLiquidate)
		}
		reward = remaining
	}

	if reward > e.pool.Balance() {
		return ZeroCoin(), e.reject("liquidate", ErrInsufficientLiquidity)
	}

	e.market.deletePosition(owner)
	out, _ := e.pool.Withdraw(reward)
	e.persistPool()
	e.persistDelete(owner)
	metrics.PositionsLiquidated.Inc()
	e.emit(newEvent(EvPositionLiquidated, now, LiquidationEvent{
		Owner: owner, Liquidator: keeper, Size: pos.Size, Collateral: pos.Collateral,
		Loss: loss, Paid: reward, ExitPrice: price,
	}))
	e.Logger.Infow("position_liquidated",
		"owner", owner.Hex(), "liquidator", keeper.Hex(),
		"size", pos.Size, "collateral", pos.Collateral, "loss", loss, "paid", reward)
	return out, nil
}

// ==============================
// Oracle
// ==============================

// UpdatePrice commits a new oracle price. Rejects zero prices and
// timestamps older than the feed's last update.
func (e *Engine) UpdatePrice(role Role, price uint64, now int64) error {
	if err := requireRole(role, RoleOracleOperator); err != nil {
		return e.reject("update_price", err)
	}
	if err := e.feed.Update(price, now); err != nil {
		return e.reject("update_price", err)
	}
	if e.Store != nil {
		if err := e.Store.SaveFeed(price, now); err != nil {
			e.Logger.Warnw("persist_failed", "what", "feed", "err", err)
		}
	}
	metrics.OraclePrice.Set(float64(price))
	e.emit(newEvent(EvPriceUpdated, now, PriceEvent{Price: price, UpdatedAt: now}))
	return nil
}

// GetPrice returns the last committed price and its timestamp.
func (e *Engine) GetPrice() (uint64, int64) {
	return e.feed.Price()
}

// ==============================
// Admin
// ==============================

// SetPaused flips the market pause flag. Open/close/liquidate honor it;
// liquidity operations do not.
func (e *Engine) SetPaused(role Role, paused bool, now int64) error {
	if err := requireRole(role, RoleAdmin); err != nil {
		return e.reject("set_paused", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.market.Paused = paused
	e.persistMarket()
	e.emit(newEvent(EvPauseToggled, now, AdminEvent{Paused: paused}))
	e.Logger.Infow("pause_toggled", "paused", paused)
	return nil
}

// EditLeverage overwrites the market leverage cap. Zero is rejected: the
// maintenance-margin formula divides by leverage, and a zero cap would turn
// every later liquidation into a crash.
func (e *Engine) EditLeverage(role Role, leverage uint64, now int64) error {
	if err := requireRole(role, RoleAdmin); err != nil {
		return e.reject("edit_leverage", err)
	}
	if leverage == 0 {
		return e.reject("edit_leverage", ErrInvalidLeverage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.market.Leverage = leverage
	e.persistMarket()
	e.emit(newEvent(EvLeverageChanged, now, AdminEvent{Leverage: leverage}))
	e.Logger.Infow("leverage_changed", "leverage", leverage)
	return nil
}

// ==============================
// Queries
// ==============================

// PoolBalance returns the current pooled balance.
func (e *Engine) PoolBalance() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Balance()
}

// IsPaused reports the market pause flag.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market.Paused
}

// Leverage returns the market leverage cap.
func (e *Engine) Leverage() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market.Leverage
}

// Symbol returns the market symbol.
func (e *Engine) Symbol() string {
	return e.market.Symbol
}

// PositionOf returns a copy of the owner's open position, or nil.
func (e *Engine) PositionOf(owner common.Address) *Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.market.Position(owner)
	if pos == nil {
		return nil
	}
	cp := *pos
	return &cp
}

// Positions returns copies of all open positions.
func (e *Engine) Positions() []*Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Position, 0, e.market.PositionCount())
	for _, pos := range e.market.Positions() {
		cp := *pos
		out = append(out, &cp)
	}
	return out
}

// ==============================
// Internal helpers
// ==============================

// reject counts and returns a failed precondition.
func (e *Engine) reject(op string, err error) error {
	metrics.OpsRejected.WithLabelValues(op, reason(err)).Inc()
	return err
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMarketPaused):
		return "market_paused"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid_direction"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrInvalidCollateral):
		return "invalid_collateral"
	case errors.Is(err, ErrDirectionMismatch):
		return "direction_mismatch"
	case errors.Is(err, ErrPositionNotFound):
		return "position_not_found"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrStaleUpdate):
		return "stale_update"
	case errors.Is(err, ErrCannotLiquidate):
		return "cannot_liquidate"
	case errors.Is(err, ErrInvalidLeverage):
		return "invalid_leverage"
	default:
		return "other"
	}
}

func (e *Engine) emit(ev Event) {
	if e.Sink != nil {
		e.Sink.Publish(ev)
	}
}

func (e *Engine) persistPool() {
	metrics.PoolBalance.Set(float64(e.pool.Balance()))
	if e.Store == nil {
		return
	}
	if err := e.Store.SavePool(e.pool.Balance()); err != nil {
		e.Logger.Warnw("persist_failed", "what", "pool", "err", err)
	}
}

func (e *Engine) persistMarket() {
	if e.Store == nil {
		return
	}
	if err := e.Store.SaveMarket(e.market.Leverage, e.market.Paused); err != nil {
		e.Logger.Warnw("persist_failed", "what", "market", "err", err)
	}
}

func (e *Engine) persistPosition(pos *Position) {
	if e.Store == nil {
		return
	}
	if err := e.Store.SavePosition(pos); err != nil {
		e.Logger.Warnw("persist_failed", "what", "position", "owner", pos.Owner.Hex(), "err", err)
	}
}

func (e *Engine) persistDelete(owner common.Address) {
	if e.Store == nil {
		return
	}
	if err := e.Store.DeletePosition(owner); err != nil {
		e.Logger.Warnw("persist_failed", "what", "position_delete", "owner", owner.Hex(), "err", err)
	}
}
