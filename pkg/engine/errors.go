package engine

import "errors"

// Error taxonomy for the margin engine. Every violated precondition aborts
// the whole call with one of these; there is no partial-effect failure path.
var (
	ErrUnauthorized          = errors.New("caller lacks required role")
	ErrMarketPaused          = errors.New("market is paused")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrInvalidSize           = errors.New("position size must be positive")
	ErrInvalidDirection      = errors.New("direction must be long or short")
	ErrInvalidPrice          = errors.New("price must be positive")
	ErrInvalidCollateral     = errors.New("collateral does not satisfy leverage requirement")
	ErrDirectionMismatch     = errors.New("cannot merge positions with opposing directions")
	ErrPositionNotFound      = errors.New("no open position for account")
	ErrInsufficientLiquidity = errors.New("pool balance cannot cover payout")
	ErrStaleUpdate           = errors.New("price update is older than last recorded update")
	ErrCannotLiquidate       = errors.New("position is not liquidatable")
	ErrInvalidLeverage       = errors.New("leverage must be positive")
)
