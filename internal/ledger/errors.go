package ledger

import "errors"

var (
	// ErrMissingPrice means an open position's symbol has no current price
	// in the supplied price map, so equity cannot be computed.
	ErrMissingPrice = errors.New("missing current price for open position")

	// ErrInsufficientMargin means the entry would drive the cash balance
	// negative.
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrPositionLimit means the configured max open position count is
	// already reached.
	ErrPositionLimit = errors.New("position limit exceeded")

	// ErrDuplicatePosition means a position is already open for the
	// (symbol, side) key. Pyramiding requires closing first.
	ErrDuplicatePosition = errors.New("position already open for symbol and side")

	// ErrPositionNotFound means no open position matches the (symbol, side)
	// key.
	ErrPositionNotFound = errors.New("position not found")
)
