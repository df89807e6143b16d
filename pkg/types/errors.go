package types

import "errors"

// ErrUnauthorized means the CLOB refused our API credentials. No retry can
// recover from it.
var ErrUnauthorized = errors.New("clob unauthorized")

// Known Polymarket CLOB API error codes.
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
)
