package orderbook

import (
	"errors"

	"matchbook/domain/price"
)

var (
	// Admission failures. These reject an intent before any book or storage
	// mutation and are reported to the caller as a reason, not a fault.
	ErrInvalidSymbol   = errors.New("symbol is required")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrInvalidPrice    = errors.New("price must be > 0 for LIMIT")
	ErrInvalidSide     = errors.New("side must be BUY or SELL")
	ErrInvalidType     = errors.New("order type must be LIMIT or MARKET")

	// ErrLevelOverflow rejects an order whose remainder would push the
	// total quantity of its price level past math.MaxInt64.
	ErrLevelOverflow = errors.New("price level quantity overflow")

	// ErrDuplicateOrder is returned when an id is already resting in a book.
	ErrDuplicateOrder = errors.New("order already resting")

	// ErrInvariant reports a broken book invariant. The request that
	// detected it fails; the book is left untouched.
	ErrInvariant = errors.New("order book invariant violated")
)

// IsRejection reports whether err is an admission failure, including
// price normalisation errors.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidSymbol,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrInvalidSide,
		ErrInvalidType,
		ErrLevelOverflow,
		price.ErrInvalidScale,
		price.ErrOverflow,
		price.ErrUnderflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
