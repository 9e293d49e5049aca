package price

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// CanonicalScale is the number of fractional digits of every book price.
	CanonicalScale = 4

	// MaxScale is the largest raw scale accepted by Normalize.
	MaxScale = 18
)

var (
	ErrInvalidScale = errors.New("price: scale out of range")
	ErrOverflow     = errors.New("price: overflow")
	ErrUnderflow    = errors.New("price: underflow")
)

var pow10 = [MaxScale + 1]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000,
	1_000_000_000, 10_000_000_000, 100_000_000_000, 1_000_000_000_000,
	10_000_000_000_000, 100_000_000_000_000, 1_000_000_000_000_000,
	10_000_000_000_000_000, 100_000_000_000_000_000, 1_000_000_000_000_000_000,
}

// Normalize converts raw, expressed with scale fractional digits, to the
// canonical scale.
//
// Scaling down truncates toward zero: digits below the canonical scale are
// dropped without error. Scaling up is range-checked before multiplying.
func Normalize(raw int64, scale int) (int64, error) {
	if scale < 0 || scale > MaxScale {
		return 0, fmt.Errorf("%w: %d", ErrInvalidScale, scale)
	}
	if scale == CanonicalScale {
		return raw, nil
	}

	if scale < CanonicalScale {
		mul := pow10[CanonicalScale-scale]
		if raw > 0 && raw > math.MaxInt64/mul {
			return 0, fmt.Errorf("%w: %d at scale %d", ErrOverflow, raw, scale)
		}
		if raw < 0 && raw < math.MinInt64/mul {
			return 0, fmt.Errorf("%w: %d at scale %d", ErrUnderflow, raw, scale)
		}
		return raw * mul, nil
	}

	// Go integer division truncates toward zero.
	return raw / pow10[scale-CanonicalScale], nil
}

// ToDecimal returns the canonical price p as a decimal value.
func ToDecimal(p int64) decimal.Decimal {
	return decimal.New(p, -CanonicalScale)
}

// Format renders a canonical price with exactly CanonicalScale digits.
func Format(p int64) string {
	return ToDecimal(p).StringFixed(CanonicalScale)
}

// Parse splits a decimal string such as "100.50" into the (raw, scale) pair
// accepted by Normalize, i.e. (10050, 2). No precision is dropped here.
func Parse(s string) (int64, int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, 0, fmt.Errorf("price: parse %q: %w", s, err)
	}

	scale := 0
	if exp := d.Exponent(); exp < 0 {
		scale = int(-exp)
	}
	if scale > MaxScale {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidScale, scale)
	}

	raw := d.Shift(int32(scale)).BigInt()
	if !raw.IsInt64() {
		if raw.Sign() > 0 {
			return 0, 0, fmt.Errorf("%w: %s", ErrOverflow, s)
		}
		return 0, 0, fmt.Errorf("%w: %s", ErrUnderflow, s)
	}
	return raw.Int64(), scale, nil
}
