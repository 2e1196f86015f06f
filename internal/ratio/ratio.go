// Package ratio implements the exact rational multiplier used to convert a
// USD-denominated win amount into units of an alternate payout asset.
//
// All intermediate arithmetic runs on shopspring/decimal so that
// value*numerator never overflows, even for values near math.MaxUint64.
package ratio

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRatio is returned when a ratio is built with a zero denominator.
	ErrInvalidRatio = errors.New("ratio: denominator must be non-zero")

	// ErrOverflow is returned when a converted amount does not fit in a uint64.
	ErrOverflow = errors.New("ratio: converted amount overflows uint64")
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Ratio is an immutable numerator/denominator pair.
type Ratio struct {
	num uint64
	den uint64
}

// New builds a Ratio. The denominator must be non-zero.
func New(numerator, denominator uint64) (Ratio, error) {
	if denominator == 0 {
		return Ratio{}, ErrInvalidRatio
	}
	return Ratio{num: numerator, den: denominator}, nil
}

// MustNew is New for package-level defaults and tests; it panics on a zero
// denominator.
func MustNew(numerator, denominator uint64) Ratio {
	r, err := New(numerator, denominator)
	if err != nil {
		panic(err)
	}
	return r
}

// Numerator returns the numerator.
func (r Ratio) Numerator() uint64 { return r.num }

// Denominator returns the denominator.
func (r Ratio) Denominator() uint64 { return r.den }

// IsZero reports whether r is the zero value (never produced by New).
func (r Ratio) IsZero() bool { return r.den == 0 }

// Multiply returns floor(value * numerator / denominator). Fractional units
// are truncated toward zero.
func (r Ratio) Multiply(value uint64) (uint64, error) {
	if r.den == 0 {
		return 0, ErrInvalidRatio
	}
	product := toDecimal(value).Mul(toDecimal(r.num))
	q, _ := product.QuoRem(toDecimal(r.den), 0)

	out := q.BigInt()
	if out.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, value, r.num, r.den)
	}
	return out.Uint64(), nil
}

// String renders the ratio as "num/den".
func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.num, r.den)
}

type ratioJSON struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// MarshalJSON encodes the ratio as {"numerator":n,"denominator":d}.
func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal(ratioJSON{Numerator: r.num, Denominator: r.den})
}

// UnmarshalJSON decodes and re-validates the denominator.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var raw ratioJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := New(raw.Numerator, raw.Denominator)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func toDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
