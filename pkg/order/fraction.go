package order

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Fraction is a numerator/denominator pair describing how much of an order
// is (or is being) settled. Stored fractions are kept in lowest terms with
// numerator <= denominator.
type Fraction struct {
	Numerator   *uint256.Int `json:"numerator"`
	Denominator *uint256.Int `json:"denominator"`
}

var (
	// ErrZeroDenominator is returned for any fraction with denominator zero
	ErrZeroDenominator = errors.New("fraction denominator is zero")
	// ErrBadFraction is returned when a requested fill fraction is zero or
	// exceeds one
	ErrBadFraction = errors.New("bad fill fraction")
	// ErrFractionOverflow is returned when cumulative fill bookkeeping
	// exceeds the 2^120 working bound even after reduction
	ErrFractionOverflow = errors.New("fill fraction exceeds working bound")
)

// Cumulative fill terms must stay below 2^120 after gcd reduction so that
// common-denominator products never overflow 256 bits.
var fractionBound = new(uint256.Int).Lsh(uint256.NewInt(1), 120)

// NewFraction builds a fraction from small integer terms
func NewFraction(num, den uint64) Fraction {
	return Fraction{Numerator: uint256.NewInt(num), Denominator: uint256.NewInt(den)}
}

// ZeroFraction is the canonical "nothing to fill" result (0/1)
func ZeroFraction() Fraction {
	return NewFraction(0, 1)
}

// WholeFraction is the canonical full fill (1/1)
func WholeFraction() Fraction {
	return NewFraction(1, 1)
}

// IsZero reports a zero numerator (nothing filled)
func (f Fraction) IsZero() bool {
	return f.Numerator == nil || f.Numerator.IsZero()
}

// IsWhole reports numerator == denominator (fully filled)
func (f Fraction) IsWhole() bool {
	return f.Numerator != nil && f.Denominator != nil &&
		!f.Numerator.IsZero() && f.Numerator.Eq(f.Denominator)
}

// Validate checks the requested-fill invariants: nonzero terms and
// numerator <= denominator
func (f Fraction) Validate() error {
	if f.Numerator == nil || f.Denominator == nil {
		return fmt.Errorf("%w: missing terms", ErrBadFraction)
	}
	if f.Denominator.IsZero() {
		return ErrZeroDenominator
	}
	if f.Numerator.IsZero() || f.Numerator.Gt(f.Denominator) {
		return fmt.Errorf("%w: %s/%s", ErrBadFraction, f.Numerator.Dec(), f.Denominator.Dec())
	}
	return nil
}

// Reduce returns the fraction in lowest terms. Zero numerators normalize
// to 0/1.
func (f Fraction) Reduce() Fraction {
	if f.IsZero() {
		return ZeroFraction()
	}
	d := gcd(f.Numerator, f.Denominator)
	return Fraction{
		Numerator:   new(uint256.Int).Div(f.Numerator, d),
		Denominator: new(uint256.Int).Div(f.Denominator, d),
	}
}

// ApplyFill combines the stored cumulative fill with a requested fraction.
// The request is capped at the unfilled remainder, so the cumulative total
// never exceeds one. Returns the fraction actually applied and the new
// cumulative total, both in lowest terms.
func (f Fraction) ApplyFill(requested Fraction) (applied, total Fraction, err error) {
	if err := requested.Validate(); err != nil {
		return Fraction{}, Fraction{}, err
	}
	requested = requested.Reduce()

	if f.IsZero() {
		return requested, requested, nil
	}
	if f.Denominator == nil || f.Denominator.IsZero() {
		return Fraction{}, Fraction{}, ErrZeroDenominator
	}

	filledNum := new(uint256.Int).Set(f.Numerator)
	reqNum := new(uint256.Int).Set(requested.Numerator)
	den := new(uint256.Int).Set(requested.Denominator)

	// Bring both fractions to a common denominator unless they already share one
	if !f.Denominator.Eq(requested.Denominator) {
		var overflow bool
		if filledNum, overflow = new(uint256.Int).MulOverflow(f.Numerator, requested.Denominator); overflow {
			return Fraction{}, Fraction{}, ErrFractionOverflow
		}
		if reqNum, overflow = new(uint256.Int).MulOverflow(requested.Numerator, f.Denominator); overflow {
			return Fraction{}, Fraction{}, ErrFractionOverflow
		}
		if den, overflow = new(uint256.Int).MulOverflow(f.Denominator, requested.Denominator); overflow {
			return Fraction{}, Fraction{}, ErrFractionOverflow
		}
	}

	// Cap the request at the unfilled remainder
	remainder := new(uint256.Int).Sub(den, filledNum)
	if reqNum.Gt(remainder) {
		reqNum = remainder
	}
	if reqNum.IsZero() {
		// Order already fully filled
		return ZeroFraction(), f.Reduce(), nil
	}

	totalNum := new(uint256.Int).Add(filledNum, reqNum)
	applied = Fraction{Numerator: reqNum, Denominator: den}.Reduce()
	total = Fraction{Numerator: totalNum, Denominator: den}.Reduce()

	if total.Numerator.Gt(fractionBound) || total.Denominator.Gt(fractionBound) {
		return Fraction{}, Fraction{}, ErrFractionOverflow
	}
	return applied, total, nil
}

// gcd computes the greatest common divisor via Euclid's algorithm.
// Both operands must be nonzero.
func gcd(a, b *uint256.Int) *uint256.Int {
	x := new(uint256.Int).Set(a)
	y := new(uint256.Int).Set(b)
	for !y.IsZero() {
		x, y = y, new(uint256.Int).Mod(x, y)
	}
	return x
}
