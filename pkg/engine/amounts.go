package engine

import (
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// Pure fraction arithmetic over 256-bit amounts.
// Offer-side amounts round down (payers never over-pay for truncation),
// consideration-side amounts round up (recipients never under-receive).

// mulDiv computes a*b/den with the requested rounding direction
func mulDiv(a, b, den *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return nil, order.ErrZeroDenominator
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	quotient := new(uint256.Int).Div(product, den)
	if roundUp {
		remainder := new(uint256.Int).Mod(product, den)
		if !remainder.IsZero() {
			// quotient < product here, so the increment cannot overflow
			quotient.Add(quotient, uint256.NewInt(1))
		}
	}
	return quotient, nil
}

// applyFraction scales value by num/den: floor(num*value/den) by default,
// ceiling when roundUp is set
func applyFraction(num, den, value *uint256.Int, roundUp bool) (*uint256.Int, error) {
	return mulDiv(num, value, den, roundUp)
}

// applyFractionExact scales value by num/den and requires the division to
// leave no remainder. Whole fractions bypass both the check and the
// computation.
func applyFractionExact(num, den, value *uint256.Int) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return nil, order.ErrZeroDenominator
	}
	if num.Eq(den) {
		return new(uint256.Int).Set(value), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(num, value)
	if overflow {
		return nil, ErrAmountOverflow
	}
	quotient, remainder := new(uint256.Int).Div(product, den), new(uint256.Int).Mod(product, den)
	if !remainder.IsZero() {
		return nil, ErrInexactFraction
	}
	return quotient, nil
}

// currentAmount locates the amount at point num/den between two range
// endpoints: (start*(den-num) + end*num) / den, rounded per roundUp.
// With the elapsed/duration ratio this yields the time-interpolated dutch
// price; the probabilistic path substitutes a randomness-derived ratio to
// pick a point in the same range. Equal endpoints reuse the single value
// without computing.
func currentAmount(start, end, num, den *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return nil, order.ErrZeroDenominator
	}
	if start.Eq(end) {
		return new(uint256.Int).Set(start), nil
	}
	point := num
	if point.Gt(den) {
		point = den
	}
	rest := new(uint256.Int).Sub(den, point)

	fromStart, overflow := new(uint256.Int).MulOverflow(start, rest)
	if overflow {
		return nil, ErrAmountOverflow
	}
	fromEnd, overflow := new(uint256.Int).MulOverflow(end, point)
	if overflow {
		return nil, ErrAmountOverflow
	}
	total, overflow := new(uint256.Int).AddOverflow(fromStart, fromEnd)
	if overflow {
		return nil, ErrAmountOverflow
	}

	amount := new(uint256.Int).Div(total, den)
	if roundUp {
		remainder := new(uint256.Int).Mod(total, den)
		if !remainder.IsZero() {
			amount.Add(amount, uint256.NewInt(1))
		}
	}
	return amount, nil
}
