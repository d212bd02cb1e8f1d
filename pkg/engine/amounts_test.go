package engine

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"github.com/smemoshui/seaport-core/pkg/order"
)

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func TestMulDivRounding(t *testing.T) {
	tests := []struct {
		name    string
		a, b    uint64
		den     uint64
		roundUp bool
		want    uint64
	}{
		{"exact division floor", 10, 6, 3, false, 20},
		{"exact division ceil", 10, 6, 3, true, 20},
		{"truncating floor", 7, 3, 2, false, 10},
		{"truncating ceil", 7, 3, 2, true, 11},
		{"zero value", 0, 5, 3, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mulDiv(u(tt.a), u(tt.b), u(tt.den), tt.roundUp)
			if err != nil {
				t.Fatalf("mulDiv: %v", err)
			}
			if !got.Eq(u(tt.want)) {
				t.Fatalf("mulDiv(%d, %d, %d, %v) = %s, want %d", tt.a, tt.b, tt.den, tt.roundUp, got.Dec(), tt.want)
			}
		})
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	_, err := mulDiv(u(1), u(1), u(0), false)
	if !errors.Is(err, order.ErrZeroDenominator) {
		t.Fatalf("expected ErrZeroDenominator, got %v", err)
	}
	if !IsArithmetic(err) {
		t.Fatalf("zero denominator should classify as arithmetic: %v", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	_, err := mulDiv(huge, u(4), u(1), false)
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	if !IsArithmetic(err) {
		t.Fatalf("overflow should classify as arithmetic: %v", err)
	}
}

func TestProperty_MulDivCeilFloorDifferByAtMostOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := u(rapid.Uint64().Draw(t, "a"))
		b := u(rapid.Uint64Range(0, 1<<32).Draw(t, "b"))
		den := u(rapid.Uint64Range(1, 1<<32).Draw(t, "den"))

		floor, err := mulDiv(a, b, den, false)
		if err != nil {
			t.Fatalf("floor: %v", err)
		}
		ceil, err := mulDiv(a, b, den, true)
		if err != nil {
			t.Fatalf("ceil: %v", err)
		}
		if ceil.Lt(floor) {
			t.Fatalf("ceil %s < floor %s", ceil.Dec(), floor.Dec())
		}
		diff := new(uint256.Int).Sub(ceil, floor)
		if diff.Gt(u(1)) {
			t.Fatalf("ceil %s and floor %s differ by more than one", ceil.Dec(), floor.Dec())
		}
		// ceil exceeds floor exactly when the division truncates
		product := new(uint256.Int).Mul(a, b)
		exact := new(uint256.Int).Mod(product, den).IsZero()
		if exact != floor.Eq(ceil) {
			t.Fatalf("exact=%v but floor=%s ceil=%s", exact, floor.Dec(), ceil.Dec())
		}
	})
}

func TestApplyFractionExact(t *testing.T) {
	t.Run("whole fraction bypasses division", func(t *testing.T) {
		got, err := applyFractionExact(u(7), u(7), u(1000))
		if err != nil {
			t.Fatalf("applyFractionExact: %v", err)
		}
		if !got.Eq(u(1000)) {
			t.Fatalf("got %s, want 1000", got.Dec())
		}
	})
	t.Run("inexact division rejected", func(t *testing.T) {
		_, err := applyFractionExact(u(1), u(3), u(10))
		if !errors.Is(err, ErrInexactFraction) {
			t.Fatalf("expected ErrInexactFraction, got %v", err)
		}
		if !IsArithmetic(err) {
			t.Fatalf("inexact fraction should classify as arithmetic: %v", err)
		}
	})
}

func TestProperty_ApplyFractionExactDivisibleAmounts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		den := u(rapid.Uint64Range(1, 1<<20).Draw(t, "den"))
		num := u(rapid.Uint64Range(1, den.Uint64()).Draw(t, "num"))
		k := u(rapid.Uint64Range(0, 1<<20).Draw(t, "k"))

		value := new(uint256.Int).Mul(k, den)
		got, err := applyFractionExact(num, den, value)
		if err != nil {
			t.Fatalf("applyFractionExact(%s/%s, %s): %v", num.Dec(), den.Dec(), value.Dec(), err)
		}
		want := new(uint256.Int).Mul(k, num)
		if !got.Eq(want) {
			t.Fatalf("got %s, want %s", got.Dec(), want.Dec())
		}
	})
}

func TestCurrentAmountEndpoints(t *testing.T) {
	start, end := u(1000), u(500)

	got, err := currentAmount(start, end, u(0), u(100), false)
	if err != nil {
		t.Fatalf("at start: %v", err)
	}
	if !got.Eq(start) {
		t.Fatalf("point 0/100 = %s, want %s", got.Dec(), start.Dec())
	}

	got, err = currentAmount(start, end, u(100), u(100), false)
	if err != nil {
		t.Fatalf("at end: %v", err)
	}
	if !got.Eq(end) {
		t.Fatalf("point 100/100 = %s, want %s", got.Dec(), end.Dec())
	}

	// points past the end clamp rather than extrapolate
	got, err = currentAmount(start, end, u(250), u(100), false)
	if err != nil {
		t.Fatalf("past end: %v", err)
	}
	if !got.Eq(end) {
		t.Fatalf("clamped point = %s, want %s", got.Dec(), end.Dec())
	}
}

func TestCurrentAmountDescendingHalfway(t *testing.T) {
	got, err := currentAmount(u(1000), u(500), u(50), u(100), false)
	if err != nil {
		t.Fatalf("currentAmount: %v", err)
	}
	if !got.Eq(u(750)) {
		t.Fatalf("halfway between 1000 and 500 = %s, want 750", got.Dec())
	}
}

func TestCurrentAmountEqualEndpointsSkipsArithmetic(t *testing.T) {
	// equal endpoints short-circuit, so even a clamping point with huge
	// values cannot overflow
	huge := new(uint256.Int).SetAllOne()
	got, err := currentAmount(huge, huge, u(3), u(7), true)
	if err != nil {
		t.Fatalf("currentAmount: %v", err)
	}
	if !got.Eq(huge) {
		t.Fatalf("got %s, want the shared endpoint", got.Dec())
	}
}

func TestProperty_CurrentAmountStaysWithinEndpoints(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := u(rapid.Uint64Range(0, 1<<40).Draw(t, "start"))
		end := u(rapid.Uint64Range(0, 1<<40).Draw(t, "end"))
		den := u(rapid.Uint64Range(1, 1<<20).Draw(t, "den"))
		num := u(rapid.Uint64Range(0, den.Uint64()).Draw(t, "num"))
		roundUp := rapid.Bool().Draw(t, "roundUp")

		got, err := currentAmount(start, end, num, den, roundUp)
		if err != nil {
			t.Fatalf("currentAmount: %v", err)
		}

		lo, hi := start, end
		if hi.Lt(lo) {
			lo, hi = hi, lo
		}
		if got.Lt(lo) || got.Gt(hi) {
			t.Fatalf("point %s/%s of [%s, %s] = %s, outside the range",
				num.Dec(), den.Dec(), start.Dec(), end.Dec(), got.Dec())
		}
	})
}

func TestProperty_CurrentAmountRoundingDirection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := u(rapid.Uint64Range(0, 1<<40).Draw(t, "start"))
		end := u(rapid.Uint64Range(0, 1<<40).Draw(t, "end"))
		den := u(rapid.Uint64Range(1, 1<<20).Draw(t, "den"))
		num := u(rapid.Uint64Range(0, den.Uint64()).Draw(t, "num"))

		floor, err := currentAmount(start, end, num, den, false)
		if err != nil {
			t.Fatalf("floor: %v", err)
		}
		ceil, err := currentAmount(start, end, num, den, true)
		if err != nil {
			t.Fatalf("ceil: %v", err)
		}
		if ceil.Lt(floor) {
			t.Fatalf("ceil %s < floor %s", ceil.Dec(), floor.Dec())
		}
		if new(uint256.Int).Sub(ceil, floor).Gt(u(1)) {
			t.Fatalf("ceil %s and floor %s differ by more than one", ceil.Dec(), floor.Dec())
		}
	})
}
