// Package amount implements exact fixed-point arithmetic for on-chain
// balances, reserves, and fee accounting. All values are integers in a
// token's smallest unit; floating point is never used (§4.2, §9).
package amount

import (
	"fmt"
	"math/big"
)

// FeeGrowthScale is the fixed-point scale applied to per-LP-token fee
// growth accumulators (§4.2, §4.7.1).
var FeeGrowthScale = big.NewInt(1_000_000_000_000_000_000) // 1e18

// Amount is an exact non-negative integer denominated in a token's
// smallest unit. It wraps math/big.Int so balances and reserves exceed
// 128 bits without precision loss.
type Amount struct {
	v *big.Int
}

// Zero returns the additive identity.
func Zero() Amount { return Amount{v: new(big.Int)} }

// FromUint64 constructs an Amount from a uint64 smallest-unit value.
func FromUint64(v uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(v)}
}

// FromString parses a base-10 integer string of smallest units. Negative
// values and malformed strings are rejected.
func FromString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: negative amount %q", s)
	}
	return Amount{v: v}, nil
}

// String renders the amount as a base-10 smallest-unit integer, the form
// used for persisted balance and reserve fields (§6).
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.v == nil || a.v.Sign() == 0
}

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

// Cmp compares a to b.
func (a Amount) Cmp(b Amount) int {
	return bigOf(a).Cmp(bigOf(b))
}

func bigOf(a Amount) *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a+b.
func Add(a, b Amount) Amount {
	return Amount{v: new(big.Int).Add(bigOf(a), bigOf(b))}
}

// Sub returns a-b. Callers must ensure a >= b; state-transition code must
// reject underflow before calling Sub (balances never go negative).
func Sub(a, b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Amount{}, fmt.Errorf("amount: underflow %s - %s", a, b)
	}
	return Amount{v: new(big.Int).Sub(bigOf(a), bigOf(b))}, nil
}

// MulDivFloor computes floor(a*b/c) using exact big-integer arithmetic,
// the multiply-then-divide pattern mandated for price*quantity and fee
// accounting (§4.2). c must be strictly positive.
func MulDivFloor(a, b Amount, c Amount) (Amount, error) {
	if c.Sign() <= 0 {
		return Amount{}, fmt.Errorf("amount: mul-div by non-positive divisor")
	}
	num := new(big.Int).Mul(bigOf(a), bigOf(b))
	out := new(big.Int).Div(num, bigOf(c))
	return Amount{v: out}, nil
}

// MulDivFloorInt is MulDivFloor with plain int64 multiplier/divisor, used
// for basis-point fee math (e.g. amount*9970/10000).
func MulDivFloorInt(a Amount, mul, div int64) (Amount, error) {
	if div <= 0 {
		return Amount{}, fmt.Errorf("amount: mul-div by non-positive divisor")
	}
	num := new(big.Int).Mul(bigOf(a), big.NewInt(mul))
	out := new(big.Int).Div(num, big.NewInt(div))
	return Amount{v: out}, nil
}

// ScaleToSmallestUnit converts a whole number of display units into
// smallest-unit form (whole * 10^precision) given a token's decimal
// precision; fractional display amounts are not accepted.
// Conversions between display and storage form always route through
// integer arithmetic (§4.2); floats are never used.
func ScaleToSmallestUnit(whole int64, precision uint8) Amount {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	return Amount{v: new(big.Int).Mul(big.NewInt(whole), scale)}
}

// FeeGrowthDelta computes (feeAmount * FeeGrowthScale) / totalLP, the
// per-LP-token fee growth increment from §4.7.1. Returns zero when
// totalLP is zero (no LP shares yet to accrue against).
func FeeGrowthDelta(feeAmount Amount, totalLP Amount) Amount {
	if totalLP.Sign() <= 0 {
		return Zero()
	}
	num := new(big.Int).Mul(bigOf(feeAmount), FeeGrowthScale)
	return Amount{v: new(big.Int).Div(num, bigOf(totalLP))}
}
