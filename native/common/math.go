package common

import "math/big"

// BasisPoints is the shared fixed-point scale: all percentages, strikes and
// APRs in the protocol are integer basis points out of 10,000.
var BasisPoints = big.NewInt(10_000)

// YearSeconds is the accrual year used by every APR calculation.
const YearSeconds = 365 * 24 * 3600

// MulDiv computes a*b/den with the result truncated toward zero. den must be
// non-zero.
func MulDiv(a, b, den *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// MulDivUp computes a*b/den rounded away from zero for positive operands.
// Fee holds use it so rounding never shorts the counterparty owed the fee.
func MulDivUp(a, b, den *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// BigMin returns the smaller of a and b as a fresh value.
func BigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// BigMax returns the larger of a and b as a fresh value.
func BigMax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// CloneBig copies v, mapping nil to zero.
func CloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
