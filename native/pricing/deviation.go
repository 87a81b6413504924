package pricing

import (
	"fmt"
	"math/big"
)

// DefaultMaxDeviationBips bounds how far a swap-executed price may drift from
// the independently fetched oracle price before the operation is rejected.
const DefaultMaxDeviationBips = 500

var bips = big.NewInt(10_000)

// CheckDeviation verifies that observed stays within maxBips basis points of
// reference. It is the manipulation guard applied to every swap-priced
// operation; a violation is fatal to the caller.
func CheckDeviation(observed, reference *big.Int, maxBips uint64) error {
	if reference == nil || reference.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if observed == nil || observed.Sign() < 0 {
		return fmt.Errorf("pricing: observed value must be non-negative")
	}
	diff := new(big.Int).Sub(observed, reference)
	diff.Abs(diff)
	// diff/reference <= maxBips/10_000, kept in integers.
	lhs := new(big.Int).Mul(diff, bips)
	rhs := new(big.Int).Mul(reference, new(big.Int).SetUint64(maxBips))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("pricing: deviation exceeds %d bips (observed %s, reference %s)",
			maxBips, observed.String(), reference.String())
	}
	return nil
}
