package escrow

import (
	"math/big"

	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
)

// InterestHold returns the interest reserve taken upfront for an escrow of
// the given size and duration. Rounds up so the supplier is never shorted by
// truncation.
func InterestHold(amount *big.Int, aprBips uint64, duration int64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || aprBips == 0 || duration <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(amount, new(big.Int).SetUint64(aprBips))
	numerator.Mul(numerator, big.NewInt(duration))
	denominator := new(big.Int).Mul(nativecommon.BasisPoints, big.NewInt(nativecommon.YearSeconds))
	return nativecommon.MulDivUp(numerator, big.NewInt(1), denominator)
}

// LateFeeHold returns the late-fee reserve covering the full grace period,
// rounded up.
func LateFeeHold(amount *big.Int, lateFeeAPRBips uint64, gracePeriod int64) *big.Int {
	return InterestHold(amount, lateFeeAPRBips, gracePeriod)
}

// InterestRefund prorates the unearned portion of the interest hold when the
// escrow releases before expiration. The refund is floored, so rounding dust
// accrues to the supplier.
func (e *Escrow) InterestRefund(now int64) *big.Int {
	if e.InterestHeld == nil || e.InterestHeld.Sign() <= 0 || e.Duration <= 0 {
		return big.NewInt(0)
	}
	remaining := e.Expiration - now
	if remaining <= 0 {
		return big.NewInt(0)
	}
	if remaining > e.Duration {
		remaining = e.Duration
	}
	refund := nativecommon.MulDiv(e.InterestHeld, big.NewInt(remaining), big.NewInt(e.Duration))
	return nativecommon.BigMin(refund, e.InterestHeld)
}

// LateFeeRefund prorates the unaccrued portion of the late-fee hold. Before
// expiration the whole hold is refundable; past the grace period none is.
func (e *Escrow) LateFeeRefund(now int64) *big.Int {
	if e.LateFeeHeld == nil || e.LateFeeHeld.Sign() <= 0 {
		return big.NewInt(0)
	}
	if e.GracePeriod <= 0 || now <= e.Expiration {
		return cloneOrZero(e.LateFeeHeld)
	}
	remaining := e.GracePeriodEnd() - now
	if remaining <= 0 {
		return big.NewInt(0)
	}
	refund := nativecommon.MulDiv(e.LateFeeHeld, big.NewInt(remaining), big.NewInt(e.GracePeriod))
	return nativecommon.BigMin(refund, e.LateFeeHeld)
}

// LateFeeOwed is the accrued late fee at the given time, the complement of
// the refund within the hold.
func (e *Escrow) LateFeeOwed(now int64) *big.Int {
	return new(big.Int).Sub(cloneOrZero(e.LateFeeHeld), e.LateFeeRefund(now))
}

// InterestOwed is the accrued interest at the given time.
func (e *Escrow) InterestOwed(now int64) *big.Int {
	return new(big.Int).Sub(cloneOrZero(e.InterestHeld), e.InterestRefund(now))
}

// OwedTo is the supplier's full claim at the given time: principal plus
// accrued fees.
func (e *Escrow) OwedTo(now int64) *big.Int {
	owed := new(big.Int).Add(cloneOrZero(e.Escrowed), e.InterestOwed(now))
	return owed.Add(owed, e.LateFeeOwed(now))
}
