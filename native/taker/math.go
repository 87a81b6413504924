package taker

import (
	"math/big"

	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
)

// StrikePrice derives a strike from the start price and a basis-point
// percent, truncating toward zero.
func StrikePrice(startPrice *big.Int, percentBips uint64) *big.Int {
	return nativecommon.MulDiv(startPrice, new(big.Int).SetUint64(percentBips), nativecommon.BasisPoints)
}

// ProviderLockedFor sizes the provider lock that pairs a taker lock so each
// side exactly covers its strike band: the taker lock covers the put range
// below par and the provider lock covers the call range above it. Truncates
// toward zero.
func ProviderLockedFor(takerLocked *big.Int, putStrikePercent, callStrikePercent uint64) *big.Int {
	callRange := new(big.Int).SetUint64(callStrikePercent - 10_000)
	putRange := new(big.Int).SetUint64(10_000 - putStrikePercent)
	return nativecommon.MulDiv(takerLocked, callRange, putRange)
}

// SettlementToProvider computes the signed cash delta owed to the provider at
// settlement. Positive values move taker capital to the provider, negative
// values the reverse.
//
// The payout interpolates linearly inside the strike band, with distinct
// slopes below and above the start price so the whole taker lock is consumed
// exactly at the put strike and the whole provider lock exactly at the call
// strike. Rounding always favours the taker: truncation when the provider
// gains, ceiling when the provider loses. The conservation identity
//
//	withdrawableTaker + withdrawableProvider == takerLocked + providerLocked
//
// holds exactly for every end price because both withdrawables derive from
// the single toProvider delta.
func SettlementToProvider(takerLocked, providerLocked, startPrice, putStrike, callStrike, endPrice *big.Int) *big.Int {
	if endPrice.Cmp(putStrike) <= 0 {
		return nativecommon.CloneBig(takerLocked)
	}
	if endPrice.Cmp(callStrike) >= 0 {
		return new(big.Int).Neg(nativecommon.CloneBig(providerLocked))
	}
	if endPrice.Cmp(startPrice) < 0 {
		putRange := new(big.Int).Sub(startPrice, putStrike)
		if putRange.Sign() <= 0 {
			return nativecommon.CloneBig(takerLocked)
		}
		lost := new(big.Int).Sub(startPrice, endPrice)
		return nativecommon.MulDiv(takerLocked, lost, putRange)
	}
	callRange := new(big.Int).Sub(callStrike, startPrice)
	if callRange.Sign() <= 0 {
		return new(big.Int).Neg(nativecommon.CloneBig(providerLocked))
	}
	gained := new(big.Int).Sub(endPrice, startPrice)
	return new(big.Int).Neg(nativecommon.MulDivUp(providerLocked, gained, callRange))
}
