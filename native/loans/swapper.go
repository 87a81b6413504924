package loans

import (
	"math/big"

	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
)

// Swapper converts between the underlying and cash assets on behalf of a
// vault account: the input is debited from and the output credited to the
// supplied address, and the realized output is returned. Adapters are
// untrusted; the engine re-verifies every reported output against the vault's
// observed balance deltas and the oracle price before accepting it.
type Swapper interface {
	SwapUnderlyingToCash(vault [20]byte, amount, minOut *big.Int) (*big.Int, error)
	SwapCashToUnderlying(vault [20]byte, amount, minOut *big.Int) (*big.Int, error)
}

var (
	errSwapInputMismatch  = nativecommon.Invariant("loans engine: swap consumed unexpected input amount")
	errSwapOutputMismatch = nativecommon.Invariant("loans engine: swap output does not match balance delta")
)

// minOutFor is the lower slippage bound handed to the swap adapter: the
// oracle-expected output shaded by the deviation tolerance. The deviation
// guard re-checks the realized output afterwards, so this only fails swaps
// early.
func minOutFor(expected *big.Int, maxDeviationBips uint64) *big.Int {
	if expected == nil || expected.Sign() <= 0 || maxDeviationBips >= 10_000 {
		return big.NewInt(0)
	}
	shade := new(big.Int).SetUint64(10_000 - maxDeviationBips)
	out := new(big.Int).Mul(expected, shade)
	return out.Quo(out, big.NewInt(10_000))
}

func checkSwapDeviation(realized, expected *big.Int, maxDeviationBips uint64) error {
	return pricing.CheckDeviation(realized, expected, maxDeviationBips)
}
