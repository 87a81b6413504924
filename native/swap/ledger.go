package swap

import (
	"errors"
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
)

var (
	errNilState             = nativecommon.Invariant("swap ledger: state not configured")
	errNilOracle            = nativecommon.Invariant("swap ledger: oracle not configured")
	errInvalidAmount        = errors.New("swap ledger: amount must be positive")
	errSlippage             = errors.New("swap ledger: output below minimum")
	errInsufficientBalance  = errors.New("swap ledger: insufficient vault balance")
	errInsufficientReserves = errors.New("swap ledger: insufficient pool reserves")
)

type ledgerState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// LedgerSwapper executes asset conversions against a pre-funded pool account
// at the oracle price less a fixed fee. It exists for deployments where the
// operator provides swap liquidity directly instead of routing to an external
// venue; the loans engine still re-verifies every output it reports.
type LedgerSwapper struct {
	state   ledgerState
	oracle  pricing.Oracle
	pool    [20]byte
	feeBips uint64
}

// NewLedgerSwapper wires a swapper over the given pool account. The pool must
// be funded out of band with both assets.
func NewLedgerSwapper(state ledgerState, oracle pricing.Oracle, pool [20]byte) *LedgerSwapper {
	return &LedgerSwapper{state: state, oracle: oracle, pool: pool}
}

// SetFeeBips configures the fee retained by the pool, in basis points of the
// oracle-priced output.
func (s *LedgerSwapper) SetFeeBips(bips uint64) {
	if s == nil {
		return
	}
	s.feeBips = bips
}

// SwapUnderlyingToCash converts underlying held by the vault into cash at the
// oracle price, returning the cash amount credited.
func (s *LedgerSwapper) SwapUnderlyingToCash(vault [20]byte, amount, minOut *big.Int) (*big.Int, error) {
	return s.execute(vault, amount, minOut, true)
}

// SwapCashToUnderlying converts cash held by the vault into underlying at the
// oracle price, returning the underlying amount credited.
func (s *LedgerSwapper) SwapCashToUnderlying(vault [20]byte, amount, minOut *big.Int) (*big.Int, error) {
	return s.execute(vault, amount, minOut, false)
}

func (s *LedgerSwapper) execute(vault [20]byte, amount, minOut *big.Int, toCash bool) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	if s.oracle == nil {
		return nil, errNilOracle
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	price, err := s.oracle.CurrentPrice()
	if err != nil {
		return nil, err
	}
	var out *big.Int
	if toCash {
		out, err = pricing.ConvertToQuote(amount, price, s.oracle.BaseUnitAmount())
	} else {
		out, err = pricing.ConvertToBase(amount, price, s.oracle.BaseUnitAmount())
	}
	if err != nil {
		return nil, err
	}
	if s.feeBips > 0 {
		fee := nativecommon.MulDivUp(out, new(big.Int).SetUint64(s.feeBips), nativecommon.BasisPoints)
		out = new(big.Int).Sub(out, fee)
	}
	if out.Sign() < 0 {
		out = big.NewInt(0)
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, errSlippage
	}

	vaultAcc, err := s.loadAccount(vault)
	if err != nil {
		return nil, err
	}
	poolAcc, err := s.loadAccount(s.pool)
	if err != nil {
		return nil, err
	}
	if toCash {
		if vaultAcc.BalanceUnderlying.Cmp(amount) < 0 {
			return nil, errInsufficientBalance
		}
		if poolAcc.BalanceCash.Cmp(out) < 0 {
			return nil, errInsufficientReserves
		}
		vaultAcc.BalanceUnderlying = new(big.Int).Sub(vaultAcc.BalanceUnderlying, amount)
		poolAcc.BalanceUnderlying = new(big.Int).Add(poolAcc.BalanceUnderlying, amount)
		poolAcc.BalanceCash = new(big.Int).Sub(poolAcc.BalanceCash, out)
		vaultAcc.BalanceCash = new(big.Int).Add(vaultAcc.BalanceCash, out)
	} else {
		if vaultAcc.BalanceCash.Cmp(amount) < 0 {
			return nil, errInsufficientBalance
		}
		if poolAcc.BalanceUnderlying.Cmp(out) < 0 {
			return nil, errInsufficientReserves
		}
		vaultAcc.BalanceCash = new(big.Int).Sub(vaultAcc.BalanceCash, amount)
		poolAcc.BalanceCash = new(big.Int).Add(poolAcc.BalanceCash, amount)
		poolAcc.BalanceUnderlying = new(big.Int).Sub(poolAcc.BalanceUnderlying, out)
		vaultAcc.BalanceUnderlying = new(big.Int).Add(vaultAcc.BalanceUnderlying, out)
	}
	if err := s.state.PutAccount(vault, vaultAcc); err != nil {
		return nil, err
	}
	if err := s.state.PutAccount(s.pool, poolAcc); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerSwapper) loadAccount(addr [20]byte) (*types.Account, error) {
	account, err := s.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.EnsureBalances(), nil
}
