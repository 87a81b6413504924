package types

import "math/big"

// Account tracks the fungible balances held by a protocol participant.
// Cash is the quote asset positions settle in; Underlying is the asset
// borrowers post and escrow suppliers custody.
type Account struct {
	Nonce             uint64   `json:"nonce"`
	BalanceCash       *big.Int `json:"balanceCash"`
	BalanceUnderlying *big.Int `json:"balanceUnderlying"`
}

// EnsureBalances replaces nil balance fields with zero values so callers can
// operate on the account without nil checks.
func (a *Account) EnsureBalances() *Account {
	if a == nil {
		return &Account{BalanceCash: big.NewInt(0), BalanceUnderlying: big.NewInt(0)}
	}
	if a.BalanceCash == nil {
		a.BalanceCash = big.NewInt(0)
	}
	if a.BalanceUnderlying == nil {
		a.BalanceUnderlying = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.BalanceCash != nil {
		clone.BalanceCash = new(big.Int).Set(a.BalanceCash)
	}
	if a.BalanceUnderlying != nil {
		clone.BalanceUnderlying = new(big.Int).Set(a.BalanceUnderlying)
	}
	return clone.EnsureBalances()
}
