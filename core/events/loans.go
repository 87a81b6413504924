package events

import (
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
)

const (
	TypeLoanOpened        = "loans.opened"
	TypeLoanClosed        = "loans.closed"
	TypeLoanRolled        = "loans.rolled"
	TypeLoanCancelled     = "loans.cancelled"
	TypeLoanForeclosed    = "loans.foreclosed"
	TypeLoanKeeperUpdated = "loans.keeper.updated"
)

type LoanOpened struct {
	LoanID           uint64
	Borrower         [20]byte
	UnderlyingAmount *big.Int
	LoanAmount       *big.Int
	TakerLocked      *big.Int
	EscrowID         uint64
	UsesEscrow       bool
}

func (LoanOpened) EventType() string { return TypeLoanOpened }

func (e LoanOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanOpened,
		Attributes: map[string]string{
			"loanId":           uintToString(e.LoanID),
			"borrower":         addrHex(e.Borrower),
			"underlyingAmount": formatAmount(e.UnderlyingAmount),
			"loanAmount":       formatAmount(e.LoanAmount),
			"takerLocked":      formatAmount(e.TakerLocked),
			"escrowId":         uintToString(e.EscrowID),
			"usesEscrow":       boolToString(e.UsesEscrow),
		},
	}
}

type LoanClosed struct {
	LoanID        uint64
	Repayment     *big.Int
	UnderlyingOut *big.Int
}

func (LoanClosed) EventType() string { return TypeLoanClosed }

func (e LoanClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanClosed,
		Attributes: map[string]string{
			"loanId":        uintToString(e.LoanID),
			"repayment":     formatAmount(e.Repayment),
			"underlyingOut": formatAmount(e.UnderlyingOut),
		},
	}
}

type LoanRolled struct {
	LoanID        uint64
	NewLoanID     uint64
	Transfer      *big.Int
	NewLoanAmount *big.Int
}

func (LoanRolled) EventType() string { return TypeLoanRolled }

func (e LoanRolled) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRolled,
		Attributes: map[string]string{
			"loanId":        uintToString(e.LoanID),
			"newLoanId":     uintToString(e.NewLoanID),
			"transfer":      formatAmount(e.Transfer),
			"newLoanAmount": formatAmount(e.NewLoanAmount),
		},
	}
}

type LoanCancelled struct {
	LoanID uint64
}

func (LoanCancelled) EventType() string { return TypeLoanCancelled }

func (e LoanCancelled) Event() *types.Event {
	return &types.Event{
		Type:       TypeLoanCancelled,
		Attributes: map[string]string{"loanId": uintToString(e.LoanID)},
	}
}

type LoanForeclosed struct {
	LoanID     uint64
	EscrowID   uint64
	ToSupplier *big.Int
	Leftover   *big.Int
}

func (LoanForeclosed) EventType() string { return TypeLoanForeclosed }

func (e LoanForeclosed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanForeclosed,
		Attributes: map[string]string{
			"loanId":     uintToString(e.LoanID),
			"escrowId":   uintToString(e.EscrowID),
			"toSupplier": formatAmount(e.ToSupplier),
			"leftover":   formatAmount(e.Leftover),
		},
	}
}

type LoanKeeperUpdated struct {
	LoanID   uint64
	Keeper   [20]byte
	Approved bool
}

func (LoanKeeperUpdated) EventType() string { return TypeLoanKeeperUpdated }

func (e LoanKeeperUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanKeeperUpdated,
		Attributes: map[string]string{
			"loanId":   uintToString(e.LoanID),
			"keeper":   addrHex(e.Keeper),
			"approved": boolToString(e.Approved),
		},
	}
}
