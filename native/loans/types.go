package loans

import "math/big"

// Status tracks the loan lifecycle. A loan leaves Active through exactly one
// of four terminal transitions.
type Status uint8

const (
	LoanActive Status = iota
	LoanClosed
	LoanRolled
	LoanCancelled
	LoanForeclosed
)

func (s Status) String() string {
	switch s {
	case LoanActive:
		return "active"
	case LoanClosed:
		return "closed"
	case LoanRolled:
		return "rolled"
	case LoanCancelled:
		return "cancelled"
	case LoanForeclosed:
		return "foreclosed"
	default:
		return "unknown"
	}
}

// Loan is the borrower-facing wrapper around a paired position. Its ID is the
// underlying taker position's ID, so the two ledgers never need a join table.
type Loan struct {
	ID               uint64   `json:"id"`
	Borrower         [20]byte `json:"borrower"`
	UnderlyingAmount *big.Int `json:"underlyingAmount"`
	LoanAmount       *big.Int `json:"loanAmount"`
	UsesEscrow       bool     `json:"usesEscrow"`
	EscrowOfferID    uint64   `json:"escrowOfferId,omitempty"`
	EscrowID         uint64   `json:"escrowId,omitempty"`
	Keeper           [20]byte `json:"keeper,omitempty"`
	KeeperApproved   bool     `json:"keeperApproved,omitempty"`
	Status           Status   `json:"status"`
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.UnderlyingAmount != nil {
		clone.UnderlyingAmount = new(big.Int).Set(l.UnderlyingAmount)
	}
	if l.LoanAmount != nil {
		clone.LoanAmount = new(big.Int).Set(l.LoanAmount)
	}
	return &clone
}

// OpenParams carries the borrower's terms for a new loan.
type OpenParams struct {
	UnderlyingAmount *big.Int
	MinLoanAmount    *big.Int
	ProviderOfferID  uint64
	UsesEscrow       bool
	EscrowOfferID    uint64
}
