package node

import (
	"math/big"
	"sync"

	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
)

// Node is the single entry point for protocol operations. The engines
// themselves are plain single-threaded ledgers; the node serializes every
// mutating call under one lock and runs it inside a state transaction, so
// concurrent callers cannot interleave a read-check-write and a failed
// operation leaves no partial writes behind.
type Node struct {
	stateMu sync.RWMutex

	state    *state.CollarState
	provider *provider.Engine
	taker    *taker.Engine
	rolls    *rolls.Engine
	escrow   *escrow.Engine
	loans    *loans.Engine
}

// New bundles the engines over their shared state. All engines must already
// be wired to st.
func New(st *state.CollarState, providerEngine *provider.Engine, takerEngine *taker.Engine, rollsEngine *rolls.Engine, escrowEngine *escrow.Engine, loansEngine *loans.Engine) *Node {
	return &Node{
		state:    st,
		provider: providerEngine,
		taker:    takerEngine,
		rolls:    rollsEngine,
		escrow:   escrowEngine,
		loans:    loansEngine,
	}
}

// write runs fn exclusively with its writes buffered; fn failing discards
// every write it made.
func (n *Node) write(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Transaction(fn)
}

func (n *Node) CreateProviderOffer(providerAddr [20]byte, terms provider.OfferTerms, amount *big.Int) (*provider.LiquidityOffer, error) {
	var offer *provider.LiquidityOffer
	err := n.write(func() error {
		var err error
		offer, err = n.provider.CreateOffer(providerAddr, terms, amount)
		return err
	})
	return offer, err
}

func (n *Node) UpdateProviderOffer(caller [20]byte, offerID uint64, newAmount *big.Int) (*provider.LiquidityOffer, error) {
	var offer *provider.LiquidityOffer
	err := n.write(func() error {
		var err error
		offer, err = n.provider.UpdateOfferAmount(caller, offerID, newAmount)
		return err
	})
	return offer, err
}

func (n *Node) ProviderOffer(offerID uint64) (*provider.LiquidityOffer, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.provider.Offer(offerID)
}

func (n *Node) ProviderOffers(offset, limit int) ([]*provider.LiquidityOffer, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.state.ProviderOffers(offset, limit)
}

func (n *Node) OpenPosition(owner [20]byte, offerID uint64, takerLocked *big.Int) (*taker.Position, error) {
	var position *taker.Position
	err := n.write(func() error {
		var err error
		position, _, err = n.taker.OpenPaired(owner, offerID, takerLocked)
		return err
	})
	return position, err
}

func (n *Node) Position(positionID uint64) (*taker.Position, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.taker.Position(positionID)
}

func (n *Node) SettlePosition(positionID uint64) (*taker.Position, error) {
	var position *taker.Position
	err := n.write(func() error {
		var err error
		position, err = n.taker.Settle(positionID)
		return err
	})
	return position, err
}

func (n *Node) WithdrawPosition(positionID uint64, caller, recipient [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.write(func() error {
		var err error
		amount, err = n.taker.Withdraw(positionID, caller, recipient)
		return err
	})
	return amount, err
}

func (n *Node) CancelPosition(positionID uint64, caller [20]byte) (*big.Int, error) {
	var refund *big.Int
	err := n.write(func() error {
		var err error
		refund, err = n.taker.Cancel(positionID, caller)
		return err
	})
	return refund, err
}

func (n *Node) CreateRollOffer(caller [20]byte, offer rolls.Offer) (*rolls.Offer, error) {
	var created *rolls.Offer
	err := n.write(func() error {
		var err error
		created, err = n.rolls.CreateOffer(caller, offer)
		return err
	})
	return created, err
}

func (n *Node) RollOffer(rollID uint64) (*rolls.Offer, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.rolls.Offer(rollID)
}

func (n *Node) CancelRollOffer(caller [20]byte, rollID uint64) error {
	return n.write(func() error {
		return n.rolls.CancelOffer(caller, rollID)
	})
}

func (n *Node) PreviewRoll(rollID uint64, price *big.Int) (*rolls.Preview, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.rolls.PreviewRoll(rollID, price)
}

func (n *Node) ExecuteRoll(caller [20]byte, rollID uint64, minToTaker *big.Int) (*taker.Position, *rolls.Preview, error) {
	var (
		position *taker.Position
		preview  *rolls.Preview
	)
	err := n.write(func() error {
		var err error
		position, preview, err = n.rolls.ExecuteRoll(caller, rollID, minToTaker)
		return err
	})
	return position, preview, err
}

func (n *Node) CreateEscrowOffer(supplier [20]byte, terms escrow.OfferTerms, amount *big.Int) (*escrow.SupplierOffer, error) {
	var offer *escrow.SupplierOffer
	err := n.write(func() error {
		var err error
		offer, err = n.escrow.CreateOffer(supplier, terms, amount)
		return err
	})
	return offer, err
}

func (n *Node) UpdateEscrowOffer(caller [20]byte, offerID uint64, newAmount *big.Int) (*escrow.SupplierOffer, error) {
	var offer *escrow.SupplierOffer
	err := n.write(func() error {
		var err error
		offer, err = n.escrow.UpdateOfferAmount(caller, offerID, newAmount)
		return err
	})
	return offer, err
}

func (n *Node) EscrowOffers(offset, limit int) ([]*escrow.SupplierOffer, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.state.EscrowOffers(offset, limit)
}

func (n *Node) Escrow(escrowID uint64) (*escrow.Escrow, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.escrow.Escrow(escrowID)
}

func (n *Node) SeizeEscrow(caller [20]byte, escrowID uint64) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.write(func() error {
		var err error
		esc, err = n.escrow.SeizeEscrow(caller, escrowID)
		return err
	})
	return esc, err
}

func (n *Node) WithdrawEscrow(caller, recipient [20]byte, escrowID uint64) (*big.Int, error) {
	var amount *big.Int
	err := n.write(func() error {
		var err error
		amount, err = n.escrow.WithdrawReleased(caller, recipient, escrowID)
		return err
	})
	return amount, err
}

func (n *Node) OpenLoan(borrower [20]byte, params loans.OpenParams) (*loans.Loan, error) {
	var loan *loans.Loan
	err := n.write(func() error {
		var err error
		loan, err = n.loans.OpenLoan(borrower, params)
		return err
	})
	return loan, err
}

func (n *Node) Loan(loanID uint64) (*loans.Loan, error) {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.loans.Loan(loanID)
}

func (n *Node) CloseLoan(caller [20]byte, loanID uint64) (*big.Int, error) {
	var out *big.Int
	err := n.write(func() error {
		var err error
		out, err = n.loans.CloseLoan(caller, loanID)
		return err
	})
	return out, err
}

func (n *Node) RollLoan(caller [20]byte, loanID, rollOfferID uint64, minToTaker *big.Int, newEscrowOfferID uint64) (*loans.Loan, error) {
	var loan *loans.Loan
	err := n.write(func() error {
		var err error
		loan, err = n.loans.RollLoan(caller, loanID, rollOfferID, minToTaker, newEscrowOfferID)
		return err
	})
	return loan, err
}

func (n *Node) CancelLoan(caller [20]byte, loanID uint64) error {
	return n.write(func() error {
		return n.loans.CancelLoan(caller, loanID)
	})
}

func (n *Node) ForecloseLoan(caller [20]byte, loanID uint64) (*big.Int, error) {
	var leftover *big.Int
	err := n.write(func() error {
		var err error
		leftover, err = n.loans.ForecloseLoan(caller, loanID)
		return err
	})
	return leftover, err
}

func (n *Node) ApproveKeeper(caller [20]byte, loanID uint64, keeper [20]byte, approved bool) error {
	return n.write(func() error {
		return n.loans.ApproveKeeper(caller, loanID, keeper, approved)
	})
}
