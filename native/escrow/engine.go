package escrow

import (
	"errors"
	"math/big"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
)

var (
	errNilState            = nativecommon.Invariant("escrow engine: state not configured")
	errInvalidAmount       = errors.New("escrow engine: amount must be positive")
	errAmountBelowMinimum  = errors.New("escrow engine: amount below offer minimum")
	errTermsOutOfBounds    = errors.New("escrow engine: offer terms outside configured bounds")
	errOfferNotFound       = nativecommon.NotFound("escrow engine: offer not found")
	errEscrowNotFound      = nativecommon.NotFound("escrow engine: escrow not found")
	errUnauthorized        = nativecommon.Unauthorized("escrow engine: unauthorized caller")
	errInsufficientOffer   = errors.New("escrow engine: offer amount insufficient")
	errInsufficientBalance = errors.New("escrow engine: insufficient balance")
	errNotActive           = nativecommon.Conflict("escrow engine: escrow not active")
	errNotReleased         = nativecommon.Conflict("escrow engine: escrow not released or seized")
	errNothingToWithdraw   = nativecommon.Conflict("escrow engine: nothing to withdraw")
	errGracePeriodRunning  = nativecommon.Conflict("escrow engine: grace period not elapsed")
	errRepayTooLarge       = errors.New("escrow engine: repayment exceeds amount owed")
)

const moduleName = "escrow"

type engineState interface {
	GetEscrowOffer(id uint64) (*SupplierOffer, error)
	PutEscrowOffer(offer *SupplierOffer) error
	NextEscrowOfferID() (uint64, error)
	GetEscrow(id uint64) (*Escrow, error)
	PutEscrow(escrow *Escrow) error
	NextEscrowID() (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine maintains supplier offers and live escrows over the underlying
// asset. Supplier capital committed to an offer sits in the module vault; at
// mint it substitutes for the borrower's collateral, which the vault then
// holds in custody until release or seizure. Mint, release and switch are
// reserved for the loans authority; seizure and withdrawal belong to the
// supplier.
type Engine struct {
	state          engineState
	moduleAddress  [20]byte
	loansAuthority [20]byte
	bounds         OfferBounds
	pauses         nativecommon.PauseView
	emitter        events.Emitter
	nowFn          func() int64
}

// NewEngine constructs an escrow engine custodying collateral at the supplied
// module address and validating offers against bounds.
func NewEngine(moduleAddr [20]byte, bounds OfferBounds) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		bounds:        bounds,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the governance pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLoansAuthority registers the single account allowed to mint, release and
// switch escrows. Left unset, those operations are rejected.
func (e *Engine) SetLoansAuthority(addr [20]byte) {
	if e == nil {
		return
	}
	e.loansAuthority = addr
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the vault account holding escrowed collateral.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireLoansAuthority(caller [20]byte) error {
	var zero [20]byte
	if e.loansAuthority == zero || caller != e.loansAuthority {
		return errUnauthorized
	}
	return nil
}

func (e *Engine) validTerms(terms OfferTerms) bool {
	b := e.bounds
	if terms.Duration < b.MinDuration || terms.Duration > b.MaxDuration {
		return false
	}
	if terms.GracePeriod < b.MinGracePeriod || terms.GracePeriod > b.MaxGracePeriod {
		return false
	}
	if terms.InterestAPR > b.MaxInterestAPR || terms.LateFeeAPR > b.MaxLateFeeAPR {
		return false
	}
	return true
}

func (e *Engine) loadAccount(addr [20]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.EnsureBalances(), nil
}

func (e *Engine) transferUnderlying(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errInvalidAmount
	}
	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceUnderlying.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceUnderlying = new(big.Int).Sub(fromAcc.BalanceUnderlying, amount)
	toAcc.BalanceUnderlying = new(big.Int).Add(toAcc.BalanceUnderlying, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// CreateOffer locks amount of the supplier's underlying into the offer book
// under the supplied fee terms and returns the recorded offer.
func (e *Engine) CreateOffer(supplier [20]byte, terms OfferTerms, amount *big.Int) (*SupplierOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if !e.validTerms(terms) {
		return nil, errTermsOutOfBounds
	}
	minEscrow := nativecommon.CloneBig(terms.MinEscrow)
	if amount.Cmp(minEscrow) < 0 {
		return nil, errAmountBelowMinimum
	}
	if err := e.transferUnderlying(supplier, e.moduleAddress, amount); err != nil {
		return nil, err
	}
	id, err := e.state.NextEscrowOfferID()
	if err != nil {
		return nil, err
	}
	offer := &SupplierOffer{
		ID:          id,
		Supplier:    supplier,
		Available:   new(big.Int).Set(amount),
		Duration:    terms.Duration,
		InterestAPR: terms.InterestAPR,
		GracePeriod: terms.GracePeriod,
		LateFeeAPR:  terms.LateFeeAPR,
		MinEscrow:   minEscrow,
	}
	if err := e.state.PutEscrowOffer(offer); err != nil {
		return nil, err
	}
	e.emit(events.EscrowOfferCreated{
		OfferID:     offer.ID,
		Supplier:    supplier,
		Available:   nativecommon.CloneBig(offer.Available),
		Duration:    offer.Duration,
		InterestAPR: offer.InterestAPR,
		GracePeriod: offer.GracePeriod,
		LateFeeAPR:  offer.LateFeeAPR,
		MinEscrow:   nativecommon.CloneBig(offer.MinEscrow),
	})
	return offer.Clone(), nil
}

// UpdateOfferAmount deposits or refunds the difference between the offer's
// current availability and newAmount. Supplier-only.
func (e *Engine) UpdateOfferAmount(caller [20]byte, offerID uint64, newAmount *big.Int) (*SupplierOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if newAmount == nil || newAmount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	offer, err := e.state.GetEscrowOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	if offer.Supplier != caller {
		return nil, errUnauthorized
	}
	previous := nativecommon.CloneBig(offer.Available)
	switch newAmount.Cmp(previous) {
	case 1:
		delta := new(big.Int).Sub(newAmount, previous)
		if err := e.transferUnderlying(caller, e.moduleAddress, delta); err != nil {
			return nil, err
		}
	case -1:
		delta := new(big.Int).Sub(previous, newAmount)
		if err := e.transferUnderlying(e.moduleAddress, caller, delta); err != nil {
			return nil, err
		}
	}
	offer.Available = new(big.Int).Set(newAmount)
	if err := e.state.PutEscrowOffer(offer); err != nil {
		return nil, err
	}
	e.emit(events.EscrowOfferUpdated{
		OfferID:           offer.ID,
		Supplier:          caller,
		PreviousAvailable: previous,
		NewAvailable:      nativecommon.CloneBig(offer.Available),
	})
	return offer.Clone(), nil
}

// Offer returns a copy of the stored supplier offer.
func (e *Engine) Offer(offerID uint64) (*SupplierOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, err := e.state.GetEscrowOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	return offer.Clone(), nil
}

// Escrow returns a copy of the stored escrow.
func (e *Engine) Escrow(escrowID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, err := e.state.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, errEscrowNotFound
	}
	return esc.Clone(), nil
}

// EscrowAndMint consumes amount from the offer and opens an escrow backing
// loanID. The upfront interest and late-fee holds are pulled from feePayer.
// The supplier's capital substitutes for the borrower's collateral in the
// loan, so no principal moves here: the consumed availability stays in the
// vault as the custodied amount. Loans authority only.
func (e *Engine) EscrowAndMint(caller [20]byte, offerID uint64, amount *big.Int, loanID uint64, feePayer [20]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireLoansAuthority(caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	offer, err := e.state.GetEscrowOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	if amount.Cmp(nativecommon.CloneBig(offer.MinEscrow)) < 0 {
		return nil, errAmountBelowMinimum
	}
	if offer.Available == nil || offer.Available.Cmp(amount) < 0 {
		return nil, errInsufficientOffer
	}
	interestHeld := InterestHold(amount, offer.InterestAPR, offer.Duration)
	lateFeeHeld := LateFeeHold(amount, offer.LateFeeAPR, offer.GracePeriod)
	fees := new(big.Int).Add(interestHeld, lateFeeHeld)
	if err := e.transferUnderlying(feePayer, e.moduleAddress, fees); err != nil {
		return nil, err
	}
	offer.Available = new(big.Int).Sub(offer.Available, amount)
	if err := e.state.PutEscrowOffer(offer); err != nil {
		return nil, err
	}
	id, err := e.state.NextEscrowID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	esc := &Escrow{
		ID:           id,
		OfferID:      offer.ID,
		LoanID:       loanID,
		Supplier:     offer.Supplier,
		Escrowed:     new(big.Int).Set(amount),
		Duration:     offer.Duration,
		GracePeriod:  offer.GracePeriod,
		InterestAPR:  offer.InterestAPR,
		LateFeeAPR:   offer.LateFeeAPR,
		Expiration:   now + offer.Duration,
		InterestHeld: interestHeld,
		LateFeeHeld:  lateFeeHeld,
		Status:       EscrowActive,
		Withdrawable: big.NewInt(0),
	}
	if err := e.state.PutEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(events.EscrowStarted{
		EscrowID:     esc.ID,
		OfferID:      offer.ID,
		LoanID:       loanID,
		Escrowed:     nativecommon.CloneBig(esc.Escrowed),
		InterestHeld: nativecommon.CloneBig(esc.InterestHeld),
		LateFeeHeld:  nativecommon.CloneBig(esc.LateFeeHeld),
		Expiration:   esc.Expiration,
	})
	return esc.Clone(), nil
}

// ReleaseEscrow closes an active escrow against a repayment pulled from the
// caller. The supplier's claim is principal plus accrued fees; it is paid
// from the repayment and the upfront holds, never topped up beyond them, so
// an under-repayment is the supplier's loss. The surplus plus the custodied
// collateral flow back to the caller for the borrower side. Returns the
// updated escrow and the fee surplus refunded. Loans authority only.
func (e *Engine) ReleaseEscrow(caller [20]byte, escrowID uint64, repay *big.Int) (*Escrow, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.requireLoansAuthority(caller); err != nil {
		return nil, nil, err
	}
	esc, err := e.state.GetEscrow(escrowID)
	if err != nil {
		return nil, nil, err
	}
	if esc == nil {
		return nil, nil, errEscrowNotFound
	}
	if esc.Status != EscrowActive {
		return nil, nil, errNotActive
	}
	if repay == nil {
		repay = big.NewInt(0)
	}
	if repay.Sign() < 0 {
		return nil, nil, errInvalidAmount
	}
	now := e.now()
	maxRepay := new(big.Int).Add(cloneOrZero(esc.Escrowed), esc.LateFeeOwed(now))
	if repay.Cmp(maxRepay) > 0 {
		return nil, nil, errRepayTooLarge
	}
	if err := e.transferUnderlying(caller, e.moduleAddress, repay); err != nil {
		return nil, nil, err
	}
	owed := esc.OwedTo(now)
	available := new(big.Int).Add(repay, esc.FeesHeld())
	withdrawable := nativecommon.BigMin(available, owed)
	leftover := new(big.Int).Sub(available, withdrawable)
	esc.Status = EscrowReleased
	esc.Withdrawable = withdrawable
	if err := e.state.PutEscrow(esc); err != nil {
		return nil, nil, err
	}
	// The custodied collateral returns with the surplus: the repayment now
	// stands in for it on the supplier's side.
	back := new(big.Int).Add(leftover, cloneOrZero(esc.Escrowed))
	if err := e.transferUnderlying(e.moduleAddress, caller, back); err != nil {
		return nil, nil, err
	}
	e.emit(events.EscrowReleased{
		EscrowID:     esc.ID,
		Repaid:       new(big.Int).Set(repay),
		Withdrawable: new(big.Int).Set(withdrawable),
		Leftover:     leftover,
	})
	return esc.Clone(), new(big.Int).Set(leftover), nil
}

// SeizeEscrow lets the supplier claim the custodied collateral plus the full
// fee holds once the grace period has elapsed with no release. Supplier-only,
// and the last-resort path: a foreclosure through the loans module settles
// the paired position first and releases instead.
func (e *Engine) SeizeEscrow(caller [20]byte, escrowID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	esc, err := e.state.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, errEscrowNotFound
	}
	if esc.Supplier != caller {
		return nil, errUnauthorized
	}
	if esc.Status != EscrowActive {
		return nil, errNotActive
	}
	if !esc.CanForeclose(e.now()) {
		return nil, errGracePeriodRunning
	}
	seized := new(big.Int).Add(cloneOrZero(esc.Escrowed), esc.FeesHeld())
	esc.Status = EscrowSeized
	esc.Withdrawable = seized
	if err := e.state.PutEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(events.EscrowSeized{EscrowID: esc.ID, Amount: new(big.Int).Set(seized)})
	return esc.Clone(), nil
}

// WithdrawReleased pays the supplier's settled balance to the recipient.
// Valid after release or seizure; the withdrawable balance is zeroed before
// funds move.
func (e *Engine) WithdrawReleased(caller, recipient [20]byte, escrowID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	esc, err := e.state.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, errEscrowNotFound
	}
	if esc.Supplier != caller {
		return nil, errUnauthorized
	}
	if esc.Status != EscrowReleased && esc.Status != EscrowSeized {
		return nil, errNotReleased
	}
	amount := cloneOrZero(esc.Withdrawable)
	if amount.Sign() == 0 {
		return nil, errNothingToWithdraw
	}
	esc.Withdrawable = big.NewInt(0)
	if err := e.state.PutEscrow(esc); err != nil {
		return nil, err
	}
	if err := e.transferUnderlying(e.moduleAddress, recipient, amount); err != nil {
		return nil, err
	}
	e.emit(events.EscrowWithdrawn{EscrowID: esc.ID, Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// SwitchEscrow atomically rotates an active escrow onto a new supplier offer
// when a loan rolls: the custodied collateral stays put and starts backing a
// fresh escrow minted from the new offer, whose consumed capital repays the
// old escrow in full. New fee holds are pulled from feePayer; the old
// escrow's fee surplus is refunded to the caller. Loans authority only.
func (e *Engine) SwitchEscrow(caller [20]byte, oldEscrowID, newOfferID, newLoanID uint64, feePayer [20]byte) (*Escrow, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.requireLoansAuthority(caller); err != nil {
		return nil, nil, err
	}
	old, err := e.state.GetEscrow(oldEscrowID)
	if err != nil {
		return nil, nil, err
	}
	if old == nil {
		return nil, nil, errEscrowNotFound
	}
	if old.Status != EscrowActive {
		return nil, nil, errNotActive
	}
	amount := cloneOrZero(old.Escrowed)
	offer, err := e.state.GetEscrowOffer(newOfferID)
	if err != nil {
		return nil, nil, err
	}
	if offer == nil {
		return nil, nil, errOfferNotFound
	}
	if amount.Cmp(nativecommon.CloneBig(offer.MinEscrow)) < 0 {
		return nil, nil, errAmountBelowMinimum
	}
	if offer.Available == nil || offer.Available.Cmp(amount) < 0 {
		return nil, nil, errInsufficientOffer
	}
	interestHeld := InterestHold(amount, offer.InterestAPR, offer.Duration)
	lateFeeHeld := LateFeeHold(amount, offer.LateFeeAPR, offer.GracePeriod)
	fees := new(big.Int).Add(interestHeld, lateFeeHeld)
	if err := e.transferUnderlying(feePayer, e.moduleAddress, fees); err != nil {
		return nil, nil, err
	}
	offer.Available = new(big.Int).Sub(offer.Available, amount)
	if err := e.state.PutEscrowOffer(offer); err != nil {
		return nil, nil, err
	}

	// The new offer's consumed capital repays the old escrow without leaving
	// the vault.
	now := e.now()
	owed := old.OwedTo(now)
	available := new(big.Int).Add(amount, old.FeesHeld())
	withdrawable := nativecommon.BigMin(available, owed)
	leftover := new(big.Int).Sub(available, withdrawable)
	old.Status = EscrowReleased
	old.Withdrawable = withdrawable
	if err := e.state.PutEscrow(old); err != nil {
		return nil, nil, err
	}
	if err := e.transferUnderlying(e.moduleAddress, caller, leftover); err != nil {
		return nil, nil, err
	}
	e.emit(events.EscrowReleased{
		EscrowID:     old.ID,
		Repaid:       new(big.Int).Set(amount),
		Withdrawable: new(big.Int).Set(withdrawable),
		Leftover:     new(big.Int).Set(leftover),
	})

	id, err := e.state.NextEscrowID()
	if err != nil {
		return nil, nil, err
	}
	next := &Escrow{
		ID:           id,
		OfferID:      offer.ID,
		LoanID:       newLoanID,
		Supplier:     offer.Supplier,
		Escrowed:     new(big.Int).Set(amount),
		Duration:     offer.Duration,
		GracePeriod:  offer.GracePeriod,
		InterestAPR:  offer.InterestAPR,
		LateFeeAPR:   offer.LateFeeAPR,
		Expiration:   now + offer.Duration,
		InterestHeld: interestHeld,
		LateFeeHeld:  lateFeeHeld,
		Status:       EscrowActive,
		Withdrawable: big.NewInt(0),
	}
	if err := e.state.PutEscrow(next); err != nil {
		return nil, nil, err
	}
	e.emit(events.EscrowStarted{
		EscrowID:     next.ID,
		OfferID:      offer.ID,
		LoanID:       newLoanID,
		Escrowed:     nativecommon.CloneBig(next.Escrowed),
		InterestHeld: nativecommon.CloneBig(next.InterestHeld),
		LateFeeHeld:  nativecommon.CloneBig(next.LateFeeHeld),
		Expiration:   next.Expiration,
	})
	e.emit(events.EscrowSwitched{OldEscrowID: old.ID, NewEscrowID: next.ID, LoanID: newLoanID})
	return next.Clone(), new(big.Int).Set(leftover), nil
}
