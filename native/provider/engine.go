package provider

import (
	"errors"
	"math/big"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
)

var (
	errNilState            = nativecommon.Invariant("provider engine: state not configured")
	errInvalidAmount       = errors.New("provider engine: amount must be positive")
	errAmountBelowMinimum  = errors.New("provider engine: amount below offer minimum")
	errTermsOutOfBounds    = errors.New("provider engine: offer terms outside configured bounds")
	errOfferNotFound       = nativecommon.NotFound("provider engine: offer not found")
	errUnauthorized        = nativecommon.Unauthorized("provider engine: unauthorized caller")
	errInsufficientOffer   = errors.New("provider engine: offer amount insufficient")
	errInsufficientBalance = errors.New("provider engine: insufficient balance")
	errPositionNotFound    = nativecommon.NotFound("provider engine: position not found")
	errAlreadySettled      = nativecommon.Conflict("provider engine: position already settled")
	errNotSettled          = nativecommon.Conflict("provider engine: position not settled")
	errNothingToWithdraw   = nativecommon.Conflict("provider engine: nothing to withdraw")
	errNotCancellable      = nativecommon.Conflict("provider engine: position not cancellable")
)

const moduleName = "provider"

type engineState interface {
	GetOffer(id uint64) (*LiquidityOffer, error)
	PutOffer(offer *LiquidityOffer) error
	NextOfferID() (uint64, error)
	GetPosition(id uint64) (*Position, error)
	PutPosition(position *Position) error
	NextPositionID() (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine maintains the offer book and the provider position ledger. Locked
// cash is custodied in the module vault account; settlement deltas arrive
// from the paired taker engine.
type Engine struct {
	state          engineState
	moduleAddress  [20]byte
	feeRecipient   [20]byte
	protocolFeeAPR uint64
	bounds         TermsBounds
	pauses         nativecommon.PauseView
	emitter        events.Emitter
	nowFn          func() int64
}

// NewEngine constructs a provider engine custodying locked capital at the
// supplied module address and validating offers against bounds.
func NewEngine(moduleAddr [20]byte, bounds TermsBounds) *Engine {
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

// SetProtocolFee configures the fee APR charged on provider capital at mint
// and the account the fee accrues to.
func (e *Engine) SetProtocolFee(aprBips uint64, recipient [20]byte) {
	if e == nil {
		return
	}
	e.protocolFeeAPR = aprBips
	e.feeRecipient = recipient
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

// ModuleAddress returns the vault account holding locked provider capital.
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

func (e *Engine) validTerms(terms OfferTerms) bool {
	b := e.bounds
	if terms.Duration < b.MinDuration || terms.Duration > b.MaxDuration {
		return false
	}
	if terms.PutStrikePercent < b.MinPutStrikeBips || terms.PutStrikePercent > b.MaxPutStrikeBips {
		return false
	}
	// The put strike sits below par and the call strike above it.
	if terms.PutStrikePercent >= 10_000 {
		return false
	}
	if terms.CallStrikePercent <= 10_000 || terms.CallStrikePercent > b.MaxCallStrikeBips {
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

func (e *Engine) transferCash(from, to [20]byte, amount *big.Int) error {
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
	if fromAcc.BalanceCash.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceCash = new(big.Int).Sub(fromAcc.BalanceCash, amount)
	toAcc.BalanceCash = new(big.Int).Add(toAcc.BalanceCash, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// CreateOffer locks amount of the provider's cash into the offer book under
// the supplied terms and returns the recorded offer.
func (e *Engine) CreateOffer(providerAddr [20]byte, terms OfferTerms, amount *big.Int) (*LiquidityOffer, error) {
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
	minLocked := nativecommon.CloneBig(terms.MinLocked)
	if amount.Cmp(minLocked) < 0 {
		return nil, errAmountBelowMinimum
	}
	if err := e.transferCash(providerAddr, e.moduleAddress, amount); err != nil {
		return nil, err
	}
	id, err := e.state.NextOfferID()
	if err != nil {
		return nil, err
	}
	offer := &LiquidityOffer{
		ID:                id,
		Provider:          providerAddr,
		Available:         new(big.Int).Set(amount),
		PutStrikePercent:  terms.PutStrikePercent,
		CallStrikePercent: terms.CallStrikePercent,
		Duration:          terms.Duration,
		MinLocked:         minLocked,
	}
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(events.ProviderOfferCreated{
		OfferID:           offer.ID,
		Provider:          providerAddr,
		Available:         nativecommon.CloneBig(offer.Available),
		PutStrikePercent:  offer.PutStrikePercent,
		CallStrikePercent: offer.CallStrikePercent,
		Duration:          offer.Duration,
		MinLocked:         nativecommon.CloneBig(offer.MinLocked),
	})
	return offer.Clone(), nil
}

// UpdateOfferAmount deposits or refunds the difference between the offer's
// current availability and newAmount. Provider-only.
func (e *Engine) UpdateOfferAmount(caller [20]byte, offerID uint64, newAmount *big.Int) (*LiquidityOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if newAmount == nil || newAmount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	offer, err := e.state.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	if offer.Provider != caller {
		return nil, errUnauthorized
	}
	previous := nativecommon.CloneBig(offer.Available)
	switch newAmount.Cmp(previous) {
	case 1:
		delta := new(big.Int).Sub(newAmount, previous)
		if err := e.transferCash(caller, e.moduleAddress, delta); err != nil {
			return nil, err
		}
	case -1:
		delta := new(big.Int).Sub(previous, newAmount)
		if err := e.transferCash(e.moduleAddress, caller, delta); err != nil {
			return nil, err
		}
	}
	offer.Available = new(big.Int).Set(newAmount)
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(events.ProviderOfferUpdated{
		OfferID:           offer.ID,
		Provider:          caller,
		PreviousAvailable: previous,
		NewAvailable:      nativecommon.CloneBig(offer.Available),
	})
	return offer.Clone(), nil
}

// Offer returns a copy of the stored offer.
func (e *Engine) Offer(offerID uint64) (*LiquidityOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, err := e.state.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	return offer.Clone(), nil
}

// Position returns a copy of the stored position.
func (e *Engine) Position(positionID uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	return position.Clone(), nil
}

// MintFromOffer consumes lockAmount (plus the protocol fee) from the offer's
// availability and mints a position paired with takerID. The protocol fee is
// charged on the locked capital over the offer duration and paid to the fee
// recipient; the consumed capital remains in the module vault.
func (e *Engine) MintFromOffer(offerID uint64, lockAmount *big.Int, takerID uint64) (*Position, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if lockAmount == nil || lockAmount.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}
	offer, err := e.state.GetOffer(offerID)
	if err != nil {
		return nil, nil, err
	}
	if offer == nil {
		return nil, nil, errOfferNotFound
	}
	if lockAmount.Cmp(nativecommon.CloneBig(offer.MinLocked)) < 0 {
		return nil, nil, errAmountBelowMinimum
	}
	fee := e.protocolFee(lockAmount, offer.Duration)
	needed := new(big.Int).Add(lockAmount, fee)
	if offer.Available == nil || offer.Available.Cmp(needed) < 0 {
		return nil, nil, errInsufficientOffer
	}
	offer.Available = new(big.Int).Sub(offer.Available, needed)
	if err := e.state.PutOffer(offer); err != nil {
		return nil, nil, err
	}
	if fee.Sign() > 0 {
		if err := e.transferCash(e.moduleAddress, e.feeRecipient, fee); err != nil {
			return nil, nil, err
		}
	}
	id, err := e.state.NextPositionID()
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	position := &Position{
		ID:                id,
		OfferID:           offer.ID,
		TakerID:           takerID,
		Owner:             offer.Provider,
		Duration:          offer.Duration,
		Expiration:        now + offer.Duration,
		ProviderLocked:    new(big.Int).Set(lockAmount),
		PutStrikePercent:  offer.PutStrikePercent,
		CallStrikePercent: offer.CallStrikePercent,
		Status:            PositionOpen,
		Withdrawable:      big.NewInt(0),
	}
	if err := e.state.PutPosition(position); err != nil {
		return nil, nil, err
	}
	e.emit(events.ProviderPositionMinted{
		PositionID:     position.ID,
		OfferID:        offer.ID,
		TakerID:        takerID,
		ProviderLocked: nativecommon.CloneBig(position.ProviderLocked),
		ProtocolFee:    fee,
		Expiration:     position.Expiration,
	})
	return position.Clone(), new(big.Int).Set(fee), nil
}

// ProtocolFee previews the fee charged when minting a position of the given
// size and duration. The roll engine uses it to quote the cost of the
// replacement position.
func (e *Engine) ProtocolFee(locked *big.Int, duration int64) *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	return e.protocolFee(locked, duration)
}

// protocolFee computes locked * feeAPR * duration / (BIPS * year), rounding
// up so the protocol is never shorted by truncation.
func (e *Engine) protocolFee(locked *big.Int, duration int64) *big.Int {
	if e.protocolFeeAPR == 0 || locked == nil || locked.Sign() <= 0 || duration <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(locked, new(big.Int).SetUint64(e.protocolFeeAPR))
	num.Mul(num, big.NewInt(duration))
	den := new(big.Int).Mul(nativecommon.BasisPoints, big.NewInt(nativecommon.YearSeconds))
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Settle records the settlement outcome for a position. toProvider is the
// signed cash delta computed by the paired taker engine: positive moves value
// from the taker side to the provider side. The position's withdrawable is
// written exactly once here.
func (e *Engine) Settle(positionID uint64, toProvider *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	position, err := e.state.GetPosition(positionID)
	if err != nil {
		return err
	}
	if position == nil {
		return errPositionNotFound
	}
	if position.Status != PositionOpen {
		return errAlreadySettled
	}
	delta := nativecommon.CloneBig(toProvider)
	withdrawable := new(big.Int).Add(nativecommon.CloneBig(position.ProviderLocked), delta)
	if withdrawable.Sign() < 0 {
		// The payout formula clamps losses to the locked amount; a negative
		// balance here means the caller computed an out-of-range delta.
		return errInvalidAmount
	}
	position.Status = PositionSettled
	position.Withdrawable = withdrawable
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	e.emit(events.ProviderPositionSettled{
		PositionID:   position.ID,
		ToProvider:   delta,
		Withdrawable: new(big.Int).Set(withdrawable),
	})
	return nil
}

// Withdraw pays the settled balance to the recipient and terminates the
// position. Only the position owner may withdraw; the withdrawable balance is
// zeroed before funds move.
func (e *Engine) Withdraw(positionID uint64, caller, recipient [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	if position.Owner != caller {
		return nil, errUnauthorized
	}
	if position.Status != PositionSettled {
		return nil, errNotSettled
	}
	amount := nativecommon.CloneBig(position.Withdrawable)
	if amount.Sign() == 0 {
		return nil, errNothingToWithdraw
	}
	position.Withdrawable = big.NewInt(0)
	position.Status = PositionWithdrawn
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if err := e.transferCash(e.moduleAddress, recipient, amount); err != nil {
		return nil, err
	}
	e.emit(events.ProviderPositionWithdrawn{
		PositionID: position.ID,
		Recipient:  recipient,
		Amount:     new(big.Int).Set(amount),
	})
	return amount, nil
}

// Cancel unwinds an open position before expiration, returning the locked
// principal into the originating offer's availability so the capital stays in
// the book. Only the paired taker engine invokes this, as part of a mutual
// roll or unwind.
func (e *Engine) Cancel(positionID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	if position.Status != PositionOpen {
		return nil, errNotCancellable
	}
	if e.now() >= position.Expiration {
		return nil, errNotCancellable
	}
	refund := nativecommon.CloneBig(position.ProviderLocked)
	position.Status = PositionCancelled
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	offer, err := e.state.GetOffer(position.OfferID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	offer.Available = new(big.Int).Add(nativecommon.CloneBig(offer.Available), refund)
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(events.ProviderPositionCancelled{PositionID: position.ID, Refunded: new(big.Int).Set(refund)})
	return refund, nil
}
