package taker

import (
	"errors"
	"math/big"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
)

var (
	errNilState            = nativecommon.Invariant("taker engine: state not configured")
	errNilProvider         = nativecommon.Invariant("taker engine: provider engine not configured")
	errNilOracle           = nativecommon.Invariant("taker engine: oracle not configured")
	errInvalidAmount       = errors.New("taker engine: amount must be positive")
	errInsufficientBalance = errors.New("taker engine: insufficient balance")
	errPositionNotFound    = nativecommon.NotFound("taker engine: position not found")
	errUnauthorized        = nativecommon.Unauthorized("taker engine: unauthorized caller")
	errNotExpired          = nativecommon.Conflict("taker engine: position not yet expired")
	errAlreadySettled      = nativecommon.Conflict("taker engine: position already settled")
	errNotSettled          = nativecommon.Conflict("taker engine: position not settled")
	errNothingToWithdraw   = nativecommon.Conflict("taker engine: nothing to withdraw")
	errNotCancellable      = nativecommon.Conflict("taker engine: position not cancellable")
)

const moduleName = "taker"

type engineState interface {
	GetPosition(id uint64) (*Position, error)
	PutPosition(position *Position) error
	NextPositionID() (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine pairs taker deposits with provider liquidity and settles the pair at
// expiration against the oracle price. It is the single writer of taker
// positions; the paired provider ledger is mutated only through the provider
// engine's mint/settle/cancel entry points.
type Engine struct {
	state         engineState
	provider      *provider.Engine
	oracle        pricing.Oracle
	moduleAddress [20]byte
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	nowFn         func() int64
}

// NewEngine constructs a taker engine custodying taker capital at the module
// address.
func NewEngine(moduleAddr [20]byte) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetProviderEngine wires the paired provider ledger.
func (e *Engine) SetProviderEngine(p *provider.Engine) { e.provider = p }

// SetOracle wires the settlement price oracle.
func (e *Engine) SetOracle(oracle pricing.Oracle) { e.oracle = oracle }

// SetPauses wires the governance pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
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

// ModuleAddress returns the vault account holding locked taker capital.
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

// OpenPaired locks takerLocked from the owner against liquidity consumed from
// the provider offer, fixing the start price and strike prices at the current
// oracle price. The provider lock is sized so each side exactly covers its
// strike band. Returns the taker position paired 1:1 with the freshly minted
// provider position.
func (e *Engine) OpenPaired(owner [20]byte, offerID uint64, takerLocked *big.Int) (*Position, *provider.Position, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.provider == nil {
		return nil, nil, errNilProvider
	}
	if e.oracle == nil {
		return nil, nil, errNilOracle
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if takerLocked == nil || takerLocked.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}
	offer, err := e.provider.Offer(offerID)
	if err != nil {
		return nil, nil, err
	}
	startPrice, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, nil, err
	}
	if startPrice.Sign() <= 0 {
		return nil, nil, pricing.ErrInvalidPrice
	}
	providerLocked := ProviderLockedFor(takerLocked, offer.PutStrikePercent, offer.CallStrikePercent)
	if providerLocked.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}
	if err := e.transferCash(owner, e.moduleAddress, takerLocked); err != nil {
		return nil, nil, err
	}
	id, err := e.state.NextPositionID()
	if err != nil {
		return nil, nil, err
	}
	providerPos, _, err := e.provider.MintFromOffer(offerID, providerLocked, id)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	position := &Position{
		ID:              id,
		ProviderID:      providerPos.ID,
		Owner:           owner,
		Duration:        offer.Duration,
		Expiration:      now + offer.Duration,
		StartPrice:      startPrice,
		PutStrikePrice:  StrikePrice(startPrice, offer.PutStrikePercent),
		CallStrikePrice: StrikePrice(startPrice, offer.CallStrikePercent),
		TakerLocked:     new(big.Int).Set(takerLocked),
		ProviderLocked:  nativecommon.CloneBig(providerPos.ProviderLocked),
		Status:          PositionOpen,
		Withdrawable:    big.NewInt(0),
	}
	if err := e.state.PutPosition(position); err != nil {
		return nil, nil, err
	}
	e.emit(events.TakerPositionOpened{
		PositionID:      position.ID,
		ProviderID:      providerPos.ID,
		StartPrice:      nativecommon.CloneBig(position.StartPrice),
		PutStrikePrice:  nativecommon.CloneBig(position.PutStrikePrice),
		CallStrikePrice: nativecommon.CloneBig(position.CallStrikePrice),
		TakerLocked:     nativecommon.CloneBig(position.TakerLocked),
		ProviderLocked:  nativecommon.CloneBig(position.ProviderLocked),
		Expiration:      position.Expiration,
	})
	return position.Clone(), providerPos, nil
}

// Settle computes and records the settlement outcome once the position has
// expired. Any caller may trigger settlement; the outcome depends only on the
// oracle price at expiration (falling back to the current price when no
// historical observation exists, surfaced via the HistoricalPriceUsed flag).
// Settlement is at-most-once: a second call fails with "already settled" and
// leaves state untouched.
func (e *Engine) Settle(positionID uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.provider == nil {
		return nil, errNilProvider
	}
	if e.oracle == nil {
		return nil, errNilOracle
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
	if position.Status != PositionOpen {
		return nil, errAlreadySettled
	}
	if e.now() < position.Expiration {
		return nil, errNotExpired
	}
	endPrice, historical, err := e.oracle.PastPriceWithFallback(position.Expiration)
	if err != nil {
		return nil, err
	}
	if endPrice.Sign() <= 0 {
		return nil, pricing.ErrInvalidPrice
	}
	toProvider := SettlementToProvider(
		position.TakerLocked, position.ProviderLocked,
		position.StartPrice, position.PutStrikePrice, position.CallStrikePrice,
		endPrice,
	)
	withdrawable := new(big.Int).Sub(nativecommon.CloneBig(position.TakerLocked), toProvider)

	// Effects before transfers: the settled status and balances are committed
	// ahead of any cash movement so a re-entrant settle observes terminal
	// state.
	position.Status = PositionSettled
	position.Withdrawable = withdrawable
	position.SettledPrice = new(big.Int).Set(endPrice)
	position.HistoricalPriceUsed = historical
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if err := e.provider.Settle(position.ProviderID, toProvider); err != nil {
		return nil, err
	}
	// Move the settlement delta between the two module vaults so each side's
	// withdrawable is fully backed by its own vault.
	if toProvider.Sign() > 0 {
		if err := e.transferCash(e.moduleAddress, e.provider.ModuleAddress(), toProvider); err != nil {
			return nil, err
		}
	} else if toProvider.Sign() < 0 {
		fromProvider := new(big.Int).Neg(toProvider)
		if err := e.transferCash(e.provider.ModuleAddress(), e.moduleAddress, fromProvider); err != nil {
			return nil, err
		}
	}
	e.emit(events.TakerPositionSettled{
		PositionID:          position.ID,
		EndPrice:            new(big.Int).Set(endPrice),
		HistoricalPriceUsed: historical,
		ToProvider:          nativecommon.CloneBig(toProvider),
		Withdrawable:        new(big.Int).Set(withdrawable),
	})
	return position.Clone(), nil
}

// Withdraw pays the settled balance to the recipient and terminates the
// position. Only the owner may withdraw; the balance is zeroed before funds
// move so a re-entrant withdraw cannot double-spend.
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
	e.emit(events.TakerPositionWithdrawn{
		PositionID: position.ID,
		Recipient:  recipient,
		Amount:     new(big.Int).Set(amount),
	})
	return amount, nil
}

// Cancel unwinds an open pair before expiration: both sides recover exactly
// their locked principal, the taker's directly to the owner and the
// provider's back into the originating offer. Mutual consent is enforced by
// the calling layer (rolls and loans); the engine only permits cancellation
// while the pair is live and unexpired.
func (e *Engine) Cancel(positionID uint64, caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.provider == nil {
		return nil, errNilProvider
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
	if position.Status != PositionOpen {
		return nil, errNotCancellable
	}
	if e.now() >= position.Expiration {
		return nil, errNotCancellable
	}
	refund := nativecommon.CloneBig(position.TakerLocked)
	position.Status = PositionCancelled
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if _, err := e.provider.Cancel(position.ProviderID); err != nil {
		return nil, err
	}
	if err := e.transferCash(e.moduleAddress, position.Owner, refund); err != nil {
		return nil, err
	}
	e.emit(events.TakerPositionCancelled{PositionID: position.ID, Refunded: new(big.Int).Set(refund)})
	return refund, nil
}
