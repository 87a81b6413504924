package rolls

import (
	"errors"
	"math/big"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
)

var (
	errNilState           = nativecommon.Invariant("rolls engine: state not configured")
	errNilTaker           = nativecommon.Invariant("rolls engine: taker engine not configured")
	errNilProvider        = nativecommon.Invariant("rolls engine: provider engine not configured")
	errNilOracle          = nativecommon.Invariant("rolls engine: oracle not configured")
	errOfferNotFound      = nativecommon.NotFound("rolls engine: offer not found")
	errOfferNotActive     = nativecommon.Conflict("rolls engine: offer not active")
	errUnauthorized       = nativecommon.Unauthorized("rolls engine: unauthorized caller")
	errInvalidOffer       = errors.New("rolls engine: invalid offer parameters")
	errDeadlinePassed     = nativecommon.Conflict("rolls engine: offer deadline passed")
	errPriceOutOfBounds   = errors.New("rolls engine: price outside provider-protected band")
	errPositionNotRollabe = nativecommon.Conflict("rolls engine: position not rollable")
	errSlippageTaker      = errors.New("rolls engine: transfer below taker minimum")
	errSlippageProvider   = errors.New("rolls engine: transfer below provider minimum")
	errBalanceChanged     = nativecommon.Invariant("rolls engine: module balance changed after roll")
)

const moduleName = "rolls"

// maxFeeMultiple caps how far the price adjustment may scale the base fee.
// The adjusted fee is clamped to [0, feeAmount*maxFeeMultiple] (mirrored for
// negative base fees) so it can never invert sign.
const maxFeeMultiple = 10

type engineState interface {
	GetRollOffer(id uint64) (*Offer, error)
	PutRollOffer(offer *Offer) error
	NextRollOfferID() (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine computes and executes position rolls: the atomic unwind of a live
// pair and its replacement at the provider's updated terms and fee. The
// engine's own vault account only relays cash during execution, so its
// balance must be identical before and after every roll; that identity is
// checked at the end of each execution.
type Engine struct {
	state         engineState
	taker         *taker.Engine
	provider      *provider.Engine
	oracle        pricing.Oracle
	moduleAddress [20]byte
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	nowFn         func() int64
}

// NewEngine constructs a rolls engine relaying cash through the supplied
// module address.
func NewEngine(moduleAddr [20]byte) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTakerEngine wires the taker ledger.
func (e *Engine) SetTakerEngine(t *taker.Engine) { e.taker = t }

// SetProviderEngine wires the provider ledger.
func (e *Engine) SetProviderEngine(p *provider.Engine) { e.provider = p }

// SetOracle wires the price oracle used at execution time.
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
		return errInvalidOffer
	}
	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceCash.Cmp(amount) < 0 {
		return errors.New("rolls engine: insufficient balance")
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

// CreateOffer records a provider's consent to roll the given taker position.
// The caller must own the paired provider position and the liquidity offer
// the replacement will mint from.
func (e *Engine) CreateOffer(caller [20]byte, offer Offer) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.taker == nil {
		return nil, errNilTaker
	}
	if e.provider == nil {
		return nil, errNilProvider
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if offer.FeeReferencePrice == nil || offer.FeeReferencePrice.Sign() <= 0 {
		return nil, errInvalidOffer
	}
	if offer.MinPrice == nil || offer.MaxPrice == nil || offer.MinPrice.Sign() <= 0 ||
		offer.MinPrice.Cmp(offer.MaxPrice) > 0 {
		return nil, errInvalidOffer
	}
	if offer.Deadline <= e.now() {
		return nil, errInvalidOffer
	}
	position, err := e.taker.Position(offer.TakerID)
	if err != nil {
		return nil, err
	}
	if position.Status != taker.PositionOpen || e.now() >= position.Expiration {
		return nil, errPositionNotRollabe
	}
	providerPos, err := e.provider.Position(position.ProviderID)
	if err != nil {
		return nil, err
	}
	if providerPos.Owner != caller {
		return nil, errUnauthorized
	}
	liquidity, err := e.provider.Offer(offer.ProviderOfferID)
	if err != nil {
		return nil, err
	}
	if liquidity.Provider != caller {
		return nil, errUnauthorized
	}
	id, err := e.state.NextRollOfferID()
	if err != nil {
		return nil, err
	}
	stored := offer.Clone()
	stored.ID = id
	stored.Provider = caller
	stored.Status = OfferActive
	if err := e.state.PutRollOffer(stored); err != nil {
		return nil, err
	}
	e.emit(events.RollOfferCreated{
		RollID:     stored.ID,
		TakerID:    stored.TakerID,
		Provider:   caller,
		FeeAmount:  cloneSigned(stored.FeeAmount),
		MinPrice:   cloneSigned(stored.MinPrice),
		MaxPrice:   cloneSigned(stored.MaxPrice),
		Deadline:   stored.Deadline,
		ProviderID: position.ProviderID,
	})
	return stored.Clone(), nil
}

// CancelOffer deactivates an active roll offer. Provider-only.
func (e *Engine) CancelOffer(caller [20]byte, rollID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	offer, err := e.state.GetRollOffer(rollID)
	if err != nil {
		return err
	}
	if offer == nil {
		return errOfferNotFound
	}
	if offer.Provider != caller {
		return errUnauthorized
	}
	if offer.Status != OfferActive {
		return errOfferNotActive
	}
	offer.Status = OfferCancelled
	if err := e.state.PutRollOffer(offer); err != nil {
		return err
	}
	e.emit(events.RollOfferCancelled{RollID: offer.ID})
	return nil
}

// Offer returns a copy of the stored roll offer.
func (e *Engine) Offer(rollID uint64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, err := e.state.GetRollOffer(rollID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	return offer.Clone(), nil
}

// RollFee adjusts the base fee by the offer's price sensitivity:
// feeAmount + feeAmount * feeDeltaFactorBips/BIPS * (price-ref)/ref, with the
// division truncated toward zero and the result clamped so it can never
// invert the base fee's sign nor exceed maxFeeMultiple times its magnitude.
func RollFee(offer *Offer, price *big.Int) *big.Int {
	base := cloneSigned(offer.FeeAmount)
	if base.Sign() == 0 || offer.FeeDeltaFactorBips == 0 {
		return base
	}
	ref := cloneSigned(offer.FeeReferencePrice)
	if ref.Sign() <= 0 {
		return base
	}
	delta := new(big.Int).Sub(price, ref)
	num := new(big.Int).Mul(base, big.NewInt(offer.FeeDeltaFactorBips))
	num.Mul(num, delta)
	den := new(big.Int).Mul(ref, nativecommon.BasisPoints)
	adjustment := new(big.Int).Quo(num, den)
	fee := new(big.Int).Add(base, adjustment)
	cap := new(big.Int).Mul(base, big.NewInt(maxFeeMultiple))
	if base.Sign() > 0 {
		if fee.Sign() < 0 {
			fee.SetInt64(0)
		}
		if fee.Cmp(cap) > 0 {
			fee.Set(cap)
		}
	} else {
		if fee.Sign() > 0 {
			fee.SetInt64(0)
		}
		if fee.Cmp(cap) < 0 {
			fee.Set(cap)
		}
	}
	return fee
}

// PreviewRoll computes the roll's cash flows at the supplied price without
// mutating any state. The price must sit inside the offer's protected band.
func (e *Engine) PreviewRoll(rollID uint64, price *big.Int) (*Preview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.taker == nil {
		return nil, errNilTaker
	}
	if e.provider == nil {
		return nil, errNilProvider
	}
	offer, err := e.state.GetRollOffer(rollID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, errOfferNotFound
	}
	if price == nil || price.Sign() <= 0 {
		return nil, pricing.ErrInvalidPrice
	}
	if price.Cmp(offer.MinPrice) < 0 || price.Cmp(offer.MaxPrice) > 0 {
		return nil, errPriceOutOfBounds
	}
	position, err := e.taker.Position(offer.TakerID)
	if err != nil {
		return nil, err
	}
	liquidity, err := e.provider.Offer(offer.ProviderOfferID)
	if err != nil {
		return nil, err
	}
	return previewAt(offer, position, liquidity, price, e.provider), nil
}

func previewAt(offer *Offer, position *taker.Position, liquidity *provider.LiquidityOffer, price *big.Int, providerEngine *provider.Engine) *Preview {
	rollFee := RollFee(offer, price)
	// Settle the live pair as-if now, at the execution price.
	toProviderSettle := taker.SettlementToProvider(
		position.TakerLocked, position.ProviderLocked,
		position.StartPrice, position.PutStrikePrice, position.CallStrikePrice,
		price,
	)
	// The replacement position tracks the price move: the taker lock scales
	// by price/startPrice so the new pair covers the same underlying amount.
	newTakerLocked := nativecommon.MulDiv(position.TakerLocked, price, position.StartPrice)
	newProviderLocked := taker.ProviderLockedFor(newTakerLocked, liquidity.PutStrikePercent, liquidity.CallStrikePercent)
	protocolFee := providerEngine.ProtocolFee(newProviderLocked, liquidity.Duration)

	// Taker wallet: principal refund, minus the as-if settlement delta, the
	// roll fee, and the replacement lock.
	toTaker := new(big.Int).Set(position.TakerLocked)
	toTaker.Sub(toTaker, toProviderSettle)
	toTaker.Sub(toTaker, rollFee)
	toTaker.Sub(toTaker, newTakerLocked)
	// Provider wallet: the as-if settlement delta plus the roll fee. The
	// cancelled principal and the replacement lock flow through the liquidity
	// offer, not the provider's wallet.
	toProvider := new(big.Int).Add(toProviderSettle, rollFee)

	return &Preview{
		ToTaker:           toTaker,
		ToProvider:        toProvider,
		RollFee:           rollFee,
		NewTakerLocked:    newTakerLocked,
		NewProviderLocked: newProviderLocked,
		ProtocolFee:       protocolFee,
	}
}

// ExecuteRoll atomically unwinds the offer's paired position and opens its
// replacement, settling the price move and fee between the parties. The
// caller must own the taker position; minToTaker guards the caller against
// preview drift. Cash relays through the engine's vault, whose balance is
// asserted unchanged at the end.
func (e *Engine) ExecuteRoll(caller [20]byte, rollID uint64, minToTaker *big.Int) (*taker.Position, *Preview, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.taker == nil {
		return nil, nil, errNilTaker
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
	offer, err := e.state.GetRollOffer(rollID)
	if err != nil {
		return nil, nil, err
	}
	if offer == nil {
		return nil, nil, errOfferNotFound
	}
	if offer.Status != OfferActive {
		return nil, nil, errOfferNotActive
	}
	if e.now() > offer.Deadline {
		return nil, nil, errDeadlinePassed
	}
	position, err := e.taker.Position(offer.TakerID)
	if err != nil {
		return nil, nil, err
	}
	if position.Owner != caller {
		return nil, nil, errUnauthorized
	}
	if position.Status != taker.PositionOpen || e.now() >= position.Expiration {
		return nil, nil, errPositionNotRollabe
	}
	price, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, nil, err
	}
	if price.Cmp(offer.MinPrice) < 0 || price.Cmp(offer.MaxPrice) > 0 {
		return nil, nil, errPriceOutOfBounds
	}
	liquidity, err := e.provider.Offer(offer.ProviderOfferID)
	if err != nil {
		return nil, nil, err
	}
	preview := previewAt(offer, position, liquidity, price, e.provider)
	if minToTaker != nil && preview.ToTaker.Cmp(minToTaker) < 0 {
		return nil, nil, errSlippageTaker
	}
	if offer.MinToProvider != nil && preview.ToProvider.Cmp(offer.MinToProvider) < 0 {
		return nil, nil, errSlippageProvider
	}

	vaultBefore, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, nil, err
	}
	balanceBefore := new(big.Int).Set(vaultBefore.BalanceCash)

	// Effects first: the offer is consumed before any cash moves.
	offer.Status = OfferExecuted
	if err := e.state.PutRollOffer(offer); err != nil {
		return nil, nil, err
	}

	if _, err := e.taker.Cancel(offer.TakerID, caller); err != nil {
		return nil, nil, err
	}
	// Net settlement-plus-fee between the parties, relayed via the vault.
	// This is exactly the provider's wallet delta from the preview.
	net := new(big.Int).Set(preview.ToProvider)
	if net.Sign() > 0 {
		if err := e.transferCash(caller, e.moduleAddress, net); err != nil {
			return nil, nil, err
		}
		if err := e.transferCash(e.moduleAddress, offer.Provider, net); err != nil {
			return nil, nil, err
		}
	} else if net.Sign() < 0 {
		owed := new(big.Int).Neg(net)
		if err := e.transferCash(offer.Provider, e.moduleAddress, owed); err != nil {
			return nil, nil, err
		}
		if err := e.transferCash(e.moduleAddress, caller, owed); err != nil {
			return nil, nil, err
		}
	}
	newPosition, _, err := e.taker.OpenPaired(caller, offer.ProviderOfferID, preview.NewTakerLocked)
	if err != nil {
		return nil, nil, err
	}

	vaultAfter, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, nil, err
	}
	if vaultAfter.BalanceCash.Cmp(balanceBefore) != 0 {
		return nil, nil, errBalanceChanged
	}

	e.emit(events.RollExecuted{
		RollID:     offer.ID,
		TakerID:    offer.TakerID,
		NewTakerID: newPosition.ID,
		Price:      new(big.Int).Set(price),
		RollFee:    cloneSigned(preview.RollFee),
		ToTaker:    cloneSigned(preview.ToTaker),
		ToProvider: cloneSigned(preview.ToProvider),
	})
	return newPosition, preview, nil
}
