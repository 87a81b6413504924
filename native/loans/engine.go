package loans

import (
	"errors"
	"math/big"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
)

var (
	errNilState            = nativecommon.Invariant("loans engine: state not configured")
	errNilTaker            = nativecommon.Invariant("loans engine: taker engine not configured")
	errNilProvider         = nativecommon.Invariant("loans engine: provider engine not configured")
	errNilRolls            = nativecommon.Invariant("loans engine: rolls engine not configured")
	errNilEscrow           = nativecommon.Invariant("loans engine: escrow engine not configured")
	errNilOracle           = nativecommon.Invariant("loans engine: oracle not configured")
	errNilSwapper          = nativecommon.Invariant("loans engine: swapper not configured")
	errInvalidAmount       = errors.New("loans engine: amount must be positive")
	errInsufficientBalance = errors.New("loans engine: insufficient balance")
	errLoanNotFound        = nativecommon.NotFound("loans engine: loan not found")
	errLoanNotActive       = nativecommon.Conflict("loans engine: loan not active")
	errUnauthorized        = nativecommon.Unauthorized("loans engine: unauthorized caller")
	errLoanBelowMinimum    = errors.New("loans engine: loan amount below minimum")
	errDurationMismatch    = errors.New("loans engine: escrow offer duration mismatch")
	errNotExpired          = nativecommon.Conflict("loans engine: position not yet expired")
	errNotCancellable      = nativecommon.Conflict("loans engine: loan past expiration")
	errNoEscrow            = errors.New("loans engine: loan has no escrow")
	errEscrowNotActive     = nativecommon.Conflict("loans engine: escrow not active")
	errGracePeriodRunning  = nativecommon.Conflict("loans engine: grace period not elapsed")
	errRollMismatch        = errors.New("loans engine: roll offer targets another loan")
)

const moduleName = "loans"

type engineState interface {
	GetLoan(id uint64) (*Loan, error)
	PutLoan(loan *Loan) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine is the borrower-facing composition layer: it swaps the borrower's
// underlying into cash, opens the paired position with the taker-side share
// as the collar deposit, and hands the borrower the rest as the loan. Closing
// reverses the trade. The engine's vault account is transient custody for
// swap legs; escrowed collateral lives in the escrow engine's vault.
type Engine struct {
	state            engineState
	taker            *taker.Engine
	provider         *provider.Engine
	rolls            *rolls.Engine
	escrow           *escrow.Engine
	oracle           pricing.Oracle
	swapper          Swapper
	moduleAddress    [20]byte
	maxDeviationBips uint64
	pauses           nativecommon.PauseView
	emitter          events.Emitter
	nowFn            func() int64
}

// NewEngine constructs a loans engine relaying swaps through the supplied
// module address.
func NewEngine(moduleAddr [20]byte) *Engine {
	return &Engine{
		moduleAddress:    moduleAddr,
		maxDeviationBips: pricing.DefaultMaxDeviationBips,
		emitter:          events.NoopEmitter{},
		nowFn:            func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTakerEngine wires the taker ledger.
func (e *Engine) SetTakerEngine(t *taker.Engine) { e.taker = t }

// SetProviderEngine wires the provider ledger.
func (e *Engine) SetProviderEngine(p *provider.Engine) { e.provider = p }

// SetRollsEngine wires the roll executor.
func (e *Engine) SetRollsEngine(r *rolls.Engine) { e.rolls = r }

// SetEscrowEngine wires the escrow ledger. The escrow engine's loans
// authority must be this engine's module address for escrowed loans to work.
func (e *Engine) SetEscrowEngine(esc *escrow.Engine) { e.escrow = esc }

// SetOracle wires the price oracle backing the swap deviation guard.
func (e *Engine) SetOracle(oracle pricing.Oracle) { e.oracle = oracle }

// SetSwapper wires the swap adapter.
func (e *Engine) SetSwapper(s Swapper) { e.swapper = s }

// SetMaxDeviation overrides the swap deviation tolerance in basis points.
func (e *Engine) SetMaxDeviation(bips uint64) {
	if e == nil {
		return
	}
	e.maxDeviationBips = bips
}

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

// ModuleAddress returns the vault account swaps relay through.
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

// swapUnderlyingToCash sells amount of the vault's underlying and returns the
// cash realized. The adapter's report is re-verified against the vault's
// balance deltas and the oracle price before it is trusted.
func (e *Engine) swapUnderlyingToCash(amount *big.Int) (*big.Int, error) {
	price, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, err
	}
	expected, err := pricing.ConvertToQuote(amount, price, e.oracle.BaseUnitAmount())
	if err != nil {
		return nil, err
	}
	before, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	beforeCash := new(big.Int).Set(before.BalanceCash)
	beforeUnderlying := new(big.Int).Set(before.BalanceUnderlying)
	out, err := e.swapper.SwapUnderlyingToCash(e.moduleAddress, amount, minOutFor(expected, e.maxDeviationBips))
	if err != nil {
		return nil, err
	}
	after, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	spent := new(big.Int).Sub(beforeUnderlying, after.BalanceUnderlying)
	if spent.Cmp(amount) != 0 {
		return nil, errSwapInputMismatch
	}
	gained := new(big.Int).Sub(after.BalanceCash, beforeCash)
	if out == nil || gained.Cmp(out) != 0 {
		return nil, errSwapOutputMismatch
	}
	if err := checkSwapDeviation(out, expected, e.maxDeviationBips); err != nil {
		return nil, err
	}
	return new(big.Int).Set(out), nil
}

// swapCashToUnderlying buys underlying with amount of the vault's cash under
// the same verification regime.
func (e *Engine) swapCashToUnderlying(amount *big.Int) (*big.Int, error) {
	price, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, err
	}
	expected, err := pricing.ConvertToBase(amount, price, e.oracle.BaseUnitAmount())
	if err != nil {
		return nil, err
	}
	before, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	beforeCash := new(big.Int).Set(before.BalanceCash)
	beforeUnderlying := new(big.Int).Set(before.BalanceUnderlying)
	out, err := e.swapper.SwapCashToUnderlying(e.moduleAddress, amount, minOutFor(expected, e.maxDeviationBips))
	if err != nil {
		return nil, err
	}
	after, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	spent := new(big.Int).Sub(beforeCash, after.BalanceCash)
	if spent.Cmp(amount) != 0 {
		return nil, errSwapInputMismatch
	}
	gained := new(big.Int).Sub(after.BalanceUnderlying, beforeUnderlying)
	if out == nil || gained.Cmp(out) != 0 {
		return nil, errSwapOutputMismatch
	}
	if err := checkSwapDeviation(out, expected, e.maxDeviationBips); err != nil {
		return nil, err
	}
	return new(big.Int).Set(out), nil
}

// Loan returns a copy of the stored loan.
func (e *Engine) Loan(loanID uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, errLoanNotFound
	}
	return loan.Clone(), nil
}

func (e *Engine) requireWired(needEscrow bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.taker == nil {
		return errNilTaker
	}
	if e.provider == nil {
		return errNilProvider
	}
	if e.oracle == nil {
		return errNilOracle
	}
	if e.swapper == nil {
		return errNilSwapper
	}
	if needEscrow && e.escrow == nil {
		return errNilEscrow
	}
	return nil
}

// OpenLoan sells the borrower's underlying, locks the put-protected share of
// the proceeds into a fresh paired position and pays out the remainder as the
// loan. With escrow enabled the borrower's collateral is substituted by
// supplier capital from the escrow offer, whose upfront fee holds are also
// pulled from the borrower, in underlying.
func (e *Engine) OpenLoan(borrower [20]byte, params OpenParams) (*Loan, error) {
	if err := e.requireWired(params.UsesEscrow); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	amount := params.UnderlyingAmount
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	providerOffer, err := e.provider.Offer(params.ProviderOfferID)
	if err != nil {
		return nil, err
	}
	if params.UsesEscrow {
		escrowOffer, err := e.escrow.Offer(params.EscrowOfferID)
		if err != nil {
			return nil, err
		}
		if escrowOffer.Duration != providerOffer.Duration {
			return nil, errDurationMismatch
		}
	}
	if err := e.transferUnderlying(borrower, e.moduleAddress, amount); err != nil {
		return nil, err
	}
	proceeds, err := e.swapUnderlyingToCash(amount)
	if err != nil {
		return nil, err
	}
	// The taker-side deposit is the share of proceeds the put strike exposes;
	// the rest is the borrower's loan.
	exposed := new(big.Int).Sub(nativecommon.BasisPoints, new(big.Int).SetUint64(providerOffer.PutStrikePercent))
	takerLocked := nativecommon.MulDiv(proceeds, exposed, nativecommon.BasisPoints)
	loanAmount := new(big.Int).Sub(proceeds, takerLocked)
	if params.MinLoanAmount != nil && loanAmount.Cmp(params.MinLoanAmount) < 0 {
		return nil, errLoanBelowMinimum
	}
	// Full proceeds to the borrower; opening the position pulls the deposit
	// straight back, leaving exactly the loan amount.
	if err := e.transferCash(e.moduleAddress, borrower, proceeds); err != nil {
		return nil, err
	}
	position, _, err := e.taker.OpenPaired(borrower, params.ProviderOfferID, takerLocked)
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:               position.ID,
		Borrower:         borrower,
		UnderlyingAmount: new(big.Int).Set(amount),
		LoanAmount:       loanAmount,
		UsesEscrow:       params.UsesEscrow,
		Status:           LoanActive,
	}
	if params.UsesEscrow {
		esc, err := e.escrow.EscrowAndMint(e.moduleAddress, params.EscrowOfferID, amount, position.ID, borrower)
		if err != nil {
			return nil, err
		}
		loan.EscrowOfferID = params.EscrowOfferID
		loan.EscrowID = esc.ID
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanOpened{
		LoanID:           loan.ID,
		Borrower:         borrower,
		UnderlyingAmount: new(big.Int).Set(amount),
		LoanAmount:       new(big.Int).Set(loanAmount),
		TakerLocked:      takerLocked,
		EscrowID:         loan.EscrowID,
		UsesEscrow:       loan.UsesEscrow,
	})
	return loan.Clone(), nil
}

func (e *Engine) authorized(loan *Loan, caller [20]byte) bool {
	if loan.Borrower == caller {
		return true
	}
	return loan.KeeperApproved && loan.Keeper == caller
}

// settleAndWithdraw drives the paired position to its terminal state and
// collects the taker-side payout into the vault. Safe to call when another
// party already triggered settlement.
func (e *Engine) settleAndWithdraw(loan *Loan) (*big.Int, error) {
	position, err := e.taker.Position(loan.ID)
	if err != nil {
		return nil, err
	}
	if position.Status == taker.PositionOpen {
		if position, err = e.taker.Settle(loan.ID); err != nil {
			return nil, err
		}
	}
	if position.Status == taker.PositionSettled && position.Withdrawable != nil && position.Withdrawable.Sign() > 0 {
		return e.taker.Withdraw(loan.ID, loan.Borrower, e.moduleAddress)
	}
	return big.NewInt(0), nil
}

// releaseEscrowInto repays the supplier from the vault's underlying and
// returns what flows back to the borrower side: the swap output net of the
// repayment, plus the fee surplus and the custodied collateral the release
// hands back.
func (e *Engine) releaseEscrowInto(loan *Loan, underlyingOut *big.Int) (*escrow.Escrow, *big.Int, error) {
	esc, err := e.escrow.Escrow(loan.EscrowID)
	if err != nil {
		return nil, nil, err
	}
	if esc.Status != escrow.EscrowActive {
		return nil, nil, errEscrowNotActive
	}
	maxRepay := new(big.Int).Add(esc.Escrowed, esc.LateFeeOwed(e.now()))
	repay := nativecommon.BigMin(underlyingOut, maxRepay)
	released, leftover, err := e.escrow.ReleaseEscrow(e.moduleAddress, loan.EscrowID, repay)
	if err != nil {
		return nil, nil, err
	}
	toBorrower := new(big.Int).Sub(underlyingOut, repay)
	toBorrower.Add(toBorrower, leftover)
	toBorrower.Add(toBorrower, released.Escrowed)
	return released, toBorrower, nil
}

// CloseLoan repays the loan at or after expiration, settles the paired
// position, buys the underlying back with the combined cash and returns it to
// the borrower, net of the escrow repayment when one backs the loan. The
// borrower or an approved keeper may close; the repayment is always pulled
// from the borrower and the underlying always returns to the borrower.
func (e *Engine) CloseLoan(caller [20]byte, loanID uint64) (*big.Int, error) {
	if err := e.requireWired(false); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, errLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, errLoanNotActive
	}
	if !e.authorized(loan, caller) {
		return nil, errUnauthorized
	}
	if loan.UsesEscrow && e.escrow == nil {
		return nil, errNilEscrow
	}
	position, err := e.taker.Position(loan.ID)
	if err != nil {
		return nil, err
	}
	if e.now() < position.Expiration {
		return nil, errNotExpired
	}
	repayment := nativecommon.CloneBig(loan.LoanAmount)
	if err := e.transferCash(loan.Borrower, e.moduleAddress, repayment); err != nil {
		return nil, err
	}
	withdrawn, err := e.settleAndWithdraw(loan)
	if err != nil {
		return nil, err
	}
	totalCash := new(big.Int).Add(repayment, withdrawn)
	underlyingOut := big.NewInt(0)
	if totalCash.Sign() > 0 {
		if underlyingOut, err = e.swapCashToUnderlying(totalCash); err != nil {
			return nil, err
		}
	}
	toBorrower := underlyingOut
	if loan.UsesEscrow {
		if _, toBorrower, err = e.releaseEscrowInto(loan, underlyingOut); err != nil {
			return nil, err
		}
	}
	loan.Status = LoanClosed
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.transferUnderlying(e.moduleAddress, loan.Borrower, toBorrower); err != nil {
		return nil, err
	}
	e.emit(events.LoanClosed{
		LoanID:        loan.ID,
		Repayment:     repayment,
		UnderlyingOut: new(big.Int).Set(toBorrower),
	})
	return new(big.Int).Set(toBorrower), nil
}

// CancelLoan unwinds an unexpired loan by mutual agreement with the pair
// cancellation rules: the borrower keeps the loan cash, recovers the locked
// deposit and, for escrowed loans, returns the escrowed principal in
// underlying so the supplier exits whole with accrued interest. Borrower-only.
func (e *Engine) CancelLoan(caller [20]byte, loanID uint64) error {
	if err := e.requireWired(false); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return errLoanNotFound
	}
	if loan.Status != LoanActive {
		return errLoanNotActive
	}
	if loan.Borrower != caller {
		return errUnauthorized
	}
	if loan.UsesEscrow && e.escrow == nil {
		return errNilEscrow
	}
	position, err := e.taker.Position(loan.ID)
	if err != nil {
		return err
	}
	if e.now() >= position.Expiration {
		return errNotCancellable
	}
	if _, err := e.taker.Cancel(loan.ID, loan.Borrower); err != nil {
		return err
	}
	if loan.UsesEscrow {
		esc, err := e.escrow.Escrow(loan.EscrowID)
		if err != nil {
			return err
		}
		if esc.Status != escrow.EscrowActive {
			return errEscrowNotActive
		}
		// The borrower fronts the principal; it comes straight back with the
		// fee refund once the release settles the supplier's claim.
		principal := nativecommon.CloneBig(esc.Escrowed)
		if err := e.transferUnderlying(loan.Borrower, e.moduleAddress, principal); err != nil {
			return err
		}
		released, leftover, err := e.escrow.ReleaseEscrow(e.moduleAddress, loan.EscrowID, principal)
		if err != nil {
			return err
		}
		back := new(big.Int).Add(leftover, released.Escrowed)
		if err := e.transferUnderlying(e.moduleAddress, loan.Borrower, back); err != nil {
			return err
		}
	}
	loan.Status = LoanCancelled
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanCancelled{LoanID: loan.ID})
	return nil
}

// RollLoan executes the provider's roll offer against the loan's paired
// position and carries the loan onto the replacement: the principal scales
// with the price move exactly like the taker deposit, and an escrowed loan
// rotates onto newEscrowOfferID atomically. Borrower-only; the roll's wallet
// flows land on the borrower as part of execution.
func (e *Engine) RollLoan(caller [20]byte, loanID, rollOfferID uint64, minToTaker *big.Int, newEscrowOfferID uint64) (*Loan, error) {
	if err := e.requireWired(false); err != nil {
		return nil, err
	}
	if e.rolls == nil {
		return nil, errNilRolls
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, errLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, errLoanNotActive
	}
	if loan.Borrower != caller {
		return nil, errUnauthorized
	}
	if loan.UsesEscrow && e.escrow == nil {
		return nil, errNilEscrow
	}
	rollOffer, err := e.rolls.Offer(rollOfferID)
	if err != nil {
		return nil, err
	}
	if rollOffer.TakerID != loan.ID {
		return nil, errRollMismatch
	}
	oldPosition, err := e.taker.Position(loan.ID)
	if err != nil {
		return nil, err
	}
	newPosition, preview, err := e.rolls.ExecuteRoll(loan.Borrower, rollOfferID, minToTaker)
	if err != nil {
		return nil, err
	}
	newLoanAmount := nativecommon.MulDiv(loan.LoanAmount, newPosition.StartPrice, oldPosition.StartPrice)
	loan.Status = LoanRolled
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	next := &Loan{
		ID:               newPosition.ID,
		Borrower:         loan.Borrower,
		UnderlyingAmount: nativecommon.CloneBig(loan.UnderlyingAmount),
		LoanAmount:       newLoanAmount,
		UsesEscrow:       loan.UsesEscrow,
		Keeper:           loan.Keeper,
		KeeperApproved:   loan.KeeperApproved,
		Status:           LoanActive,
	}
	if loan.UsesEscrow {
		newEscrow, leftover, err := e.escrow.SwitchEscrow(e.moduleAddress, loan.EscrowID, newEscrowOfferID, next.ID, loan.Borrower)
		if err != nil {
			return nil, err
		}
		if err := e.transferUnderlying(e.moduleAddress, loan.Borrower, leftover); err != nil {
			return nil, err
		}
		next.EscrowOfferID = newEscrowOfferID
		next.EscrowID = newEscrow.ID
	}
	if err := e.state.PutLoan(next); err != nil {
		return nil, err
	}
	e.emit(events.LoanRolled{
		LoanID:        loan.ID,
		NewLoanID:     next.ID,
		Transfer:      nativecommon.CloneBig(preview.ToTaker),
		NewLoanAmount: new(big.Int).Set(newLoanAmount),
	})
	return next.Clone(), nil
}

// ForecloseLoan recovers the supplier's capital from an escrowed loan the
// borrower abandoned: once the grace period has fully elapsed the supplier or
// an approved keeper settles the position, sells the payout for underlying
// and repays the escrow; whatever remains, including the custodied
// collateral, still belongs to the borrower.
func (e *Engine) ForecloseLoan(caller [20]byte, loanID uint64) (*big.Int, error) {
	if err := e.requireWired(true); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, errLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, errLoanNotActive
	}
	if !loan.UsesEscrow {
		return nil, errNoEscrow
	}
	esc, err := e.escrow.Escrow(loan.EscrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != escrow.EscrowActive {
		return nil, errEscrowNotActive
	}
	if !esc.CanForeclose(e.now()) {
		return nil, errGracePeriodRunning
	}
	if caller != esc.Supplier && !(loan.KeeperApproved && loan.Keeper == caller) {
		return nil, errUnauthorized
	}
	withdrawn, err := e.settleAndWithdraw(loan)
	if err != nil {
		return nil, err
	}
	underlyingOut := big.NewInt(0)
	if withdrawn.Sign() > 0 {
		if underlyingOut, err = e.swapCashToUnderlying(withdrawn); err != nil {
			return nil, err
		}
	}
	released, toBorrower, err := e.releaseEscrowInto(loan, underlyingOut)
	if err != nil {
		return nil, err
	}
	loan.Status = LoanForeclosed
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.transferUnderlying(e.moduleAddress, loan.Borrower, toBorrower); err != nil {
		return nil, err
	}
	e.emit(events.LoanForeclosed{
		LoanID:     loan.ID,
		EscrowID:   loan.EscrowID,
		ToSupplier: nativecommon.CloneBig(released.Withdrawable),
		Leftover:   new(big.Int).Set(toBorrower),
	})
	return new(big.Int).Set(toBorrower), nil
}

// ApproveKeeper lets the borrower delegate close and foreclose rights on the
// loan to a keeper, or revoke them. Borrower-only.
func (e *Engine) ApproveKeeper(caller [20]byte, loanID uint64, keeper [20]byte, approved bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return errLoanNotFound
	}
	if loan.Status != LoanActive {
		return errLoanNotActive
	}
	if loan.Borrower != caller {
		return errUnauthorized
	}
	loan.Keeper = keeper
	loan.KeeperApproved = approved
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanKeeperUpdated{LoanID: loan.ID, Keeper: keeper, Approved: approved})
	return nil
}
