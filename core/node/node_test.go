package node_test

import (
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/CollarNetworks/protocol-core-sub005/core/node"
	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/swap"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

var (
	poolAddr     = addr(0xA6)
	borrowerAddr = addr(1)
	providerAddr = addr(2)
	ownerAddr    = addr(5)
)

type priceSource struct {
	current *big.Int
}

func (p *priceSource) CurrentPrice() (*big.Int, error) { return new(big.Int).Set(p.current), nil }

func (p *priceSource) PastPriceWithFallback(int64) (*big.Int, bool, error) {
	return new(big.Int).Set(p.current), false, nil
}

func (p *priceSource) BaseUnitAmount() *big.Int { return big.NewInt(1_000_000) }

type harness struct {
	st   *state.CollarState
	node *node.Node
	now  int64
}

// newHarness wires the five engines over one state behind a node, the same
// stack the daemon runs.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		st:  state.NewCollarState(storage.NewMemDB()),
		now: 1_000,
	}
	clock := func() int64 { return h.now }
	oracle := &priceSource{current: big.NewInt(2_000_000)}

	providerEngine := provider.NewEngine(addr(0xA2), provider.TermsBounds{
		MinDuration:       60,
		MaxDuration:       nativecommon.YearSeconds,
		MinPutStrikeBips:  2_500,
		MaxPutStrikeBips:  9_999,
		MaxCallStrikeBips: 100_000,
	})
	providerEngine.SetState(h.st.ProviderView())
	providerEngine.SetPauses(h.st)
	providerEngine.SetNowFunc(clock)

	takerEngine := taker.NewEngine(addr(0xA1))
	takerEngine.SetState(h.st.TakerView())
	takerEngine.SetProviderEngine(providerEngine)
	takerEngine.SetOracle(oracle)
	takerEngine.SetPauses(h.st)
	takerEngine.SetNowFunc(clock)

	rollsEngine := rolls.NewEngine(addr(0xA3))
	rollsEngine.SetState(h.st.RollsView())
	rollsEngine.SetTakerEngine(takerEngine)
	rollsEngine.SetProviderEngine(providerEngine)
	rollsEngine.SetOracle(oracle)
	rollsEngine.SetPauses(h.st)
	rollsEngine.SetNowFunc(clock)

	escrowEngine := escrow.NewEngine(addr(0xA4), escrow.OfferBounds{
		MinDuration:    60,
		MaxDuration:    nativecommon.YearSeconds,
		MinGracePeriod: 60,
		MaxGracePeriod: 30 * 24 * 3600,
		MaxInterestAPR: 10_000,
		MaxLateFeeAPR:  10_000,
	})
	escrowEngine.SetState(h.st.EscrowView())
	escrowEngine.SetPauses(h.st)
	escrowEngine.SetNowFunc(clock)

	loansEngine := loans.NewEngine(addr(0xA5))
	loansEngine.SetState(h.st.LoansView())
	loansEngine.SetTakerEngine(takerEngine)
	loansEngine.SetProviderEngine(providerEngine)
	loansEngine.SetRollsEngine(rollsEngine)
	loansEngine.SetEscrowEngine(escrowEngine)
	loansEngine.SetOracle(oracle)
	loansEngine.SetSwapper(swap.NewLedgerSwapper(h.st, oracle, poolAddr))
	loansEngine.SetPauses(h.st)
	loansEngine.SetNowFunc(clock)
	escrowEngine.SetLoansAuthority(loansEngine.ModuleAddress())

	h.node = node.New(h.st, providerEngine, takerEngine, rollsEngine, escrowEngine, loansEngine)
	return h
}

func (h *harness) fund(t *testing.T, a [20]byte, cash, underlying int64) {
	t.Helper()
	if err := h.st.PutAccount(a, &types.Account{
		BalanceCash:       big.NewInt(cash),
		BalanceUnderlying: big.NewInt(underlying),
	}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func (h *harness) balances(t *testing.T, a [20]byte) (*big.Int, *big.Int) {
	t.Helper()
	acc, err := h.st.GetAccount(a)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc = acc.EnsureBalances()
	return acc.BalanceCash, acc.BalanceUnderlying
}

func (h *harness) seedProviderOffer(t *testing.T, amount int64) *provider.LiquidityOffer {
	t.Helper()
	h.fund(t, providerAddr, amount, 0)
	offer, err := h.node.CreateProviderOffer(providerAddr, provider.OfferTerms{
		PutStrikePercent:  9_000,
		CallStrikePercent: 11_000,
		Duration:          1_000,
	}, big.NewInt(amount))
	if err != nil {
		t.Fatalf("CreateProviderOffer: %v", err)
	}
	return offer
}

// A loan that fails after the collateral swap must leave every account as it
// found it: the swap, the position mint, and all transfers unwind together.
func TestFailedOpenLoanLeavesBalancesUntouched(t *testing.T) {
	h := newHarness(t)
	offer := h.seedProviderOffer(t, 200_000)
	h.fund(t, poolAddr, 2_000_000, 0)
	h.fund(t, borrowerAddr, 0, 1_000_000)

	// 1000000 underlying at price 2000000 yields an 1800000 loan, so this
	// floor is unattainable and OpenLoan fails after the swap leg.
	_, err := h.node.OpenLoan(borrowerAddr, loans.OpenParams{
		UnderlyingAmount: big.NewInt(1_000_000),
		ProviderOfferID:  offer.ID,
		MinLoanAmount:    big.NewInt(1_800_001),
	})
	if err == nil || !strings.Contains(err.Error(), "below minimum") {
		t.Fatalf("OpenLoan err = %v, want below minimum", err)
	}

	cash, underlying := h.balances(t, borrowerAddr)
	if cash.Sign() != 0 || underlying.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("borrower after failed open: cash=%s underlying=%s", cash, underlying)
	}
	cash, underlying = h.balances(t, poolAddr)
	if cash.Cmp(big.NewInt(2_000_000)) != 0 || underlying.Sign() != 0 {
		t.Fatalf("pool after failed open: cash=%s underlying=%s", cash, underlying)
	}
	refreshed, err := h.node.ProviderOffer(offer.ID)
	if err != nil {
		t.Fatalf("ProviderOffer: %v", err)
	}
	if refreshed.Available.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("offer available = %s, want 200000", refreshed.Available)
	}
	if _, err := h.node.Loan(1); err == nil {
		t.Fatal("failed open left a loan record")
	}
	if _, err := h.node.Position(1); err == nil {
		t.Fatal("failed open left a position record")
	}
}

// Concurrent withdrawals of one settled position must pay out exactly once.
func TestConcurrentWithdrawPaysOnce(t *testing.T) {
	h := newHarness(t)
	offer := h.seedProviderOffer(t, 100_000)
	h.fund(t, ownerAddr, 100_000, 0)

	position, err := h.node.OpenPosition(ownerAddr, offer.ID, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	h.now = position.Expiration
	settled, err := h.node.SettlePosition(position.ID)
	if err != nil {
		t.Fatalf("SettlePosition: %v", err)
	}
	// Price unchanged: the full taker lock is withdrawable.
	if settled.Withdrawable.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("withdrawable = %s, want 100000", settled.Withdrawable)
	}

	const callers = 4
	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
		paid      []*big.Int
		failures  int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			amount, err := h.node.WithdrawPosition(position.ID, ownerAddr, ownerAddr)
			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				failures++
				return
			}
			paid = append(paid, amount)
		}()
	}
	wg.Wait()

	if len(paid) != 1 || failures != callers-1 {
		t.Fatalf("payouts = %d, failures = %d, want 1 and %d", len(paid), failures, callers-1)
	}
	if paid[0].Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("paid = %s, want 100000", paid[0])
	}
	cash, _ := h.balances(t, ownerAddr)
	if cash.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("owner cash = %s, want exactly one payout of 100000", cash)
	}
	final, err := h.node.Position(position.ID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if final.Status != taker.PositionWithdrawn || final.Withdrawable.Sign() != 0 {
		t.Fatalf("final position = %+v", final)
	}
}

// Concurrent settlements must record the outcome exactly once.
func TestConcurrentSettleRunsOnce(t *testing.T) {
	h := newHarness(t)
	offer := h.seedProviderOffer(t, 100_000)
	h.fund(t, ownerAddr, 100_000, 0)

	position, err := h.node.OpenPosition(ownerAddr, offer.ID, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	h.now = position.Expiration

	const callers = 4
	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
		settled   int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if _, err := h.node.SettlePosition(position.ID); err == nil {
				resultsMu.Lock()
				settled++
				resultsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if settled != 1 {
		t.Fatalf("settlements = %d, want 1", settled)
	}
	final, err := h.node.Position(position.ID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if final.Status != taker.PositionSettled {
		t.Fatalf("status = %v, want settled", final.Status)
	}
	if final.Withdrawable.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("withdrawable = %s, want 100000", final.Withdrawable)
	}
}
