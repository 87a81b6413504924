package taker_test

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

var (
	takerVault    = addr(0xA1)
	providerVault = addr(0xA2)
	takerAddr     = addr(1)
	providerAddr  = addr(2)
)

// priceSource is a deterministic oracle with a settable spot price and an
// optional historical settlement price.
type priceSource struct {
	current    *big.Int
	past       *big.Int
	historical bool
}

func (p *priceSource) CurrentPrice() (*big.Int, error) {
	return new(big.Int).Set(p.current), nil
}

func (p *priceSource) PastPriceWithFallback(int64) (*big.Int, bool, error) {
	if p.past != nil {
		return new(big.Int).Set(p.past), p.historical, nil
	}
	return new(big.Int).Set(p.current), false, nil
}

func (p *priceSource) BaseUnitAmount() *big.Int { return big.NewInt(1_000_000) }

type harness struct {
	st       *state.CollarState
	taker    *taker.Engine
	provider *provider.Engine
	oracle   *priceSource
	now      int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		st:     state.NewCollarState(storage.NewMemDB()),
		oracle: &priceSource{current: big.NewInt(2_000_000)},
		now:    1_000,
	}
	h.provider = provider.NewEngine(providerVault, provider.TermsBounds{
		MinDuration:       60,
		MaxDuration:       nativecommon.YearSeconds,
		MinPutStrikeBips:  2_500,
		MaxPutStrikeBips:  9_999,
		MaxCallStrikeBips: 100_000,
	})
	h.provider.SetState(h.st.ProviderView())
	h.provider.SetPauses(h.st)
	h.provider.SetNowFunc(func() int64 { return h.now })

	h.taker = taker.NewEngine(takerVault)
	h.taker.SetState(h.st.TakerView())
	h.taker.SetProviderEngine(h.provider)
	h.taker.SetOracle(h.oracle)
	h.taker.SetPauses(h.st)
	h.taker.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *harness) fundCash(t *testing.T, a [20]byte, amount int64) {
	t.Helper()
	if err := h.st.PutAccount(a, &types.Account{BalanceCash: big.NewInt(amount)}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func (h *harness) cash(t *testing.T, a [20]byte) *big.Int {
	t.Helper()
	acc, err := h.st.GetAccount(a)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.EnsureBalances().BalanceCash
}

// openStandardPair funds both parties and opens a 9000/11000 pair with
// 200000 taker cash against a 200000 provider offer at price 2000000.
func (h *harness) openStandardPair(t *testing.T) *taker.Position {
	t.Helper()
	h.fundCash(t, takerAddr, 200_000)
	h.fundCash(t, providerAddr, 200_000)
	offer, err := h.provider.CreateOffer(providerAddr, provider.OfferTerms{
		PutStrikePercent:  9_000,
		CallStrikePercent: 11_000,
		Duration:          1_000,
	}, big.NewInt(200_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	position, _, err := h.taker.OpenPaired(takerAddr, offer.ID, big.NewInt(200_000))
	if err != nil {
		t.Fatalf("OpenPaired: %v", err)
	}
	return position
}

func TestOpenPairedFixesTermsAtOracle(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)

	if position.ID != 1 || position.ProviderID != 2 {
		t.Fatalf("pair ids = (%d, %d), want (1, 2)", position.ID, position.ProviderID)
	}
	if position.StartPrice.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("start price = %s", position.StartPrice)
	}
	if position.PutStrikePrice.Cmp(big.NewInt(1_800_000)) != 0 {
		t.Fatalf("put strike = %s", position.PutStrikePrice)
	}
	if position.CallStrikePrice.Cmp(big.NewInt(2_200_000)) != 0 {
		t.Fatalf("call strike = %s", position.CallStrikePrice)
	}
	// Symmetric 1000-bip bands lock equal amounts on both sides.
	if position.ProviderLocked.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("provider locked = %s", position.ProviderLocked)
	}
	if position.Expiration != 2_000 {
		t.Fatalf("expiration = %d", position.Expiration)
	}
	if got := h.cash(t, takerAddr); got.Sign() != 0 {
		t.Fatalf("taker balance = %s, want 0", got)
	}
	if got := h.cash(t, takerVault); got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("taker vault = %s, want 200000", got)
	}

	pp, err := h.provider.Position(position.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if pp.TakerID != position.ID {
		t.Fatalf("provider pairing = %d, want %d", pp.TakerID, position.ID)
	}
}

func TestSettleBeforeExpirationRejected(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)
	if _, err := h.taker.Settle(position.ID); err == nil || !strings.Contains(err.Error(), "not yet expired") {
		t.Fatalf("got %v", err)
	}
}

func TestSettleMovesDeltaBetweenVaults(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)

	h.now = position.Expiration
	h.oracle.past = big.NewInt(1_900_000)
	h.oracle.historical = true

	settled, err := h.taker.Settle(position.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !settled.HistoricalPriceUsed {
		t.Fatal("historical flag not set")
	}
	// Halfway between start and put strike: half the taker lock moves over.
	if settled.Withdrawable.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("taker withdrawable = %s, want 100000", settled.Withdrawable)
	}
	if _, err := h.taker.Settle(position.ID); err == nil {
		t.Fatal("double settle accepted")
	}

	if _, err := h.taker.Withdraw(position.ID, providerAddr, providerAddr); err == nil {
		t.Fatal("non-owner withdraw accepted")
	}
	out, err := h.taker.Withdraw(position.ID, takerAddr, takerAddr)
	if err != nil {
		t.Fatalf("taker withdraw: %v", err)
	}
	if out.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("taker payout = %s", out)
	}
	out, err = h.provider.Withdraw(position.ProviderID, providerAddr, providerAddr)
	if err != nil {
		t.Fatalf("provider withdraw: %v", err)
	}
	if out.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("provider payout = %s", out)
	}

	// The offer was fully consumed, so both vaults drain to zero.
	if got := h.cash(t, takerVault); got.Sign() != 0 {
		t.Fatalf("taker vault = %s", got)
	}
	if got := h.cash(t, providerVault); got.Sign() != 0 {
		t.Fatalf("provider vault = %s", got)
	}
	if got := h.cash(t, takerAddr); got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("taker balance = %s", got)
	}
	if got := h.cash(t, providerAddr); got.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("provider balance = %s", got)
	}
}

func TestSettleFallsBackToCurrentPrice(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)
	h.now = position.Expiration
	h.oracle.current = big.NewInt(2_000_000)

	settled, err := h.taker.Settle(position.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.HistoricalPriceUsed {
		t.Fatal("fallback price reported as historical")
	}
	// End price equals start price: both sides keep their principal.
	if settled.Withdrawable.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("withdrawable = %s", settled.Withdrawable)
	}
}

func TestCancelRoundTrip(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)

	if _, err := h.taker.Cancel(position.ID, providerAddr); err == nil {
		t.Fatal("non-owner cancel accepted")
	}
	refund, err := h.taker.Cancel(position.ID, takerAddr)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("refund = %s", refund)
	}
	if got := h.cash(t, takerAddr); got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("taker balance = %s", got)
	}
	// The provider principal returns to the offer book, not the wallet.
	offer, err := h.provider.Offer(1)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if offer.Available.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("offer available = %s", offer.Available)
	}
	if _, err := h.taker.Cancel(position.ID, takerAddr); err == nil {
		t.Fatal("double cancel accepted")
	}
}

func TestCancelAfterExpirationRejected(t *testing.T) {
	h := newHarness(t)
	position := h.openStandardPair(t)
	h.now = position.Expiration
	if _, err := h.taker.Cancel(position.ID, takerAddr); err == nil || !strings.Contains(err.Error(), "not cancellable") {
		t.Fatalf("got %v", err)
	}
}

func TestOpenPairedInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.fundCash(t, takerAddr, 100)
	h.fundCash(t, providerAddr, 200_000)
	offer, err := h.provider.CreateOffer(providerAddr, provider.OfferTerms{
		PutStrikePercent:  9_000,
		CallStrikePercent: 11_000,
		Duration:          1_000,
	}, big.NewInt(200_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, _, err := h.taker.OpenPaired(takerAddr, offer.ID, big.NewInt(200_000)); err == nil {
		t.Fatal("underfunded open accepted")
	}
}

func TestPauseBlocksOpen(t *testing.T) {
	h := newHarness(t)
	h.fundCash(t, takerAddr, 200_000)
	if err := h.st.SetPaused("taker", true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	_, _, err := h.taker.OpenPaired(takerAddr, 1, big.NewInt(200_000))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("got %v, want ErrModulePaused", err)
	}
}
