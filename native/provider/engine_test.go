package provider_test

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

var (
	vaultAddr    = addr(0xA0)
	providerAddr = addr(1)
	feeAddr      = addr(2)
)

func testBounds() provider.TermsBounds {
	return provider.TermsBounds{
		MinDuration:       60,
		MaxDuration:       nativecommon.YearSeconds,
		MinPutStrikeBips:  2_500,
		MaxPutStrikeBips:  9_999,
		MaxCallStrikeBips: 100_000,
	}
}

func testTerms() provider.OfferTerms {
	return provider.OfferTerms{
		PutStrikePercent:  9_000,
		CallStrikePercent: 11_000,
		Duration:          1_000,
	}
}

func newHarness(t *testing.T) (*provider.Engine, *state.CollarState, *int64) {
	t.Helper()
	st := state.NewCollarState(storage.NewMemDB())
	eng := provider.NewEngine(vaultAddr, testBounds())
	eng.SetState(st.ProviderView())
	eng.SetPauses(st)
	now := int64(1_000)
	eng.SetNowFunc(func() int64 { return now })
	return eng, st, &now
}

func fundCash(t *testing.T, st *state.CollarState, a [20]byte, amount int64) {
	t.Helper()
	if err := st.PutAccount(a, &types.Account{BalanceCash: big.NewInt(amount)}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func cashBalance(t *testing.T, st *state.CollarState, a [20]byte) *big.Int {
	t.Helper()
	acc, err := st.GetAccount(a)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.EnsureBalances().BalanceCash
}

func TestCreateOfferLocksCash(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 1_000_000)

	offer, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.ID != 1 {
		t.Fatalf("offer id = %d, want 1", offer.ID)
	}
	if offer.Available.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("available = %s, want 400000", offer.Available)
	}
	if got := cashBalance(t, st, providerAddr); got.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("provider balance = %s, want 600000", got)
	}
	if got := cashBalance(t, st, vaultAddr); got.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("vault balance = %s, want 400000", got)
	}
}

func TestCreateOfferRejectsBadTerms(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 1_000_000)

	cases := []struct {
		name  string
		terms provider.OfferTerms
	}{
		{"duration too short", provider.OfferTerms{PutStrikePercent: 9_000, CallStrikePercent: 11_000, Duration: 10}},
		{"put strike too low", provider.OfferTerms{PutStrikePercent: 2_000, CallStrikePercent: 11_000, Duration: 1_000}},
		{"put strike at par", provider.OfferTerms{PutStrikePercent: 10_000, CallStrikePercent: 11_000, Duration: 1_000}},
		{"call strike below par", provider.OfferTerms{PutStrikePercent: 9_000, CallStrikePercent: 10_000, Duration: 1_000}},
	}
	for _, tc := range cases {
		if _, err := eng.CreateOffer(providerAddr, tc.terms, big.NewInt(100_000)); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
	if _, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(0)); err == nil {
		t.Error("zero amount accepted")
	}
	terms := testTerms()
	terms.MinLocked = big.NewInt(200_000)
	if _, err := eng.CreateOffer(providerAddr, terms, big.NewInt(100_000)); err == nil {
		t.Error("amount below MinLocked accepted")
	}
}

func TestUpdateOfferAmount(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 1_000_000)
	offer, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	if _, err := eng.UpdateOfferAmount(addr(9), offer.ID, big.NewInt(100_000)); err == nil {
		t.Fatal("non-owner update accepted")
	}

	updated, err := eng.UpdateOfferAmount(providerAddr, offer.ID, big.NewInt(600_000))
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if updated.Available.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("available = %s, want 600000", updated.Available)
	}
	if got := cashBalance(t, st, providerAddr); got.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("provider balance after increase = %s", got)
	}

	updated, err = eng.UpdateOfferAmount(providerAddr, offer.ID, big.NewInt(0))
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if updated.Available.Sign() != 0 {
		t.Fatalf("available = %s, want 0", updated.Available)
	}
	if got := cashBalance(t, st, providerAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("provider balance after refund = %s", got)
	}
}

func TestMintFromOfferChargesProtocolFee(t *testing.T) {
	eng, st, _ := newHarness(t)
	eng.SetProtocolFee(100, feeAddr) // 1% APR
	fundCash(t, st, providerAddr, 1_000_000)
	offer, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	position, fee, err := eng.MintFromOffer(offer.ID, big.NewInt(200_000), 7)
	if err != nil {
		t.Fatalf("MintFromOffer: %v", err)
	}
	// ceil(200000 * 100 * 1000 / (10000 * 31536000)) = 1
	if fee.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("fee = %s, want 1", fee)
	}
	if got := cashBalance(t, st, feeAddr); got.Cmp(fee) != 0 {
		t.Fatalf("fee recipient balance = %s, want %s", got, fee)
	}
	if position.TakerID != 7 || position.OfferID != offer.ID {
		t.Fatalf("pairing wrong: %+v", position)
	}
	if position.Expiration != 2_000 {
		t.Fatalf("expiration = %d, want 2000", position.Expiration)
	}
	remaining, err := eng.Offer(offer.ID)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	want := big.NewInt(400_000 - 200_000 - 1)
	if remaining.Available.Cmp(want) != 0 {
		t.Fatalf("available = %s, want %s", remaining.Available, want)
	}

	// A second mint needs lock+fee; the remainder is one short of two locks.
	if _, _, err := eng.MintFromOffer(offer.ID, big.NewInt(199_999), 8); err == nil {
		t.Fatal("over-allocation accepted")
	}
}

func TestSettleAndWithdraw(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 400_000)
	offer, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	position, _, err := eng.MintFromOffer(offer.ID, big.NewInt(200_000), 1)
	if err != nil {
		t.Fatalf("MintFromOffer: %v", err)
	}

	if err := eng.Settle(position.ID, big.NewInt(-50_000)); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := eng.Settle(position.ID, big.NewInt(0)); err == nil {
		t.Fatal("double settle accepted")
	}

	if _, err := eng.Withdraw(position.ID, addr(9), addr(9)); err == nil {
		t.Fatal("non-owner withdraw accepted")
	}
	amount, err := eng.Withdraw(position.ID, providerAddr, providerAddr)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(150_000)) != 0 {
		t.Fatalf("withdrawn = %s, want 150000", amount)
	}
	if _, err := eng.Withdraw(position.ID, providerAddr, providerAddr); err == nil {
		t.Fatal("double withdraw accepted")
	}
	if got := cashBalance(t, st, providerAddr); got.Cmp(big.NewInt(150_000)) != 0 {
		t.Fatalf("provider balance = %s, want 150000", got)
	}
}

func TestSettleRejectsOutOfRangeDelta(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 400_000)
	offer, _ := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	position, _, err := eng.MintFromOffer(offer.ID, big.NewInt(200_000), 1)
	if err != nil {
		t.Fatalf("MintFromOffer: %v", err)
	}
	if err := eng.Settle(position.ID, big.NewInt(-200_001)); err == nil {
		t.Fatal("delta past the locked amount accepted")
	}
}

func TestCancelRestoresAvailability(t *testing.T) {
	eng, st, now := newHarness(t)
	fundCash(t, st, providerAddr, 400_000)
	offer, _ := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(400_000))
	position, _, err := eng.MintFromOffer(offer.ID, big.NewInt(200_000), 1)
	if err != nil {
		t.Fatalf("MintFromOffer: %v", err)
	}

	refund, err := eng.Cancel(position.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("refund = %s, want 200000", refund)
	}
	restored, _ := eng.Offer(offer.ID)
	if restored.Available.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("available = %s, want 400000", restored.Available)
	}

	// A fresh position cannot be cancelled once expired.
	position, _, err = eng.MintFromOffer(offer.ID, big.NewInt(200_000), 2)
	if err != nil {
		t.Fatalf("MintFromOffer: %v", err)
	}
	*now = position.Expiration
	if _, err := eng.Cancel(position.ID); err == nil || !strings.Contains(err.Error(), "not cancellable") {
		t.Fatalf("expired cancel: got %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	eng, st, _ := newHarness(t)
	fundCash(t, st, providerAddr, 400_000)
	if err := st.SetPaused("provider", true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	_, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(100_000))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("got %v, want ErrModulePaused", err)
	}
	if err := st.SetPaused("provider", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := eng.CreateOffer(providerAddr, testTerms(), big.NewInt(100_000)); err != nil {
		t.Fatalf("after unpause: %v", err)
	}
}
