package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/CollarNetworks/protocol-core-sub005/core/node"
	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/swap"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

type staticFeed struct {
	quote pricing.Quote
}

func (f staticFeed) Quote() (pricing.Quote, error) { return f.quote.Clone(), nil }

type serverHarness struct {
	st      *state.CollarState
	handler http.Handler
	proofs  *pricing.ProofVerifier
	base    time.Time
}

// newServerHarness wires the full engine stack behind an HTTP handler with a
// single fresh-feed oracle observed at a fixed clock.
func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	h := &serverHarness{
		st:   state.NewCollarState(storage.NewMemDB()),
		base: time.Unix(1_700_000_000, 0).UTC(),
	}
	clock := func() int64 { return h.base.Unix() }
	wallClock := func() time.Time { return h.base }

	oracle := pricing.NewAggregator([]string{"primary"}, 5*time.Minute, big.NewInt(1_000_000))
	oracle.SetNowFunc(wallClock)
	oracle.Register("primary", staticFeed{quote: pricing.Quote{
		Price:     big.NewInt(2_000_000),
		Timestamp: h.base,
		Source:    "primary",
	}})

	providerEngine := provider.NewEngine(testAddr(0xA2), provider.TermsBounds{
		MinDuration:       60,
		MaxDuration:       nativecommon.YearSeconds,
		MinPutStrikeBips:  2_500,
		MaxPutStrikeBips:  9_999,
		MaxCallStrikeBips: 100_000,
	})
	providerEngine.SetState(h.st.ProviderView())
	providerEngine.SetPauses(h.st)
	providerEngine.SetNowFunc(clock)

	takerEngine := taker.NewEngine(testAddr(0xA1))
	takerEngine.SetState(h.st.TakerView())
	takerEngine.SetProviderEngine(providerEngine)
	takerEngine.SetOracle(oracle)
	takerEngine.SetPauses(h.st)
	takerEngine.SetNowFunc(clock)

	rollsEngine := rolls.NewEngine(testAddr(0xA3))
	rollsEngine.SetState(h.st.RollsView())
	rollsEngine.SetTakerEngine(takerEngine)
	rollsEngine.SetProviderEngine(providerEngine)
	rollsEngine.SetOracle(oracle)
	rollsEngine.SetPauses(h.st)
	rollsEngine.SetNowFunc(clock)

	escrowEngine := escrow.NewEngine(testAddr(0xA4), escrow.OfferBounds{
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

	loansEngine := loans.NewEngine(testAddr(0xA5))
	loansEngine.SetState(h.st.LoansView())
	loansEngine.SetTakerEngine(takerEngine)
	loansEngine.SetProviderEngine(providerEngine)
	loansEngine.SetRollsEngine(rollsEngine)
	loansEngine.SetEscrowEngine(escrowEngine)
	loansEngine.SetOracle(oracle)
	loansEngine.SetSwapper(swap.NewLedgerSwapper(h.st, oracle, testAddr(0xA6)))
	loansEngine.SetPauses(h.st)
	loansEngine.SetNowFunc(clock)
	escrowEngine.SetLoansAuthority(loansEngine.ModuleAddress())

	h.proofs = pricing.NewProofVerifier(5 * time.Minute)
	h.proofs.SetNowFunc(wallClock)

	server := NewServer(Deps{
		Log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		Node:             node.New(h.st, providerEngine, takerEngine, rollsEngine, escrowEngine, loansEngine),
		Oracle:           oracle,
		Proofs:           h.proofs,
		MaxDeviationBips: 500,
		RateLimitRPS:     1_000,
		RateLimitBurst:   1_000,
	})
	h.handler = server.Handler()
	return h
}

func (h *serverHarness) fund(t *testing.T, a [20]byte, cash int64) {
	t.Helper()
	if err := h.st.PutAccount(a, &types.Account{
		BalanceCash:       big.NewInt(cash),
		BalanceUnderlying: big.NewInt(0),
	}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func (h *serverHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("healthz body = %v", body)
	}
}

func TestProviderOfferLifecycle(t *testing.T) {
	h := newServerHarness(t)
	providerAddr := testAddr(1)
	h.fund(t, providerAddr, 500_000)

	rec := h.do(t, http.MethodPost, "/v1/provider/offers", createProviderOfferRequest{
		Provider:          addrHex(providerAddr),
		Amount:            "200000",
		PutStrikePercent:  9_000,
		CallStrikePercent: 11_000,
		Duration:          1_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create offer status = %d body %s", rec.Code, rec.Body.String())
	}
	var created providerOfferResponse
	decodeBody(t, rec, &created)
	if created.ID != 1 || created.Available != "200000" || created.PutStrikePercent != 9_000 {
		t.Fatalf("unexpected offer response %+v", created)
	}
	if created.Provider != addrHex(providerAddr) {
		t.Fatalf("offer provider = %s", created.Provider)
	}

	rec = h.do(t, http.MethodGet, "/v1/provider/offers/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get offer status = %d", rec.Code)
	}
	var fetched providerOfferResponse
	decodeBody(t, rec, &fetched)
	if fetched.ID != created.ID || fetched.Duration != 1_000 {
		t.Fatalf("fetched offer %+v", fetched)
	}

	rec = h.do(t, http.MethodPatch, "/v1/provider/offers/1", updateOfferRequest{
		Caller: addrHex(providerAddr),
		Amount: "300000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update offer status = %d body %s", rec.Code, rec.Body.String())
	}
	var updated providerOfferResponse
	decodeBody(t, rec, &updated)
	if updated.Available != "300000" {
		t.Fatalf("updated available = %s", updated.Available)
	}

	rec = h.do(t, http.MethodGet, "/v1/provider/offers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list offers status = %d", rec.Code)
	}
	var listed struct {
		Offers []providerOfferResponse `json:"offers"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Offers) != 1 {
		t.Fatalf("listed %d offers", len(listed.Offers))
	}

	rec = h.do(t, http.MethodGet, "/v1/provider/offers/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown offer status = %d", rec.Code)
	}
}

func TestCreateProviderOfferRejectsBadInput(t *testing.T) {
	h := newServerHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/provider/offers", createProviderOfferRequest{
		Provider: "not-an-address",
		Amount:   "200000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/v1/provider/offers", createProviderOfferRequest{
		Provider: addrHex(testAddr(1)),
		Amount:   "two hundred",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount status = %d", rec.Code)
	}
}

func TestOraclePriceEndpoint(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/oracle/price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("oracle price status = %d body %s", rec.Code, rec.Body.String())
	}
	var body priceResponse
	decodeBody(t, rec, &body)
	if body.Price != "2000000" || body.BaseUnit != "1000000" || body.MaxDeviation != 500 {
		t.Fatalf("unexpected price response %+v", body)
	}
}

func TestSubmitPriceVerifiesSignature(t *testing.T) {
	h := newServerHarness(t)
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var signer [20]byte
	copy(signer[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())
	h.proofs.RegisterSigner("coinbase", signer)

	proof, err := pricing.NewProof(pricing.ProofDomainV1, "coinbase", "2100000", h.base.Unix(), nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	hash, err := proof.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	signature, err := ethcrypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/v1/oracle/price", submitPriceRequest{
		Provider:  "coinbase",
		Price:     "2100000",
		Timestamp: h.base.Unix(),
		Signature: "0x" + hex.EncodeToString(signature),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit price status = %d body %s", rec.Code, rec.Body.String())
	}
	var accepted submitPriceResponse
	decodeBody(t, rec, &accepted)
	if accepted.Provider != "coinbase" || accepted.Price != "2100000" {
		t.Fatalf("unexpected submit response %+v", accepted)
	}
	if len(accepted.ProofID) != 64 {
		t.Fatalf("proof id %q", accepted.ProofID)
	}

	rec = h.do(t, http.MethodGet, "/v1/oracle/twap?window=600", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("twap status = %d body %s", rec.Code, rec.Body.String())
	}
	var twap twapResponse
	decodeBody(t, rec, &twap)
	if twap.Average != "2100000" || twap.Count != 1 {
		t.Fatalf("unexpected twap %+v", twap)
	}
	if len(twap.Feeders) != 1 || twap.Feeders[0] != "coinbase" {
		t.Fatalf("twap feeders %v", twap.Feeders)
	}

	tampered := append([]byte(nil), signature...)
	tampered[10] ^= 0x01
	rec = h.do(t, http.MethodPost, "/v1/oracle/price", submitPriceRequest{
		Provider:  "coinbase",
		Price:     "2100000",
		Timestamp: h.base.Unix(),
		Signature: "0x" + hex.EncodeToString(tampered),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tampered signature status = %d", rec.Code)
	}
}

func TestSubmitPriceUnknownSigner(t *testing.T) {
	h := newServerHarness(t)
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	proof, err := pricing.NewProof(pricing.ProofDomainV1, "kraken", "2100000", h.base.Unix(), nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	hash, err := proof.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	signature, err := ethcrypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/v1/oracle/price", submitPriceRequest{
		Provider:  "kraken",
		Price:     "2100000",
		Timestamp: h.base.Unix(),
		Signature: "0x" + hex.EncodeToString(signature),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unknown signer status = %d body %s", rec.Code, rec.Body.String())
	}
}
