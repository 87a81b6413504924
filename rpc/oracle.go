package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
)

type priceResponse struct {
	Price        string `json:"price"`
	BaseUnit     string `json:"baseUnit"`
	MaxDeviation uint64 `json:"maxDeviationBips"`
}

type submitPriceRequest struct {
	Provider  string `json:"provider"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

type submitPriceResponse struct {
	ProofID  string `json:"proofId"`
	Provider string `json:"provider"`
	Price    string `json:"price"`
}

type twapResponse struct {
	Average string   `json:"average"`
	Start   int64    `json:"start"`
	End     int64    `json:"end"`
	Count   int      `json:"count"`
	Window  int64    `json:"windowSeconds"`
	Feeders []string `json:"feeders"`
	ProofID string   `json:"proofId"`
}

func (s *Server) getOraclePrice(w http.ResponseWriter, _ *http.Request) {
	price, err := s.oracle.CurrentPrice()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Price:        formatAmount(price),
		BaseUnit:     formatAmount(s.oracle.BaseUnitAmount()),
		MaxDeviation: s.maxDeviationBips,
	})
}

func (s *Server) getOracleTWAP(w http.ResponseWriter, r *http.Request) {
	window := time.Duration(queryInt(r, "window", 300)) * time.Second
	result, err := s.oracle.TWAP(window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, twapResponse{
		Average: formatAmount(result.Average),
		Start:   result.Start.Unix(),
		End:     result.End.Unix(),
		Count:   result.Count,
		Window:  int64(result.Window / time.Second),
		Feeders: result.Feeders,
		ProofID: result.ProofID,
	})
}

// submitPrice accepts a signed oracle attestation. The submission only enters
// the aggregator's observation history after the signature, signer registry,
// and freshness checks all pass.
func (s *Server) submitPrice(w http.ResponseWriter, r *http.Request) {
	var req submitPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	signature, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	proof, err := pricing.NewProof(pricing.ProofDomainV1, req.Provider, req.Price, req.Timestamp, signature)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.proofs.Verify(proof); err != nil {
		writeError(w, err)
		return
	}
	proofID, err := proof.ID()
	if err != nil {
		writeError(w, err)
		return
	}
	s.oracle.Record(pricing.Quote{
		Price:     proof.Price,
		Timestamp: proof.Timestamp,
		Source:    proof.Provider,
	})
	s.log.Info("oracle price accepted",
		"provider", proof.Provider,
		"price", proof.Price.String(),
		"proofId", proofID)
	writeJSON(w, http.StatusOK, submitPriceResponse{
		ProofID:  proofID,
		Provider: proof.Provider,
		Price:    formatAmount(proof.Price),
	})
}

func parseSignature(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("signature required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	return decoded, nil
}
