package rpc

import (
	"net/http"

	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
)

type providerOfferResponse struct {
	ID                uint64 `json:"id"`
	Provider          string `json:"provider"`
	Available         string `json:"available"`
	PutStrikePercent  uint64 `json:"putStrikePercent"`
	CallStrikePercent uint64 `json:"callStrikePercent"`
	Duration          int64  `json:"duration"`
	MinLocked         string `json:"minLocked"`
}

func renderProviderOffer(o *provider.LiquidityOffer) providerOfferResponse {
	return providerOfferResponse{
		ID:                o.ID,
		Provider:          addrHex(o.Provider),
		Available:         formatAmount(o.Available),
		PutStrikePercent:  o.PutStrikePercent,
		CallStrikePercent: o.CallStrikePercent,
		Duration:          o.Duration,
		MinLocked:         formatAmount(o.MinLocked),
	}
}

type createProviderOfferRequest struct {
	Provider          string `json:"provider"`
	Amount            string `json:"amount"`
	PutStrikePercent  uint64 `json:"putStrikePercent"`
	CallStrikePercent uint64 `json:"callStrikePercent"`
	Duration          int64  `json:"duration"`
	MinLocked         string `json:"minLocked"`
}

func (s *Server) createProviderOffer(w http.ResponseWriter, r *http.Request) {
	var req createProviderOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	providerAddr, err := parseAddr(req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	minLocked, err := parseOptionalAmount(req.MinLocked)
	if err != nil {
		writeError(w, err)
		return
	}
	terms := provider.OfferTerms{
		PutStrikePercent:  req.PutStrikePercent,
		CallStrikePercent: req.CallStrikePercent,
		Duration:          req.Duration,
		MinLocked:         minLocked,
	}
	offer, err := s.node.CreateProviderOffer(providerAddr, terms, amount)
	s.metrics.ObserveOperation("provider", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderProviderOffer(offer))
}

type updateOfferRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) updateProviderOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.node.UpdateProviderOffer(caller, id, amount)
	s.metrics.ObserveOperation("provider", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderProviderOffer(offer))
}

func (s *Server) getProviderOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.node.ProviderOffer(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderProviderOffer(offer))
}

func (s *Server) listProviderOffers(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	offers, err := s.node.ProviderOffers(offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]providerOfferResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, renderProviderOffer(offer))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": out, "offset": offset})
}
