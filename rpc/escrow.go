package rpc

import (
	"net/http"

	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
)

type escrowOfferResponse struct {
	ID          uint64 `json:"id"`
	Supplier    string `json:"supplier"`
	Available   string `json:"available"`
	Duration    int64  `json:"duration"`
	InterestAPR uint64 `json:"interestAPR"`
	GracePeriod int64  `json:"gracePeriod"`
	LateFeeAPR  uint64 `json:"lateFeeAPR"`
	MinEscrow   string `json:"minEscrow"`
}

func renderEscrowOffer(o *escrow.SupplierOffer) escrowOfferResponse {
	return escrowOfferResponse{
		ID:          o.ID,
		Supplier:    addrHex(o.Supplier),
		Available:   formatAmount(o.Available),
		Duration:    o.Duration,
		InterestAPR: o.InterestAPR,
		GracePeriod: o.GracePeriod,
		LateFeeAPR:  o.LateFeeAPR,
		MinEscrow:   formatAmount(o.MinEscrow),
	}
}

type escrowResponse struct {
	ID           uint64 `json:"id"`
	OfferID      uint64 `json:"offerId"`
	LoanID       uint64 `json:"loanId"`
	Supplier     string `json:"supplier"`
	Escrowed     string `json:"escrowed"`
	Duration     int64  `json:"duration"`
	GracePeriod  int64  `json:"gracePeriod"`
	InterestAPR  uint64 `json:"interestAPR"`
	LateFeeAPR   uint64 `json:"lateFeeAPR"`
	Expiration   int64  `json:"expiration"`
	InterestHeld string `json:"interestHeld"`
	LateFeeHeld  string `json:"lateFeeHeld"`
	Status       string `json:"status"`
	Withdrawable string `json:"withdrawable"`
}

func renderEscrow(e *escrow.Escrow) escrowResponse {
	return escrowResponse{
		ID:           e.ID,
		OfferID:      e.OfferID,
		LoanID:       e.LoanID,
		Supplier:     addrHex(e.Supplier),
		Escrowed:     formatAmount(e.Escrowed),
		Duration:     e.Duration,
		GracePeriod:  e.GracePeriod,
		InterestAPR:  e.InterestAPR,
		LateFeeAPR:   e.LateFeeAPR,
		Expiration:   e.Expiration,
		InterestHeld: formatAmount(e.InterestHeld),
		LateFeeHeld:  formatAmount(e.LateFeeHeld),
		Status:       e.Status.String(),
		Withdrawable: formatAmount(e.Withdrawable),
	}
}

type createEscrowOfferRequest struct {
	Supplier    string `json:"supplier"`
	Amount      string `json:"amount"`
	Duration    int64  `json:"duration"`
	InterestAPR uint64 `json:"interestAPR"`
	GracePeriod int64  `json:"gracePeriod"`
	LateFeeAPR  uint64 `json:"lateFeeAPR"`
	MinEscrow   string `json:"minEscrow,omitempty"`
}

func (s *Server) createEscrowOffer(w http.ResponseWriter, r *http.Request) {
	var req createEscrowOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	supplier, err := parseAddr(req.Supplier)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	minEscrow, err := parseOptionalAmount(req.MinEscrow)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.node.CreateEscrowOffer(supplier, escrow.OfferTerms{
		Duration:    req.Duration,
		InterestAPR: req.InterestAPR,
		GracePeriod: req.GracePeriod,
		LateFeeAPR:  req.LateFeeAPR,
		MinEscrow:   minEscrow,
	}, amount)
	s.metrics.ObserveOperation("escrow", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderEscrowOffer(offer))
}

func (s *Server) updateEscrowOffer(w http.ResponseWriter, r *http.Request) {
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
	offer, err := s.node.UpdateEscrowOffer(caller, id, amount)
	s.metrics.ObserveOperation("escrow", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEscrowOffer(offer))
}

func (s *Server) listEscrowOffers(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	offers, err := s.node.EscrowOffers(offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]escrowOfferResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, renderEscrowOffer(offer))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": out, "offset": offset})
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	esc, err := s.node.Escrow(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEscrow(esc))
}

type seizeEscrowRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) seizeEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req seizeEscrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	esc, err := s.node.SeizeEscrow(caller, id)
	s.metrics.ObserveOperation("escrow", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEscrow(esc))
}

func (s *Server) withdrawEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, recipient, err := req.addresses()
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := s.node.WithdrawEscrow(caller, recipient, id)
	s.metrics.ObserveOperation("escrow", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"withdrawn": amount.String()})
}
