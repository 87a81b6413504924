package rpc

import (
	"net/http"

	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
)

type loanResponse struct {
	ID               uint64 `json:"id"`
	Borrower         string `json:"borrower"`
	UnderlyingAmount string `json:"underlyingAmount"`
	LoanAmount       string `json:"loanAmount"`
	UsesEscrow       bool   `json:"usesEscrow"`
	EscrowOfferID    uint64 `json:"escrowOfferId,omitempty"`
	EscrowID         uint64 `json:"escrowId,omitempty"`
	Keeper           string `json:"keeper,omitempty"`
	KeeperApproved   bool   `json:"keeperApproved,omitempty"`
	Status           string `json:"status"`
}

func renderLoan(l *loans.Loan) loanResponse {
	resp := loanResponse{
		ID:               l.ID,
		Borrower:         addrHex(l.Borrower),
		UnderlyingAmount: formatAmount(l.UnderlyingAmount),
		LoanAmount:       formatAmount(l.LoanAmount),
		UsesEscrow:       l.UsesEscrow,
		EscrowOfferID:    l.EscrowOfferID,
		EscrowID:         l.EscrowID,
		KeeperApproved:   l.KeeperApproved,
		Status:           l.Status.String(),
	}
	var zero [20]byte
	if l.Keeper != zero {
		resp.Keeper = addrHex(l.Keeper)
	}
	return resp
}

type openLoanRequest struct {
	Borrower         string `json:"borrower"`
	UnderlyingAmount string `json:"underlyingAmount"`
	MinLoanAmount    string `json:"minLoanAmount,omitempty"`
	ProviderOfferID  uint64 `json:"providerOfferId"`
	UsesEscrow       bool   `json:"usesEscrow"`
	EscrowOfferID    uint64 `json:"escrowOfferId,omitempty"`
}

func (s *Server) openLoan(w http.ResponseWriter, r *http.Request) {
	var req openLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	borrower, err := parseAddr(req.Borrower)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.UnderlyingAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	minLoan, err := parseOptionalAmount(req.MinLoanAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := s.node.OpenLoan(borrower, loans.OpenParams{
		UnderlyingAmount: amount,
		MinLoanAmount:    minLoan,
		ProviderOfferID:  req.ProviderOfferID,
		UsesEscrow:       req.UsesEscrow,
		EscrowOfferID:    req.EscrowOfferID,
	})
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ObserveLoanOpened()
	writeJSON(w, http.StatusCreated, renderLoan(loan))
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := s.node.Loan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderLoan(loan))
}

type loanActionRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) closeLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req loanActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	underlyingOut, err := s.node.CloseLoan(caller, id)
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"underlyingOut": underlyingOut.String()})
}

type rollLoanRequest struct {
	Caller           string `json:"caller"`
	RollOfferID      uint64 `json:"rollOfferId"`
	MinToTaker       string `json:"minToTaker,omitempty"`
	NewEscrowOfferID uint64 `json:"newEscrowOfferId,omitempty"`
}

func (s *Server) rollLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rollLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	minToTaker, err := parseOptionalAmount(req.MinToTaker)
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := s.node.RollLoan(caller, id, req.RollOfferID, minToTaker, req.NewEscrowOfferID)
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderLoan(loan))
}

func (s *Server) cancelLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req loanActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.node.CancelLoan(caller, id)
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) forecloseLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req loanActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	leftover, err := s.node.ForecloseLoan(caller, id)
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ObserveLoanForeclosed()
	writeJSON(w, http.StatusOK, map[string]string{"leftover": leftover.String()})
}

type approveKeeperRequest struct {
	Caller   string `json:"caller"`
	Keeper   string `json:"keeper"`
	Approved bool   `json:"approved"`
}

func (s *Server) approveKeeper(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req approveKeeperRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	keeper, err := parseAddr(req.Keeper)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.node.ApproveKeeper(caller, id, keeper, req.Approved)
	s.metrics.ObserveOperation("loans", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}
