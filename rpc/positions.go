package rpc

import (
	"net/http"

	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
)

type positionResponse struct {
	ID                  uint64 `json:"id"`
	ProviderID          uint64 `json:"providerId"`
	Owner               string `json:"owner"`
	Duration            int64  `json:"duration"`
	Expiration          int64  `json:"expiration"`
	StartPrice          string `json:"startPrice"`
	PutStrikePrice      string `json:"putStrikePrice"`
	CallStrikePrice     string `json:"callStrikePrice"`
	TakerLocked         string `json:"takerLocked"`
	ProviderLocked      string `json:"providerLocked"`
	Status              string `json:"status"`
	Withdrawable        string `json:"withdrawable"`
	SettledPrice        string `json:"settledPrice,omitempty"`
	HistoricalPriceUsed bool   `json:"historicalPriceUsed,omitempty"`
}

func renderPosition(p *taker.Position) positionResponse {
	resp := positionResponse{
		ID:                  p.ID,
		ProviderID:          p.ProviderID,
		Owner:               addrHex(p.Owner),
		Duration:            p.Duration,
		Expiration:          p.Expiration,
		StartPrice:          formatAmount(p.StartPrice),
		PutStrikePrice:      formatAmount(p.PutStrikePrice),
		CallStrikePrice:     formatAmount(p.CallStrikePrice),
		TakerLocked:         formatAmount(p.TakerLocked),
		ProviderLocked:      formatAmount(p.ProviderLocked),
		Status:              p.Status.String(),
		Withdrawable:        formatAmount(p.Withdrawable),
		HistoricalPriceUsed: p.HistoricalPriceUsed,
	}
	if p.SettledPrice != nil {
		resp.SettledPrice = p.SettledPrice.String()
	}
	return resp
}

type openPositionRequest struct {
	Owner           string `json:"owner"`
	ProviderOfferID uint64 `json:"providerOfferId"`
	TakerLocked     string `json:"takerLocked"`
}

func (s *Server) openPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddr(req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	takerLocked, err := parseAmount(req.TakerLocked)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := s.node.OpenPosition(owner, req.ProviderOfferID, takerLocked)
	s.metrics.ObserveOperation("taker", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderPosition(position))
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := s.node.Position(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(position))
}

func (s *Server) settlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := s.node.SettlePosition(id)
	s.metrics.ObserveOperation("taker", err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ObserveSettlement(position.HistoricalPriceUsed)
	writeJSON(w, http.StatusOK, renderPosition(position))
}

type withdrawRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient,omitempty"`
}

func (req withdrawRequest) addresses() (caller, recipient [20]byte, err error) {
	caller, err = parseAddr(req.Caller)
	if err != nil {
		return caller, recipient, err
	}
	recipient = caller
	if req.Recipient != "" {
		recipient, err = parseAddr(req.Recipient)
	}
	return caller, recipient, err
}

func (s *Server) withdrawPosition(w http.ResponseWriter, r *http.Request) {
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
	amount, err := s.node.WithdrawPosition(id, caller, recipient)
	s.metrics.ObserveOperation("taker", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"withdrawn": amount.String()})
}

type cancelPositionRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) cancelPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req cancelPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	refund, err := s.node.CancelPosition(id, caller)
	s.metrics.ObserveOperation("taker", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refunded": refund.String()})
}
