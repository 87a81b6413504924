package rpc

import (
	"net/http"

	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
)

type rollOfferResponse struct {
	ID                 uint64 `json:"id"`
	TakerID            uint64 `json:"takerId"`
	ProviderOfferID    uint64 `json:"providerOfferId"`
	Provider           string `json:"provider"`
	FeeAmount          string `json:"feeAmount"`
	FeeDeltaFactorBips int64  `json:"feeDeltaFactorBips"`
	FeeReferencePrice  string `json:"feeReferencePrice"`
	MinPrice           string `json:"minPrice"`
	MaxPrice           string `json:"maxPrice"`
	MinToProvider      string `json:"minToProvider"`
	Deadline           int64  `json:"deadline"`
	Status             string `json:"status"`
}

func renderRollOffer(o *rolls.Offer) rollOfferResponse {
	return rollOfferResponse{
		ID:                 o.ID,
		TakerID:            o.TakerID,
		ProviderOfferID:    o.ProviderOfferID,
		Provider:           addrHex(o.Provider),
		FeeAmount:          formatAmount(o.FeeAmount),
		FeeDeltaFactorBips: o.FeeDeltaFactorBips,
		FeeReferencePrice:  formatAmount(o.FeeReferencePrice),
		MinPrice:           formatAmount(o.MinPrice),
		MaxPrice:           formatAmount(o.MaxPrice),
		MinToProvider:      formatAmount(o.MinToProvider),
		Deadline:           o.Deadline,
		Status:             o.Status.String(),
	}
}

type previewResponse struct {
	ToTaker           string `json:"toTaker"`
	ToProvider        string `json:"toProvider"`
	RollFee           string `json:"rollFee"`
	NewTakerLocked    string `json:"newTakerLocked"`
	NewProviderLocked string `json:"newProviderLocked"`
	ProtocolFee       string `json:"protocolFee"`
}

func renderPreview(p *rolls.Preview) previewResponse {
	return previewResponse{
		ToTaker:           formatAmount(p.ToTaker),
		ToProvider:        formatAmount(p.ToProvider),
		RollFee:           formatAmount(p.RollFee),
		NewTakerLocked:    formatAmount(p.NewTakerLocked),
		NewProviderLocked: formatAmount(p.NewProviderLocked),
		ProtocolFee:       formatAmount(p.ProtocolFee),
	}
}

type createRollOfferRequest struct {
	Caller             string `json:"caller"`
	TakerID            uint64 `json:"takerId"`
	ProviderOfferID    uint64 `json:"providerOfferId"`
	FeeAmount          string `json:"feeAmount"`
	FeeDeltaFactorBips int64  `json:"feeDeltaFactorBips"`
	FeeReferencePrice  string `json:"feeReferencePrice"`
	MinPrice           string `json:"minPrice"`
	MaxPrice           string `json:"maxPrice"`
	MinToProvider      string `json:"minToProvider,omitempty"`
	Deadline           int64  `json:"deadline"`
}

func (s *Server) createRollOffer(w http.ResponseWriter, r *http.Request) {
	var req createRollOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	feeAmount, err := parseAmount(req.FeeAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	refPrice, err := parseAmount(req.FeeReferencePrice)
	if err != nil {
		writeError(w, err)
		return
	}
	minPrice, err := parseAmount(req.MinPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	maxPrice, err := parseAmount(req.MaxPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	minToProvider, err := parseOptionalAmount(req.MinToProvider)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.node.CreateRollOffer(caller, rolls.Offer{
		TakerID:            req.TakerID,
		ProviderOfferID:    req.ProviderOfferID,
		FeeAmount:          feeAmount,
		FeeDeltaFactorBips: req.FeeDeltaFactorBips,
		FeeReferencePrice:  refPrice,
		MinPrice:           minPrice,
		MaxPrice:           maxPrice,
		MinToProvider:      minToProvider,
		Deadline:           req.Deadline,
	})
	s.metrics.ObserveOperation("rolls", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderRollOffer(offer))
}

func (s *Server) getRollOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.node.RollOffer(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRollOffer(offer))
}

type cancelRollOfferRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) cancelRollOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req cancelRollOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddr(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.node.CancelRollOffer(caller, id)
	s.metrics.ObserveOperation("rolls", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) previewRoll(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount(r.URL.Query().Get("price"))
	if err != nil {
		writeError(w, err)
		return
	}
	preview, err := s.node.PreviewRoll(id, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPreview(preview))
}

type executeRollRequest struct {
	Caller     string `json:"caller"`
	MinToTaker string `json:"minToTaker,omitempty"`
}

func (s *Server) executeRoll(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req executeRollRequest
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
	position, preview, err := s.node.ExecuteRoll(caller, id, minToTaker)
	s.metrics.ObserveOperation("rolls", err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ObserveRollExecuted()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position": renderPosition(position),
		"preview":  renderPreview(preview),
	})
}
