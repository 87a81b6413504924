package provider

import "math/big"

// PositionStatus tracks the lifecycle of a provider position. Transitions are
// strictly Open -> Settled -> Withdrawn, or Open -> Cancelled as part of a
// mutual unwind before expiration.
type PositionStatus uint8

const (
	PositionOpen PositionStatus = iota
	PositionSettled
	PositionWithdrawn
	PositionCancelled
)

// Valid reports whether the status value is within the supported range.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionOpen, PositionSettled, PositionWithdrawn, PositionCancelled:
		return true
	default:
		return false
	}
}

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "open"
	case PositionSettled:
		return "settled"
	case PositionWithdrawn:
		return "withdrawn"
	case PositionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OfferTerms carries the negotiable parameters of a liquidity offer.
type OfferTerms struct {
	PutStrikePercent  uint64
	CallStrikePercent uint64
	Duration          int64
	MinLocked         *big.Int
}

// LiquidityOffer is a provider's standing commitment of cash liquidity at
// fixed strike bounds and duration. Offers are never deleted: a fully
// consumed offer persists with zero availability as history.
type LiquidityOffer struct {
	ID                uint64   `json:"id"`
	Provider          [20]byte `json:"provider"`
	Available         *big.Int `json:"available"`
	PutStrikePercent  uint64   `json:"putStrikePercent"`
	CallStrikePercent uint64   `json:"callStrikePercent"`
	Duration          int64    `json:"duration"`
	MinLocked         *big.Int `json:"minLocked"`
}

// Clone returns a deep copy of the offer.
func (o *LiquidityOffer) Clone() *LiquidityOffer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Available != nil {
		clone.Available = new(big.Int).Set(o.Available)
	} else {
		clone.Available = big.NewInt(0)
	}
	if o.MinLocked != nil {
		clone.MinLocked = new(big.Int).Set(o.MinLocked)
	} else {
		clone.MinLocked = big.NewInt(0)
	}
	return &clone
}

// Position records capital locked against a single paired taker position.
// ProviderLocked is immutable after mint; Withdrawable is written exactly
// once, at settlement or cancellation.
type Position struct {
	ID                uint64         `json:"id"`
	OfferID           uint64         `json:"offerId"`
	TakerID           uint64         `json:"takerId"`
	Owner             [20]byte       `json:"owner"`
	Duration          int64          `json:"duration"`
	Expiration        int64          `json:"expiration"`
	ProviderLocked    *big.Int       `json:"providerLocked"`
	PutStrikePercent  uint64         `json:"putStrikePercent"`
	CallStrikePercent uint64         `json:"callStrikePercent"`
	Status            PositionStatus `json:"status"`
	Withdrawable      *big.Int       `json:"withdrawable"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ProviderLocked != nil {
		clone.ProviderLocked = new(big.Int).Set(p.ProviderLocked)
	} else {
		clone.ProviderLocked = big.NewInt(0)
	}
	if p.Withdrawable != nil {
		clone.Withdrawable = new(big.Int).Set(p.Withdrawable)
	} else {
		clone.Withdrawable = big.NewInt(0)
	}
	return &clone
}

// TermsBounds carries the protocol-wide limits liquidity offers are
// validated against.
type TermsBounds struct {
	MinDuration       int64
	MaxDuration       int64
	MinPutStrikeBips  uint64
	MaxPutStrikeBips  uint64
	MaxCallStrikeBips uint64
}
