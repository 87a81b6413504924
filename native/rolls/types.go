package rolls

import "math/big"

// OfferStatus tracks the lifecycle of a roll offer: Active until executed or
// cancelled, both terminal.
type OfferStatus uint8

const (
	OfferActive OfferStatus = iota
	OfferExecuted
	OfferCancelled
)

func (s OfferStatus) String() string {
	switch s {
	case OfferActive:
		return "active"
	case OfferExecuted:
		return "executed"
	case OfferCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Offer is a provider's standing consent to roll a specific paired position
// into a replacement at the referenced liquidity offer's terms, for a fee.
// FeeAmount is signed: positive means the taker pays the provider. The
// min/max price band is the provider's protection against execution at a
// stale or manipulated price.
type Offer struct {
	ID                 uint64      `json:"id"`
	TakerID            uint64      `json:"takerId"`
	ProviderOfferID    uint64      `json:"providerOfferId"`
	Provider           [20]byte    `json:"provider"`
	FeeAmount          *big.Int    `json:"feeAmount"`
	FeeDeltaFactorBips int64       `json:"feeDeltaFactorBips"`
	FeeReferencePrice  *big.Int    `json:"feeReferencePrice"`
	MinPrice           *big.Int    `json:"minPrice"`
	MaxPrice           *big.Int    `json:"maxPrice"`
	MinToProvider      *big.Int    `json:"minToProvider"`
	Deadline           int64       `json:"deadline"`
	Status             OfferStatus `json:"status"`
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.FeeAmount = cloneSigned(o.FeeAmount)
	clone.FeeReferencePrice = cloneSigned(o.FeeReferencePrice)
	clone.MinPrice = cloneSigned(o.MinPrice)
	clone.MaxPrice = cloneSigned(o.MaxPrice)
	clone.MinToProvider = cloneSigned(o.MinToProvider)
	return &clone
}

func cloneSigned(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Preview is the pure computation of a roll's cash flows at a given price.
// ToTaker and ToProvider are signed wallet deltas: negative ToTaker means the
// taker pays in to execute.
type Preview struct {
	ToTaker           *big.Int
	ToProvider        *big.Int
	RollFee           *big.Int
	NewTakerLocked    *big.Int
	NewProviderLocked *big.Int
	ProtocolFee       *big.Int
}
