package taker

import "math/big"

// PositionStatus tracks the lifecycle of a taker position. Transitions are
// strictly Open -> Settled -> Withdrawn, or Open -> Cancelled as part of a
// mutual unwind before expiration.
type PositionStatus uint8

const (
	PositionOpen PositionStatus = iota
	PositionSettled
	PositionWithdrawn
	PositionCancelled
)

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

// Position pairs a taker deposit against a provider position. StartPrice and
// the derived strike prices are fixed at open; TakerLocked and ProviderLocked
// are immutable after creation. Withdrawable is written exactly once, by
// settlement.
type Position struct {
	ID                  uint64         `json:"id"`
	ProviderID          uint64         `json:"providerId"`
	Owner               [20]byte       `json:"owner"`
	Duration            int64          `json:"duration"`
	Expiration          int64          `json:"expiration"`
	StartPrice          *big.Int       `json:"startPrice"`
	PutStrikePrice      *big.Int       `json:"putStrikePrice"`
	CallStrikePrice     *big.Int       `json:"callStrikePrice"`
	TakerLocked         *big.Int       `json:"takerLocked"`
	ProviderLocked      *big.Int       `json:"providerLocked"`
	Status              PositionStatus `json:"status"`
	Withdrawable        *big.Int       `json:"withdrawable"`
	SettledPrice        *big.Int       `json:"settledPrice,omitempty"`
	HistoricalPriceUsed bool           `json:"historicalPriceUsed,omitempty"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.StartPrice = cloneOrZero(p.StartPrice)
	clone.PutStrikePrice = cloneOrZero(p.PutStrikePrice)
	clone.CallStrikePrice = cloneOrZero(p.CallStrikePrice)
	clone.TakerLocked = cloneOrZero(p.TakerLocked)
	clone.ProviderLocked = cloneOrZero(p.ProviderLocked)
	clone.Withdrawable = cloneOrZero(p.Withdrawable)
	if p.SettledPrice != nil {
		clone.SettledPrice = new(big.Int).Set(p.SettledPrice)
	}
	return &clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
