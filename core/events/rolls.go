package events

import (
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
)

const (
	TypeRollOfferCreated   = "rolls.offer.created"
	TypeRollOfferCancelled = "rolls.offer.cancelled"
	TypeRollExecuted       = "rolls.executed"
)

type RollOfferCreated struct {
	RollID     uint64
	TakerID    uint64
	Provider   [20]byte
	FeeAmount  *big.Int
	MinPrice   *big.Int
	MaxPrice   *big.Int
	Deadline   int64
	ProviderID uint64
}

func (RollOfferCreated) EventType() string { return TypeRollOfferCreated }

func (e RollOfferCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeRollOfferCreated,
		Attributes: map[string]string{
			"rollId":     uintToString(e.RollID),
			"takerId":    uintToString(e.TakerID),
			"provider":   addrHex(e.Provider),
			"feeAmount":  formatAmount(e.FeeAmount),
			"minPrice":   formatAmount(e.MinPrice),
			"maxPrice":   formatAmount(e.MaxPrice),
			"deadline":   intToString(e.Deadline),
			"providerId": uintToString(e.ProviderID),
		},
	}
}

type RollOfferCancelled struct {
	RollID uint64
}

func (RollOfferCancelled) EventType() string { return TypeRollOfferCancelled }

func (e RollOfferCancelled) Event() *types.Event {
	return &types.Event{
		Type:       TypeRollOfferCancelled,
		Attributes: map[string]string{"rollId": uintToString(e.RollID)},
	}
}

type RollExecuted struct {
	RollID     uint64
	TakerID    uint64
	NewTakerID uint64
	Price      *big.Int
	RollFee    *big.Int
	ToTaker    *big.Int
	ToProvider *big.Int
}

func (RollExecuted) EventType() string { return TypeRollExecuted }

func (e RollExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeRollExecuted,
		Attributes: map[string]string{
			"rollId":     uintToString(e.RollID),
			"takerId":    uintToString(e.TakerID),
			"newTakerId": uintToString(e.NewTakerID),
			"price":      formatAmount(e.Price),
			"rollFee":    formatAmount(e.RollFee),
			"toTaker":    formatAmount(e.ToTaker),
			"toProvider": formatAmount(e.ToProvider),
		},
	}
}
