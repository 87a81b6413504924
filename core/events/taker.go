package events

import (
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
)

const (
	TypeTakerPositionOpened    = "taker.position.opened"
	TypeTakerPositionSettled   = "taker.position.settled"
	TypeTakerPositionWithdrawn = "taker.position.withdrawn"
	TypeTakerPositionCancelled = "taker.position.cancelled"
)

type TakerPositionOpened struct {
	PositionID      uint64
	ProviderID      uint64
	StartPrice      *big.Int
	PutStrikePrice  *big.Int
	CallStrikePrice *big.Int
	TakerLocked     *big.Int
	ProviderLocked  *big.Int
	Expiration      int64
}

func (TakerPositionOpened) EventType() string { return TypeTakerPositionOpened }

func (e TakerPositionOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeTakerPositionOpened,
		Attributes: map[string]string{
			"positionId":      uintToString(e.PositionID),
			"providerId":      uintToString(e.ProviderID),
			"startPrice":      formatAmount(e.StartPrice),
			"putStrikePrice":  formatAmount(e.PutStrikePrice),
			"callStrikePrice": formatAmount(e.CallStrikePrice),
			"takerLocked":     formatAmount(e.TakerLocked),
			"providerLocked":  formatAmount(e.ProviderLocked),
			"expiration":      intToString(e.Expiration),
		},
	}
}

// TakerPositionSettled surfaces the settlement outcome, including whether the
// oracle fell back to the current price because no historical observation was
// available at expiration.
type TakerPositionSettled struct {
	PositionID          uint64
	EndPrice            *big.Int
	HistoricalPriceUsed bool
	ToProvider          *big.Int
	Withdrawable        *big.Int
}

func (TakerPositionSettled) EventType() string { return TypeTakerPositionSettled }

func (e TakerPositionSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeTakerPositionSettled,
		Attributes: map[string]string{
			"positionId":          uintToString(e.PositionID),
			"endPrice":            formatAmount(e.EndPrice),
			"historicalPriceUsed": boolToString(e.HistoricalPriceUsed),
			"toProvider":          formatAmount(e.ToProvider),
			"withdrawable":        formatAmount(e.Withdrawable),
		},
	}
}

type TakerPositionWithdrawn struct {
	PositionID uint64
	Recipient  [20]byte
	Amount     *big.Int
}

func (TakerPositionWithdrawn) EventType() string { return TypeTakerPositionWithdrawn }

func (e TakerPositionWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeTakerPositionWithdrawn,
		Attributes: map[string]string{
			"positionId": uintToString(e.PositionID),
			"recipient":  addrHex(e.Recipient),
			"amount":     formatAmount(e.Amount),
		},
	}
}

type TakerPositionCancelled struct {
	PositionID uint64
	Refunded   *big.Int
}

func (TakerPositionCancelled) EventType() string { return TypeTakerPositionCancelled }

func (e TakerPositionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeTakerPositionCancelled,
		Attributes: map[string]string{
			"positionId": uintToString(e.PositionID),
			"refunded":   formatAmount(e.Refunded),
		},
	}
}
