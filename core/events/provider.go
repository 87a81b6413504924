package events

import (
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
)

const (
	TypeProviderOfferCreated     = "provider.offer.created"
	TypeProviderOfferUpdated     = "provider.offer.updated"
	TypeProviderPositionMinted   = "provider.position.minted"
	TypeProviderPositionSettled  = "provider.position.settled"
	TypeProviderPositionWithdraw = "provider.position.withdrawn"
	TypeProviderPositionCancel   = "provider.position.cancelled"
)

type ProviderOfferCreated struct {
	OfferID           uint64
	Provider          [20]byte
	Available         *big.Int
	PutStrikePercent  uint64
	CallStrikePercent uint64
	Duration          int64
	MinLocked         *big.Int
}

func (ProviderOfferCreated) EventType() string { return TypeProviderOfferCreated }

func (e ProviderOfferCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderOfferCreated,
		Attributes: map[string]string{
			"offerId":           uintToString(e.OfferID),
			"provider":          addrHex(e.Provider),
			"available":         formatAmount(e.Available),
			"putStrikePercent":  uintToString(e.PutStrikePercent),
			"callStrikePercent": uintToString(e.CallStrikePercent),
			"duration":          intToString(e.Duration),
			"minLocked":         formatAmount(e.MinLocked),
		},
	}
}

type ProviderOfferUpdated struct {
	OfferID           uint64
	Provider          [20]byte
	PreviousAvailable *big.Int
	NewAvailable      *big.Int
}

func (ProviderOfferUpdated) EventType() string { return TypeProviderOfferUpdated }

func (e ProviderOfferUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderOfferUpdated,
		Attributes: map[string]string{
			"offerId":           uintToString(e.OfferID),
			"provider":          addrHex(e.Provider),
			"previousAvailable": formatAmount(e.PreviousAvailable),
			"newAvailable":      formatAmount(e.NewAvailable),
		},
	}
}

type ProviderPositionMinted struct {
	PositionID     uint64
	OfferID        uint64
	TakerID        uint64
	ProviderLocked *big.Int
	ProtocolFee    *big.Int
	Expiration     int64
}

func (ProviderPositionMinted) EventType() string { return TypeProviderPositionMinted }

func (e ProviderPositionMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderPositionMinted,
		Attributes: map[string]string{
			"positionId":     uintToString(e.PositionID),
			"offerId":        uintToString(e.OfferID),
			"takerId":        uintToString(e.TakerID),
			"providerLocked": formatAmount(e.ProviderLocked),
			"protocolFee":    formatAmount(e.ProtocolFee),
			"expiration":     intToString(e.Expiration),
		},
	}
}

type ProviderPositionSettled struct {
	PositionID   uint64
	ToProvider   *big.Int
	Withdrawable *big.Int
}

func (ProviderPositionSettled) EventType() string { return TypeProviderPositionSettled }

func (e ProviderPositionSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderPositionSettled,
		Attributes: map[string]string{
			"positionId":   uintToString(e.PositionID),
			"toProvider":   formatAmount(e.ToProvider),
			"withdrawable": formatAmount(e.Withdrawable),
		},
	}
}

type ProviderPositionWithdrawn struct {
	PositionID uint64
	Recipient  [20]byte
	Amount     *big.Int
}

func (ProviderPositionWithdrawn) EventType() string { return TypeProviderPositionWithdraw }

func (e ProviderPositionWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderPositionWithdraw,
		Attributes: map[string]string{
			"positionId": uintToString(e.PositionID),
			"recipient":  addrHex(e.Recipient),
			"amount":     formatAmount(e.Amount),
		},
	}
}

type ProviderPositionCancelled struct {
	PositionID uint64
	Refunded   *big.Int
}

func (ProviderPositionCancelled) EventType() string { return TypeProviderPositionCancel }

func (e ProviderPositionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeProviderPositionCancel,
		Attributes: map[string]string{
			"positionId": uintToString(e.PositionID),
			"refunded":   formatAmount(e.Refunded),
		},
	}
}
