package events

import (
	"math/big"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
)

const (
	TypeEscrowOfferCreated = "escrow.offer.created"
	TypeEscrowOfferUpdated = "escrow.offer.updated"
	TypeEscrowStarted      = "escrow.started"
	TypeEscrowReleased     = "escrow.released"
	TypeEscrowSeized       = "escrow.seized"
	TypeEscrowWithdrawn    = "escrow.withdrawn"
	TypeEscrowSwitched     = "escrow.switched"
)

type EscrowOfferCreated struct {
	OfferID     uint64
	Supplier    [20]byte
	Available   *big.Int
	Duration    int64
	InterestAPR uint64
	GracePeriod int64
	LateFeeAPR  uint64
	MinEscrow   *big.Int
}

func (EscrowOfferCreated) EventType() string { return TypeEscrowOfferCreated }

func (e EscrowOfferCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowOfferCreated,
		Attributes: map[string]string{
			"offerId":     uintToString(e.OfferID),
			"supplier":    addrHex(e.Supplier),
			"available":   formatAmount(e.Available),
			"duration":    intToString(e.Duration),
			"interestAPR": uintToString(e.InterestAPR),
			"gracePeriod": intToString(e.GracePeriod),
			"lateFeeAPR":  uintToString(e.LateFeeAPR),
			"minEscrow":   formatAmount(e.MinEscrow),
		},
	}
}

type EscrowOfferUpdated struct {
	OfferID           uint64
	Supplier          [20]byte
	PreviousAvailable *big.Int
	NewAvailable      *big.Int
}

func (EscrowOfferUpdated) EventType() string { return TypeEscrowOfferUpdated }

func (e EscrowOfferUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowOfferUpdated,
		Attributes: map[string]string{
			"offerId":           uintToString(e.OfferID),
			"supplier":          addrHex(e.Supplier),
			"previousAvailable": formatAmount(e.PreviousAvailable),
			"newAvailable":      formatAmount(e.NewAvailable),
		},
	}
}

type EscrowStarted struct {
	EscrowID     uint64
	OfferID      uint64
	LoanID       uint64
	Escrowed     *big.Int
	InterestHeld *big.Int
	LateFeeHeld  *big.Int
	Expiration   int64
}

func (EscrowStarted) EventType() string { return TypeEscrowStarted }

func (e EscrowStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowStarted,
		Attributes: map[string]string{
			"escrowId":     uintToString(e.EscrowID),
			"offerId":      uintToString(e.OfferID),
			"loanId":       uintToString(e.LoanID),
			"escrowed":     formatAmount(e.Escrowed),
			"interestHeld": formatAmount(e.InterestHeld),
			"lateFeeHeld":  formatAmount(e.LateFeeHeld),
			"expiration":   intToString(e.Expiration),
		},
	}
}

type EscrowReleased struct {
	EscrowID     uint64
	Repaid       *big.Int
	Withdrawable *big.Int
	Leftover     *big.Int
}

func (EscrowReleased) EventType() string { return TypeEscrowReleased }

func (e EscrowReleased) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowReleased,
		Attributes: map[string]string{
			"escrowId":     uintToString(e.EscrowID),
			"repaid":       formatAmount(e.Repaid),
			"withdrawable": formatAmount(e.Withdrawable),
			"leftover":     formatAmount(e.Leftover),
		},
	}
}

type EscrowSeized struct {
	EscrowID uint64
	Amount   *big.Int
}

func (EscrowSeized) EventType() string { return TypeEscrowSeized }

func (e EscrowSeized) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowSeized,
		Attributes: map[string]string{
			"escrowId": uintToString(e.EscrowID),
			"amount":   formatAmount(e.Amount),
		},
	}
}

type EscrowWithdrawn struct {
	EscrowID  uint64
	Recipient [20]byte
	Amount    *big.Int
}

func (EscrowWithdrawn) EventType() string { return TypeEscrowWithdrawn }

func (e EscrowWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowWithdrawn,
		Attributes: map[string]string{
			"escrowId":  uintToString(e.EscrowID),
			"recipient": addrHex(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

type EscrowSwitched struct {
	OldEscrowID uint64
	NewEscrowID uint64
	LoanID      uint64
}

func (EscrowSwitched) EventType() string { return TypeEscrowSwitched }

func (e EscrowSwitched) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowSwitched,
		Attributes: map[string]string{
			"oldEscrowId": uintToString(e.OldEscrowID),
			"newEscrowId": uintToString(e.NewEscrowID),
			"loanId":      uintToString(e.LoanID),
		},
	}
}
