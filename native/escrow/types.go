package escrow

import "math/big"

// Status tracks the escrow lifecycle: Active until released or seized, both
// terminal. Withdrawable is zeroed by the supplier's withdrawal after either
// terminal state.
type Status uint8

const (
	EscrowActive Status = iota
	EscrowReleased
	EscrowSeized
)

func (s Status) String() string {
	switch s {
	case EscrowActive:
		return "active"
	case EscrowReleased:
		return "released"
	case EscrowSeized:
		return "seized"
	default:
		return "unknown"
	}
}

// OfferTerms carries the negotiable parameters of a supplier offer.
type OfferTerms struct {
	Duration    int64
	InterestAPR uint64
	GracePeriod int64
	LateFeeAPR  uint64
	MinEscrow   *big.Int
}

// SupplierOffer is a supplier's standing commitment of underlying collateral
// at fixed fee terms. Offers persist with zero availability once consumed.
type SupplierOffer struct {
	ID          uint64   `json:"id"`
	Supplier    [20]byte `json:"supplier"`
	Available   *big.Int `json:"available"`
	Duration    int64    `json:"duration"`
	InterestAPR uint64   `json:"interestAPR"`
	GracePeriod int64    `json:"gracePeriod"`
	LateFeeAPR  uint64   `json:"lateFeeAPR"`
	MinEscrow   *big.Int `json:"minEscrow"`
}

// Clone returns a deep copy of the offer.
func (o *SupplierOffer) Clone() *SupplierOffer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Available = cloneOrZero(o.Available)
	clone.MinEscrow = cloneOrZero(o.MinEscrow)
	return &clone
}

// Escrow records supplier collateral backing a single loan. The supplier's
// capital left the vault at mint (it funded the loan's swap leg) while the
// borrower's equal collateral entered as custody; Escrowed is that custody
// amount. InterestHeld and LateFeeHeld were reserved upfront from the
// borrower and are refunded pro-rata when the escrow releases early.
type Escrow struct {
	ID           uint64   `json:"id"`
	OfferID      uint64   `json:"offerId"`
	LoanID       uint64   `json:"loanId"`
	Supplier     [20]byte `json:"supplier"`
	Escrowed     *big.Int `json:"escrowed"`
	Duration     int64    `json:"duration"`
	GracePeriod  int64    `json:"gracePeriod"`
	InterestAPR  uint64   `json:"interestAPR"`
	LateFeeAPR   uint64   `json:"lateFeeAPR"`
	Expiration   int64    `json:"expiration"`
	InterestHeld *big.Int `json:"interestHeld"`
	LateFeeHeld  *big.Int `json:"lateFeeHeld"`
	Status       Status   `json:"status"`
	Withdrawable *big.Int `json:"withdrawable"`
}

// Clone returns a deep copy of the escrow.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Escrowed = cloneOrZero(e.Escrowed)
	clone.InterestHeld = cloneOrZero(e.InterestHeld)
	clone.LateFeeHeld = cloneOrZero(e.LateFeeHeld)
	clone.Withdrawable = cloneOrZero(e.Withdrawable)
	return &clone
}

// FeesHeld is the total upfront reserve taken from the borrower.
func (e *Escrow) FeesHeld() *big.Int {
	return new(big.Int).Add(cloneOrZero(e.InterestHeld), cloneOrZero(e.LateFeeHeld))
}

// GracePeriodEnd is the moment the supplier gains foreclosure rights.
func (e *Escrow) GracePeriodEnd() int64 {
	return e.Expiration + e.GracePeriod
}

// CanForeclose reports whether the full grace period has elapsed on a live
// escrow.
func (e *Escrow) CanForeclose(now int64) bool {
	return e.Status == EscrowActive && now >= e.GracePeriodEnd()
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OfferBounds carries the protocol-wide limits supplier offers are validated
// against.
type OfferBounds struct {
	MinDuration    int64
	MaxDuration    int64
	MinGracePeriod int64
	MaxGracePeriod int64
	MaxInterestAPR uint64
	MaxLateFeeAPR  uint64
}
