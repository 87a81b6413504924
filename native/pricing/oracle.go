package pricing

import (
	"errors"
	"math/big"
	"time"
)

// Quote captures a single price observation for the deployment's asset pair
// along with the timestamp reported by the upstream feed and the feed
// identifier.
type Quote struct {
	Price     *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Oracle resolves prices for the underlying/cash pair the core settles
// against. Prices are integer cash units per BaseUnitAmount of underlying.
//
// CurrentPrice must stay available once the deployment is live: transient
// feed failures surface as errors, never as zero prices.
type Oracle interface {
	CurrentPrice() (*big.Int, error)
	// PastPriceWithFallback returns the price observed at or nearest after
	// the supplied unix timestamp. When no historical observation is
	// available it falls back to the current price and reports false, so
	// callers can surface the substitution instead of hiding it.
	PastPriceWithFallback(timestamp int64) (*big.Int, bool, error)
	BaseUnitAmount() *big.Int
}

// ErrInvalidPrice indicates a feed returned a zero or negative price.
var ErrInvalidPrice = errors.New("pricing: price must be positive")

// ConvertToQuote values an underlying amount in cash units at the given
// price, truncating toward zero.
func ConvertToQuote(amount, price, baseUnit *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if baseUnit == nil || baseUnit.Sign() <= 0 {
		return nil, errors.New("pricing: base unit must be positive")
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, baseUnit), nil
}

// ConvertToBase values a cash amount in underlying units at the given price,
// truncating toward zero.
func ConvertToBase(amount, price, baseUnit *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if baseUnit == nil || baseUnit.Sign() <= 0 {
		return nil, errors.New("pricing: base unit must be positive")
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(amount, baseUnit)
	return out.Quo(out, price), nil
}
