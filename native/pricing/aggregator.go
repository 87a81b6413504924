package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"
)

// ErrNoFreshQuote indicates that no registered feed produced a quote within
// the configured freshness window.
var ErrNoFreshQuote = errors.New("pricing: no fresh oracle quote available")

// Feed produces price quotes for the deployment's asset pair.
type Feed interface {
	Quote() (Quote, error)
}

// TWAPResult captures the summary statistics for a time-weighted average
// price calculation over the aggregator's observation history.
type TWAPResult struct {
	Average *big.Int
	Start   time.Time
	End     time.Time
	Count   int
	Window  time.Duration
	Feeders []string
	ProofID string
}

// Aggregator consults registered feeds in priority order until a fresh quote
// is obtained, and maintains an observation history used for TWAP and
// historical settlement lookups. It satisfies the Oracle interface.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]Feed
	maxAge   time.Duration
	history  []Quote
	capacity int
	baseUnit *big.Int
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided feed priority,
// freshness window, and base unit amount for price conversions.
func NewAggregator(priority []string, maxAge time.Duration, baseUnit *big.Int) *Aggregator {
	prio := append([]string{}, priority...)
	unit := big.NewInt(1)
	if baseUnit != nil && baseUnit.Sign() > 0 {
		unit = new(big.Int).Set(baseUnit)
	}
	return &Aggregator{
		priority: prio,
		feeds:    make(map[string]Feed),
		maxAge:   maxAge,
		capacity: 1024,
		baseUnit: unit,
		nowFn:    time.Now,
	}
}

// Register attaches a feed under the given identifier. Identifiers missing
// from the priority list are appended at the lowest priority.
func (a *Aggregator) Register(id string, feed Feed) {
	if a == nil || id == "" || feed == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.feeds[id]; !ok {
		found := false
		for _, existing := range a.priority {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			a.priority = append(a.priority, id)
		}
	}
	a.feeds[id] = feed
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil {
		return
	}
	a.mu.Lock()
	if now == nil {
		a.nowFn = time.Now
	} else {
		a.nowFn = now
	}
	a.mu.Unlock()
}

// BaseUnitAmount implements the Oracle interface.
func (a *Aggregator) BaseUnitAmount() *big.Int {
	if a == nil {
		return big.NewInt(1)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return new(big.Int).Set(a.baseUnit)
}

// CurrentPrice walks the feeds in priority order and returns the first fresh
// positive quote, recording it in the observation history.
func (a *Aggregator) CurrentPrice() (*big.Int, error) {
	if a == nil {
		return nil, ErrNoFreshQuote
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.nowFn()
	for _, id := range a.priority {
		feed, ok := a.feeds[id]
		if !ok {
			continue
		}
		quote, err := feed.Quote()
		if err != nil {
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			continue
		}
		if a.maxAge > 0 && now.Sub(quote.Timestamp) > a.maxAge {
			continue
		}
		if quote.Source == "" {
			quote.Source = id
		}
		a.recordLocked(quote)
		return new(big.Int).Set(quote.Price), nil
	}
	return nil, ErrNoFreshQuote
}

// PastPriceWithFallback returns the earliest recorded observation at or after
// the supplied timestamp. When the history holds nothing usable it falls
// back to the current price and reports false.
func (a *Aggregator) PastPriceWithFallback(timestamp int64) (*big.Int, bool, error) {
	if a == nil {
		return nil, false, ErrNoFreshQuote
	}
	a.mu.RLock()
	var match *Quote
	for i := range a.history {
		q := a.history[i]
		if q.Timestamp.Unix() < timestamp {
			continue
		}
		if match == nil || q.Timestamp.Before(match.Timestamp) {
			copied := q.Clone()
			match = &copied
		}
	}
	a.mu.RUnlock()
	if match != nil && match.Price != nil && match.Price.Sign() > 0 {
		return new(big.Int).Set(match.Price), true, nil
	}
	current, err := a.CurrentPrice()
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// Record inserts an externally sourced observation into the history. The
// attested feed path uses it after proof verification.
func (a *Aggregator) Record(quote Quote) {
	if a == nil || quote.Price == nil || quote.Price.Sign() <= 0 {
		return
	}
	a.mu.Lock()
	a.recordLocked(quote.Clone())
	a.mu.Unlock()
}

func (a *Aggregator) recordLocked(quote Quote) {
	a.history = append(a.history, quote)
	sort.SliceStable(a.history, func(i, j int) bool {
		return a.history[i].Timestamp.Before(a.history[j].Timestamp)
	})
	if a.capacity > 0 && len(a.history) > a.capacity {
		a.history = a.history[len(a.history)-a.capacity:]
	}
}

// TWAP computes the time-weighted average over observations inside the
// window ending now. Each observation is weighted by the duration until the
// next one; the final observation is weighted to the window end.
func (a *Aggregator) TWAP(window time.Duration) (TWAPResult, error) {
	if a == nil {
		return TWAPResult{}, ErrNoFreshQuote
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if window <= 0 {
		return TWAPResult{}, fmt.Errorf("pricing: twap window must be positive")
	}
	end := a.nowFn()
	start := end.Add(-window)
	var selected []Quote
	for _, q := range a.history {
		if q.Timestamp.Before(start) || q.Timestamp.After(end) {
			continue
		}
		selected = append(selected, q)
	}
	if len(selected) == 0 {
		return TWAPResult{}, ErrNoFreshQuote
	}
	weighted := new(big.Int)
	totalSeconds := int64(0)
	feeders := make(map[string]struct{})
	for i, q := range selected {
		next := end
		if i+1 < len(selected) {
			next = selected[i+1].Timestamp
		}
		seconds := int64(next.Sub(q.Timestamp) / time.Second)
		if seconds <= 0 {
			seconds = 1
		}
		term := new(big.Int).Mul(q.Price, big.NewInt(seconds))
		weighted.Add(weighted, term)
		totalSeconds += seconds
		feeders[q.Source] = struct{}{}
	}
	average := new(big.Int).Quo(weighted, big.NewInt(totalSeconds))
	names := make([]string, 0, len(feeders))
	for name := range feeders {
		names = append(names, name)
	}
	sort.Strings(names)
	return TWAPResult{
		Average: average,
		Start:   selected[0].Timestamp,
		End:     end,
		Count:   len(selected),
		Window:  window,
		Feeders: names,
		ProofID: twapProofID(selected),
	}, nil
}

func twapProofID(quotes []Quote) string {
	hasher := sha256.New()
	for _, q := range quotes {
		hasher.Write([]byte(q.Source))
		hasher.Write([]byte(q.Timestamp.UTC().Format(time.RFC3339Nano)))
		if q.Price != nil {
			hasher.Write(q.Price.Bytes())
		}
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
