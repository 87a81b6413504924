package pricing

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

type staticFeed struct {
	quote Quote
	err   error
}

func (f staticFeed) Quote() (Quote, error) { return f.quote.Clone(), f.err }

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestCurrentPriceWalksPriority(t *testing.T) {
	now := fixedNow()
	agg := NewAggregator([]string{"primary", "backup"}, 5*time.Minute, big.NewInt(1))
	agg.SetNowFunc(func() time.Time { return now })
	agg.Register("primary", staticFeed{err: errors.New("feed down")})
	agg.Register("backup", staticFeed{quote: Quote{Price: big.NewInt(42), Timestamp: now}})

	price, err := agg.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("price = %s, want 42", price)
	}
}

func TestCurrentPriceSkipsStaleQuotes(t *testing.T) {
	now := fixedNow()
	agg := NewAggregator([]string{"stale"}, time.Minute, big.NewInt(1))
	agg.SetNowFunc(func() time.Time { return now })
	agg.Register("stale", staticFeed{quote: Quote{Price: big.NewInt(7), Timestamp: now.Add(-2 * time.Minute)}})

	if _, err := agg.CurrentPrice(); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("got %v, want ErrNoFreshQuote", err)
	}
}

func TestPastPriceWithFallback(t *testing.T) {
	now := fixedNow()
	agg := NewAggregator(nil, time.Hour, big.NewInt(1))
	agg.SetNowFunc(func() time.Time { return now })
	agg.Record(Quote{Price: big.NewInt(100), Timestamp: now.Add(-30 * time.Minute), Source: "a"})
	agg.Record(Quote{Price: big.NewInt(110), Timestamp: now.Add(-10 * time.Minute), Source: "a"})

	price, historical, err := agg.PastPriceWithFallback(now.Add(-20 * time.Minute).Unix())
	if err != nil {
		t.Fatalf("PastPriceWithFallback: %v", err)
	}
	if !historical {
		t.Fatal("expected a historical observation")
	}
	// The earliest observation at or after the timestamp wins.
	if price.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("price = %s, want 110", price)
	}
}

func TestPastPriceFallsBackToCurrent(t *testing.T) {
	now := fixedNow()
	agg := NewAggregator([]string{"live"}, time.Hour, big.NewInt(1))
	agg.SetNowFunc(func() time.Time { return now })
	agg.Register("live", staticFeed{quote: Quote{Price: big.NewInt(55), Timestamp: now}})

	price, historical, err := agg.PastPriceWithFallback(now.Add(time.Minute).Unix())
	if err != nil {
		t.Fatalf("PastPriceWithFallback: %v", err)
	}
	if historical {
		t.Fatal("fallback must report historical=false")
	}
	if price.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("price = %s, want 55", price)
	}
}

func TestTWAPWeightsByDuration(t *testing.T) {
	now := fixedNow()
	agg := NewAggregator(nil, time.Hour, big.NewInt(1))
	agg.SetNowFunc(func() time.Time { return now })
	// 100 for 60s, then 200 for 60s up to now.
	agg.Record(Quote{Price: big.NewInt(100), Timestamp: now.Add(-2 * time.Minute), Source: "a"})
	agg.Record(Quote{Price: big.NewInt(200), Timestamp: now.Add(-1 * time.Minute), Source: "b"})

	result, err := agg.TWAP(10 * time.Minute)
	if err != nil {
		t.Fatalf("TWAP: %v", err)
	}
	if result.Average.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("average = %s, want 150", result.Average)
	}
	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
	if len(result.Feeders) != 2 || result.Feeders[0] != "a" || result.Feeders[1] != "b" {
		t.Fatalf("feeders = %v", result.Feeders)
	}
	if result.ProofID == "" {
		t.Fatal("missing proof id")
	}
}

func TestTWAPEmptyWindow(t *testing.T) {
	agg := NewAggregator(nil, time.Hour, big.NewInt(1))
	agg.SetNowFunc(fixedNow)
	if _, err := agg.TWAP(time.Minute); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("got %v, want ErrNoFreshQuote", err)
	}
}
