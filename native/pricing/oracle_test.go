package pricing

import (
	"math/big"
	"testing"
)

func TestConvertRoundTrip(t *testing.T) {
	baseUnit := big.NewInt(1_000_000)
	price := big.NewInt(2_000_000)
	amount := big.NewInt(500_000)

	quote, err := ConvertToQuote(amount, price, baseUnit)
	if err != nil {
		t.Fatalf("ConvertToQuote: %v", err)
	}
	if quote.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("quote = %s, want 1000000", quote)
	}
	back, err := ConvertToBase(quote, price, baseUnit)
	if err != nil {
		t.Fatalf("ConvertToBase: %v", err)
	}
	if back.Cmp(amount) != 0 {
		t.Fatalf("round trip = %s, want %s", back, amount)
	}
}

func TestConvertRejectsBadPrice(t *testing.T) {
	baseUnit := big.NewInt(1)
	if _, err := ConvertToQuote(big.NewInt(1), big.NewInt(0), baseUnit); err == nil {
		t.Fatal("zero price accepted")
	}
	if _, err := ConvertToBase(big.NewInt(1), big.NewInt(-5), baseUnit); err == nil {
		t.Fatal("negative price accepted")
	}
}

func TestCheckDeviation(t *testing.T) {
	ref := big.NewInt(10_000)
	if err := CheckDeviation(big.NewInt(10_500), ref, 500); err != nil {
		t.Fatalf("exactly at tolerance: %v", err)
	}
	if err := CheckDeviation(big.NewInt(9_500), ref, 500); err != nil {
		t.Fatalf("at lower edge: %v", err)
	}
	if err := CheckDeviation(big.NewInt(10_501), ref, 500); err == nil {
		t.Fatal("above tolerance accepted")
	}
	if err := CheckDeviation(big.NewInt(100), nil, 500); err == nil {
		t.Fatal("nil reference accepted")
	}
}
