package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
)

func TestStatusForSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"paused", nativecommon.ErrModulePaused, http.StatusServiceUnavailable},
		{"paused wrapped", fmt.Errorf("taker engine: %w", nativecommon.ErrModulePaused), http.StatusServiceUnavailable},
		{"no fresh quote", pricing.ErrNoFreshQuote, http.StatusServiceUnavailable},
		{"signer unknown", pricing.ErrProofSignerUnknown, http.StatusForbidden},
		{"signature invalid", pricing.ErrProofSignatureInvalid, http.StatusForbidden},
		{"proof stale", pricing.ErrProofStale, http.StatusConflict},
		{"stale wrapped", fmt.Errorf("oracle: %w", pricing.ErrProofStale), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestStatusForErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", nativecommon.NotFound("provider engine: offer not found"), http.StatusNotFound},
		{"not found wrapped", fmt.Errorf("lookup: %w", nativecommon.NotFound("loans engine: loan not found")), http.StatusNotFound},
		{"unauthorized", nativecommon.Unauthorized("escrow engine: unauthorized caller"), http.StatusForbidden},
		{"conflict", nativecommon.Conflict("taker engine: position already settled"), http.StatusConflict},
		{"conflict wrapped", fmt.Errorf("settle: %w", nativecommon.Conflict("rolls engine: offer deadline passed")), http.StatusConflict},
		{"invariant", nativecommon.Invariant("loans engine: swapper not configured"), http.StatusInternalServerError},
		{"plain message", errors.New("provider engine: duration out of bounds"), http.StatusBadRequest},
		{"parse error", errors.New(`invalid amount "abc"`), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

// A kind sentinel matches only its own kind.
func TestErrorKindsAreDisjoint(t *testing.T) {
	err := nativecommon.Conflict("taker engine: position not settled")
	if !errors.Is(err, nativecommon.ErrConflict) {
		t.Fatal("conflict sentinel does not match ErrConflict")
	}
	if errors.Is(err, nativecommon.ErrNotFound) || errors.Is(err, nativecommon.ErrUnauthorized) ||
		errors.Is(err, nativecommon.ErrInvariant) {
		t.Fatal("conflict sentinel matched a foreign kind")
	}
}
