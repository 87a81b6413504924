package rpc

import (
	"errors"
	"net/http"

	nativecommon "github.com/CollarNetworks/protocol-core-sub005/native/common"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
)

// statusFor maps ledger errors onto HTTP statuses via the shared error kinds:
// missing records are 404, authorization failures 403, lifecycle and timing
// conflicts 409, broken internal invariants 500, and everything else is a
// caller mistake.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, pricing.ErrNoFreshQuote):
		return http.StatusServiceUnavailable
	case errors.Is(err, pricing.ErrProofSignerUnknown), errors.Is(err, pricing.ErrProofSignatureInvalid):
		return http.StatusForbidden
	case errors.Is(err, pricing.ErrProofStale):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrInvariant):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
