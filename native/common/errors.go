package common

import "errors"

// Error kinds shared across the engines. Engines declare their sentinels with
// the constructors below so callers on the other side of the module boundary
// can classify failures with errors.Is instead of matching message text.
var (
	// ErrNotFound marks lookups of records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks callers acting on records they do not own.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict marks operations rejected by the record's current status,
	// including repeats of terminal transitions.
	ErrConflict = errors.New("conflict")
	// ErrInvariant marks internal failures: missing wiring or a ledger
	// balance that does not match what the engine just computed.
	ErrInvariant = errors.New("invariant violated")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// NotFound builds a sentinel classified as ErrNotFound.
func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// Unauthorized builds a sentinel classified as ErrUnauthorized.
func Unauthorized(msg string) error { return &kindError{kind: ErrUnauthorized, msg: msg} }

// Conflict builds a sentinel classified as ErrConflict.
func Conflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }

// Invariant builds a sentinel classified as ErrInvariant.
func Invariant(msg string) error { return &kindError{kind: ErrInvariant, msg: msg} }
