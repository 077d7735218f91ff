package types

import "errors"

// Error taxonomy shared across the moderation core. Every operation rejects
// with one of these before mutating anything, except persistence failures
// which abort mid-action and are surfaced as fatal to the caller.
var (
	// ErrValidation covers malformed input: bad duration, empty reason,
	// evidence over the cap, unknown action type
	ErrValidation = errors.New("validation failed")

	// ErrHierarchy covers self-targeting and rank violations
	ErrHierarchy = errors.New("hierarchy violation")

	// ErrNotFound covers unresolvable members, channels, tickets, reports
	ErrNotFound = errors.New("not found")

	// ErrState covers illegal workflow transitions
	ErrState = errors.New("illegal state transition")

	// ErrPersistence covers ledger or counter write failures
	ErrPersistence = errors.New("persistence failure")

	// ErrNotConfigured is returned when a required destination is missing,
	// e.g. transcript generation without an archive channel
	ErrNotConfigured = errors.New("destination not configured")

	// ErrInvalidDestination is returned when a configured destination is
	// unusable
	ErrInvalidDestination = errors.New("destination unusable")
)
