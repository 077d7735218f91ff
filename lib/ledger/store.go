// Package ledger records moderation cases and allocates the per-community
// case numbers that identify them. Cases are append-only: once recorded
// they are never updated or deleted.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/wardenkit/warden/lib/types"
)

// CasePayload is the input for recording a new case
type CasePayload struct {
	// CommunityID is the community the case belongs to
	CommunityID string

	// SubjectUserID is the user the action was taken against
	SubjectUserID string

	// ActorID is the staff member or system that took the action
	ActorID string

	// ActionType is the kind of action recorded
	ActionType types.ActionType

	// Reason is the mandatory reason text
	Reason string

	// Evidence holds up to types.MaxEvidenceEntries supporting URLs
	Evidence []string

	// Duration is the sanction duration for time-bound actions, zero
	// otherwise
	Duration time.Duration

	// ExpiresAt is when a time-bound sanction lapses
	ExpiresAt *time.Time

	// Metadata carries opaque annotations
	Metadata map[string]string
}

// Store is the case ledger interface. Implementations must make
// AllocateCaseID safe under arbitrarily interleaved concurrent calls for
// the same community: the sequence per community has no gaps or duplicates.
type Store interface {
	// AllocateCaseID atomically increments and returns the community's
	// case counter, creating it at zero on first use
	AllocateCaseID(communityID string) (int64, error)

	// RecordCase persists a new case. When assignCaseID is true a case
	// number is allocated first and embedded in the record; an id
	// allocated for a record whose write then fails stays consumed.
	RecordCase(payload *CasePayload, assignCaseID bool) (*types.ModerationCase, error)

	// QueryCases returns a subject's cases newest first, optionally
	// filtered by type and capped by limit
	QueryCases(communityID, subjectUserID string, filter *types.CaseFilter) ([]*types.ModerationCase, error)

	// AggregateStats returns the total, per-type breakdown, and most
	// recent case for a subject, computed from one snapshot
	AggregateStats(communityID, subjectUserID string) (*types.CaseStats, error)

	// Initialize sets up the underlying storage
	Initialize() error

	// Close releases storage resources
	Close() error
}

// validatePayload rejects malformed payloads before any mutation
func validatePayload(payload *CasePayload) error {
	if payload == nil {
		return fmt.Errorf("%w: nil payload", types.ErrValidation)
	}
	if payload.CommunityID == "" || payload.SubjectUserID == "" {
		return fmt.Errorf("%w: community and subject are required", types.ErrValidation)
	}
	if !types.ValidActionType(payload.ActionType) {
		return fmt.Errorf("%w: unknown action type %q", types.ErrValidation, payload.ActionType)
	}
	if strings.TrimSpace(payload.Reason) == "" {
		return fmt.Errorf("%w: reason must not be empty", types.ErrValidation)
	}
	if len(payload.Evidence) > types.MaxEvidenceEntries {
		return fmt.Errorf("%w: at most %d evidence entries allowed", types.ErrValidation, types.MaxEvidenceEntries)
	}
	return nil
}
