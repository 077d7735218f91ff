package types

import "time"

// ActionType identifies the kind of moderation action a case records
type ActionType string

const (
	// ActionWarn is a recorded warning with no enforcement side effect
	ActionWarn ActionType = "warn"

	// ActionMute restricts the subject from speaking in the community
	ActionMute ActionType = "mute"

	// ActionUnmute lifts a mute, manually or automatically
	ActionUnmute ActionType = "unmute"

	// ActionKick removes the subject from the community without a ban
	ActionKick ActionType = "kick"

	// ActionBan removes the subject and prevents rejoining
	ActionBan ActionType = "ban"

	// ActionUnban lifts a ban, manually or automatically
	ActionUnban ActionType = "unban"

	// ActionNote is an informational record with no enforcement side effect
	ActionNote ActionType = "note"
)

// ValidActionType reports whether t is one of the known action types
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionWarn, ActionMute, ActionUnmute, ActionKick, ActionBan, ActionUnban, ActionNote:
		return true
	}
	return false
}

// SanctionKind identifies a time-bound restrictive action that can expire
type SanctionKind string

const (
	// SanctionMute is a time-bound mute
	SanctionMute SanctionKind = "mute"

	// SanctionBan is a time-bound ban
	SanctionBan SanctionKind = "ban"
)

// ActionForReversal returns the ledger action type recorded when a sanction
// of this kind is lifted
func (k SanctionKind) ActionForReversal() ActionType {
	if k == SanctionBan {
		return ActionUnban
	}
	return ActionUnmute
}

// MaxEvidenceEntries is the maximum number of evidence URLs per case
const MaxEvidenceEntries = 5

// ModerationCase is an immutable record of a moderation action. Cases are
// never updated or deleted once recorded; they form the community's audit
// trail.
type ModerationCase struct {
	// CaseID is the per-community sequence number, when one was assigned.
	// Zero means the case is unnumbered.
	CaseID int64 `json:"case_id,omitempty"`

	// CommunityID is the community the case belongs to
	CommunityID string `json:"community_id"`

	// SubjectUserID is the user the action was taken against
	SubjectUserID string `json:"subject_user_id"`

	// ActorID is the staff member (or the system) that took the action
	ActorID string `json:"actor_id"`

	// ActionType is the kind of action recorded
	ActionType ActionType `json:"action_type"`

	// Reason is the mandatory human-readable reason for the action
	Reason string `json:"reason"`

	// Evidence holds up to MaxEvidenceEntries supporting URLs
	Evidence []string `json:"evidence,omitempty"`

	// Duration is the sanction duration for time-bound actions
	Duration time.Duration `json:"duration,omitempty"`

	// ExpiresAt is when a time-bound sanction lapses
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Metadata carries opaque annotations such as automated=true for
	// scheduler-recorded reversals
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the case was recorded
	CreatedAt time.Time `json:"created_at"`
}

// Automated reports whether the case was recorded by the scheduler rather
// than a human actor
func (c *ModerationCase) Automated() bool {
	return c.Metadata["automated"] == "true"
}

// CaseStats is an aggregate view over a subject's cases in one community.
// All fields are computed from a single storage snapshot.
type CaseStats struct {
	// TotalCases is the number of recorded cases
	TotalCases int64 `json:"total_cases"`

	// CountsByType breaks the total down per action type
	CountsByType map[ActionType]int64 `json:"counts_by_type"`

	// MostRecent is the newest case, if any exist
	MostRecent *ModerationCase `json:"most_recent,omitempty"`
}

// CaseFilter narrows a case query
type CaseFilter struct {
	// Type restricts results to one action type when set
	Type ActionType `json:"type,omitempty"`

	// Limit caps the number of returned cases; zero means no cap
	Limit int `json:"limit,omitempty"`
}

// ScheduledSanction is a pending automatic reversal of a time-bound
// sanction. Rows are persisted so pending reversals survive a restart.
type ScheduledSanction struct {
	// CommunityID is the community the sanction applies in
	CommunityID string `json:"community_id"`

	// SubjectUserID is the sanctioned user
	SubjectUserID string `json:"subject_user_id"`

	// Kind is the sanction kind to reverse
	Kind SanctionKind `json:"kind"`

	// ExpiresAt is when the reversal fires
	ExpiresAt time.Time `json:"expires_at"`

	// Reason is the reversal reason recorded in the automated case
	Reason string `json:"reason"`
}

// Key returns the scheduler registry key. At most one pending reversal
// exists per key at any time.
func (s *ScheduledSanction) Key() string {
	return s.CommunityID + ":" + s.SubjectUserID + ":" + string(s.Kind)
}
