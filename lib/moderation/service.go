// Package moderation is the command surface of the moderation core. It
// validates sanction requests, drives the gateway mutation, records the
// ledger case, and arms the reversal scheduler for temporary sanctions.
package moderation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wardenkit/warden/lib/duration"
	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/ledger"
	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/scheduler"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
)

// ReversalScheduler is the slice of the scheduler the service drives
type ReversalScheduler interface {
	// ScheduleReversal registers a delayed reversal for a temporary sanction
	ScheduleReversal(req *scheduler.Request) (*types.ScheduledSanction, error)

	// CancelReversal invalidates a pending reversal, if one exists
	CancelReversal(communityID, subjectUserID string, kind types.SanctionKind) error
}

// SanctionRequest is a staff member's request to act against a subject
type SanctionRequest struct {
	// CommunityID is the community the action applies in
	CommunityID string `json:"community_id"`

	// ActorID is the staff member issuing the action
	ActorID string `json:"actor_id"`

	// SubjectUserID is the user the action targets
	SubjectUserID string `json:"subject_user_id"`

	// ActionType is the action to take
	ActionType types.ActionType `json:"action_type"`

	// Reason is the mandatory reason text
	Reason string `json:"reason"`

	// Evidence holds up to types.MaxEvidenceEntries supporting URLs
	Evidence []string `json:"evidence,omitempty"`

	// DurationToken is the optional compact duration for mute and ban,
	// e.g. "30m". Empty means indefinite.
	DurationToken string `json:"duration,omitempty"`
}

// actionHandler performs the enforcement side of one action type. The
// subject is already resolved and hierarchy-checked; the handler returns
// sanction details to embed in the case record.
type actionHandler func(req *SanctionRequest, dur time.Duration) (expiresAt *time.Time, err error)

// Service executes moderation actions end to end
type Service struct {
	ledger   ledger.Store
	gw       gateway.Gateway
	sched    ReversalScheduler
	settings settings.Provider

	// numberDirect controls whether directly invoked sanctions receive a
	// case number
	numberDirect bool

	// dispatch maps each action type to its handler; built once at
	// construction so an unknown type fails before any side effect
	dispatch map[types.ActionType]actionHandler

	// now is injectable for tests
	now func() time.Time
}

// NewService creates the moderation service
func NewService(ledgerStore ledger.Store, gw gateway.Gateway, sched ReversalScheduler, provider settings.Provider, numberDirect bool) *Service {
	s := &Service{
		ledger:       ledgerStore,
		gw:           gw,
		sched:        sched,
		settings:     provider,
		numberDirect: numberDirect,
		now:          time.Now,
	}

	s.dispatch = map[types.ActionType]actionHandler{
		types.ActionWarn:   s.handleRecordOnly,
		types.ActionNote:   s.handleRecordOnly,
		types.ActionMute:   s.handleApply(types.SanctionMute),
		types.ActionBan:    s.handleApply(types.SanctionBan),
		types.ActionUnmute: s.handleLift(types.SanctionMute),
		types.ActionUnban:  s.handleLift(types.SanctionBan),
		types.ActionKick:   s.handleKick,
	}

	return s
}

// InvokeSanction validates and executes a sanction request, returning the
// recorded case. Validation runs before any mutation: shape, then
// self-targeting, then subject resolution, then hierarchy.
func (s *Service) InvokeSanction(req *SanctionRequest) (*types.ModerationCase, error) {
	if err := s.validateShape(req); err != nil {
		return nil, err
	}

	if req.ActorID == req.SubjectUserID {
		return nil, fmt.Errorf("%w: cannot target yourself", types.ErrHierarchy)
	}

	subject, err := s.resolve(req.CommunityID, req.SubjectUserID)
	if err != nil {
		return nil, err
	}
	if subject.Bot {
		return nil, fmt.Errorf("%w: cannot sanction a bot account", types.ErrValidation)
	}

	actor, err := s.resolve(req.CommunityID, req.ActorID)
	if err != nil {
		return nil, err
	}
	if actor.RoleRank <= subject.RoleRank {
		return nil, fmt.Errorf("%w: %s does not outrank %s", types.ErrHierarchy, req.ActorID, req.SubjectUserID)
	}

	var dur time.Duration
	if req.DurationToken != "" {
		dur, err = duration.Parse(req.DurationToken)
		if err != nil {
			return nil, err
		}
	}

	handler := s.dispatch[req.ActionType]
	expiresAt, err := handler(req, dur)
	if err != nil {
		return nil, err
	}

	record, err := s.ledger.RecordCase(&ledger.CasePayload{
		CommunityID:   req.CommunityID,
		SubjectUserID: req.SubjectUserID,
		ActorID:       req.ActorID,
		ActionType:    req.ActionType,
		Reason:        req.Reason,
		Evidence:      req.Evidence,
		Duration:      dur,
		ExpiresAt:     expiresAt,
	}, s.numberDirect)
	if err != nil {
		return nil, err
	}

	s.notify(req, record, dur)

	return record, nil
}

// QueryCases returns a subject's cases newest first
func (s *Service) QueryCases(communityID, subjectUserID string, filter *types.CaseFilter) ([]*types.ModerationCase, error) {
	return s.ledger.QueryCases(communityID, subjectUserID, filter)
}

// AggregateStats returns the aggregate case view for a subject
func (s *Service) AggregateStats(communityID, subjectUserID string) (*types.CaseStats, error) {
	return s.ledger.AggregateStats(communityID, subjectUserID)
}

// validateShape rejects structurally invalid requests
func (s *Service) validateShape(req *SanctionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", types.ErrValidation)
	}
	if req.CommunityID == "" || req.ActorID == "" || req.SubjectUserID == "" {
		return fmt.Errorf("%w: community, actor, and subject are required", types.ErrValidation)
	}
	if _, ok := s.dispatch[req.ActionType]; !ok {
		return fmt.Errorf("%w: unknown action type %q", types.ErrValidation, req.ActionType)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return fmt.Errorf("%w: reason must not be empty", types.ErrValidation)
	}
	if len(req.Evidence) > types.MaxEvidenceEntries {
		return fmt.Errorf("%w: at most %d evidence entries allowed", types.ErrValidation, types.MaxEvidenceEntries)
	}
	if req.DurationToken != "" && req.ActionType != types.ActionMute && req.ActionType != types.ActionBan {
		return fmt.Errorf("%w: only mute and ban take a duration", types.ErrValidation)
	}
	return nil
}

// resolve looks up a member, mapping a gateway miss to the not-found error
func (s *Service) resolve(communityID, userID string) (*gateway.Member, error) {
	member, err := s.gw.ResolveMember(communityID, userID)
	if err != nil {
		if errors.Is(err, gateway.ErrMemberNotFound) {
			return nil, fmt.Errorf("%w: user %s in community %s", types.ErrNotFound, userID, communityID)
		}
		return nil, fmt.Errorf("failed to resolve member: %w", err)
	}
	return member, nil
}

// handleRecordOnly covers actions with no enforcement side effect
func (s *Service) handleRecordOnly(_ *SanctionRequest, _ time.Duration) (*time.Time, error) {
	return nil, nil
}

// handleApply covers mute and ban: enforce the sanction, then arm the
// reversal when a duration was given
func (s *Service) handleApply(kind types.SanctionKind) actionHandler {
	return func(req *SanctionRequest, dur time.Duration) (*time.Time, error) {
		if err := s.gw.ApplySanction(req.CommunityID, req.SubjectUserID, string(kind)); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", kind, err)
		}

		if dur <= 0 {
			// Indefinite sanctions carry no reversal, but an indefinite
			// re-sanction invalidates any earlier pending one
			if err := s.sched.CancelReversal(req.CommunityID, req.SubjectUserID, kind); err != nil {
				logging.Warnf("Failed to cancel stale reversal for %s: %v", req.SubjectUserID, err)
			}
			return nil, nil
		}

		sanction, err := s.sched.ScheduleReversal(&scheduler.Request{
			CommunityID:   req.CommunityID,
			SubjectUserID: req.SubjectUserID,
			Kind:          kind,
			Duration:      dur,
			Reason:        fmt.Sprintf("Temporary %s expired", kind),
		})
		if err != nil {
			// The sanction stands; it just won't lift itself
			logging.Errorf("Sanction applied but reversal not scheduled for %s in %s: %v",
				req.SubjectUserID, req.CommunityID, err)
			expiresAt := s.now().Add(dur)
			return &expiresAt, nil
		}

		return &sanction.ExpiresAt, nil
	}
}

// handleLift covers unmute and unban: lift the sanction and cancel any
// pending automatic reversal so it cannot fire later
func (s *Service) handleLift(kind types.SanctionKind) actionHandler {
	return func(req *SanctionRequest, _ time.Duration) (*time.Time, error) {
		if err := s.gw.LiftSanction(req.CommunityID, req.SubjectUserID, string(kind)); err != nil {
			return nil, fmt.Errorf("failed to lift %s: %w", kind, err)
		}

		if err := s.sched.CancelReversal(req.CommunityID, req.SubjectUserID, kind); err != nil {
			logging.Warnf("Failed to cancel pending reversal for %s: %v", req.SubjectUserID, err)
		}

		return nil, nil
	}
}

// handleKick removes the subject without a ban
func (s *Service) handleKick(req *SanctionRequest, _ time.Duration) (*time.Time, error) {
	if err := s.gw.KickMember(req.CommunityID, req.SubjectUserID); err != nil {
		return nil, fmt.Errorf("failed to kick member: %w", err)
	}
	return nil, nil
}

// notify delivers the best-effort subject DM and audit log entry
func (s *Service) notify(req *SanctionRequest, record *types.ModerationCase, dur time.Duration) {
	content := fmt.Sprintf("You received a %s in the community: %s", record.ActionType, record.Reason)
	if dur > 0 {
		content += fmt.Sprintf(" (duration: %s)", duration.Format(dur))
	}
	if err := s.gw.SendDirectMessage(req.SubjectUserID, content); err != nil {
		logging.Warnf("Failed to notify %s of %s: %v", req.SubjectUserID, record.ActionType, err)
	}

	community, err := s.settings.Community(req.CommunityID)
	if err != nil || community.LogChannelID == "" {
		return
	}

	entry := fmt.Sprintf("%s of %s by %s (%s)", record.ActionType, req.SubjectUserID, req.ActorID, record.Reason)
	if dur > 0 {
		entry += fmt.Sprintf(" for %s", duration.Format(dur))
	}
	if record.CaseID > 0 {
		entry = fmt.Sprintf("Case #%d: %s", record.CaseID, entry)
	}
	if err := s.gw.SendChannelMessage(community.LogChannelID, entry); err != nil {
		logging.Warnf("Failed to write audit log for %s in %s: %v", req.SubjectUserID, req.CommunityID, err)
	}
}
