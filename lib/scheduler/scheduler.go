// Package scheduler arms, fires, and cancels the delayed reversal of
// temporary sanctions. Timers live in process memory; the pending store
// makes them recoverable across restarts. The design assumes a single
// active instance per deployment.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wardenkit/warden/lib/duration"
	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/ledger"
	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
)

// Request describes a reversal to schedule
type Request struct {
	// CommunityID is the community the sanction applies in
	CommunityID string

	// SubjectUserID is the sanctioned user
	SubjectUserID string

	// Kind is the sanction kind to reverse
	Kind types.SanctionKind

	// Duration is how long the sanction lasts. Callers validate it
	// against the duration cap before scheduling; the scheduler trusts
	// its input contract.
	Duration time.Duration

	// Reason is recorded in the automated reversal case
	Reason string
}

// Scheduler owns the pending-reversal registry. At most one pending
// reversal exists per (community, subject, kind) key; scheduling a new one
// for the same key cancels the prior timer (last sanction wins).
type Scheduler struct {
	ledger   ledger.Store
	gw       gateway.Gateway
	pending  PendingStore
	settings settings.Provider

	// numberCases controls whether automated reversal cases receive a
	// ledger case number, following the direct-sanction numbering policy
	numberCases bool

	// timers maps sanction keys to their armed timers
	timers *xsync.MapOf[string, *time.Timer]

	// now is injectable for tests
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// trackMu serializes execution tracking against Stop so no execution
	// can slip past the WaitGroup once the wait has begun
	trackMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a scheduler. Start must be called before scheduling.
func New(ledgerStore ledger.Store, gw gateway.Gateway, pending PendingStore, provider settings.Provider, numberCases bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		ledger:      ledgerStore,
		gw:          gw,
		pending:     pending,
		settings:    provider,
		numberCases: numberCases,
		timers:      xsync.NewMapOf[string, *time.Timer](),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs the boot-time recovery scan: reversals whose expiry already
// passed fire immediately, the rest re-arm with their remaining delay
func (s *Scheduler) Start() error {
	recovered, err := s.pending.List()
	if err != nil {
		return fmt.Errorf("failed to recover pending reversals: %w", err)
	}

	overdue := 0
	for _, sanction := range recovered {
		if !sanction.ExpiresAt.After(s.now()) {
			overdue++
			s.fireAsync(sanction)
			continue
		}
		s.arm(sanction)
	}

	if len(recovered) > 0 {
		logging.Infof("Recovered %d pending reversals (%d overdue)", len(recovered), overdue)
	}

	return nil
}

// Stop cancels all armed timers and waits for every in-flight execution,
// whether it came from a timer or the recovery scan. Stores may be closed
// safely once Stop returns.
func (s *Scheduler) Stop() {
	s.trackMu.Lock()
	s.cancel()
	s.trackMu.Unlock()

	s.timers.Range(func(key string, timer *time.Timer) bool {
		timer.Stop()
		s.timers.Delete(key)
		return true
	})

	s.wg.Wait()
}

// track registers an execution with the WaitGroup. It fails once Stop has
// begun, so a late timer callback cannot race the final wait.
func (s *Scheduler) track() bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

// ScheduleReversal registers a reversal that fires after the request's
// duration. An existing pending reversal for the same key is cancelled
// first.
func (s *Scheduler) ScheduleReversal(req *Request) (*types.ScheduledSanction, error) {
	sanction := &types.ScheduledSanction{
		CommunityID:   req.CommunityID,
		SubjectUserID: req.SubjectUserID,
		Kind:          req.Kind,
		ExpiresAt:     s.now().Add(req.Duration),
		Reason:        req.Reason,
	}

	// Persist before arming so a crash between the two re-arms on boot
	if err := s.pending.Save(sanction); err != nil {
		return nil, err
	}

	s.arm(sanction)

	logging.Debugf("Scheduled %s reversal for %s in %s, fires in %s",
		sanction.Kind, sanction.SubjectUserID, sanction.CommunityID, duration.Format(req.Duration))

	return sanction, nil
}

// CancelReversal invalidates the pending reversal for the key, if one
// exists. Cancelling a missing key is a no-op.
func (s *Scheduler) CancelReversal(communityID, subjectUserID string, kind types.SanctionKind) error {
	sanction := &types.ScheduledSanction{
		CommunityID:   communityID,
		SubjectUserID: subjectUserID,
		Kind:          kind,
	}
	key := sanction.Key()

	if timer, ok := s.timers.LoadAndDelete(key); ok {
		timer.Stop()
	}

	return s.pending.Delete(key)
}

// arm replaces any existing timer for the sanction's key
func (s *Scheduler) arm(sanction *types.ScheduledSanction) {
	key := sanction.Key()

	delay := sanction.ExpiresAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		s.fire(sanction)
	})

	if prior, ok := s.timers.LoadAndStore(key, timer); ok {
		prior.Stop()
	}
}

// fire runs a timer-driven execution under WaitGroup tracking. During
// shutdown the persisted row is left for the next boot to recover.
func (s *Scheduler) fire(sanction *types.ScheduledSanction) {
	if !s.track() {
		return
	}
	defer s.wg.Done()
	s.execute(sanction)
}

// fireAsync executes an overdue reversal without blocking recovery
func (s *Scheduler) fireAsync(sanction *types.ScheduledSanction) {
	if !s.track() {
		return
	}
	go func() {
		defer s.wg.Done()
		s.execute(sanction)
	}()
}

// execute runs the reversal sequence: re-verify, lift, record, notify.
// Failures are logged and the reversal is dropped; nothing retries.
func (s *Scheduler) execute(sanction *types.ScheduledSanction) {
	key := sanction.Key()

	// A shutdown race must not consume the persisted row; the next boot
	// recovers it
	if s.ctx.Err() != nil {
		s.timers.Delete(key)
		return
	}

	// A prior timer that fired just as its key was rescheduled carries a
	// stale expiry; it must not consume the replacement's row or timer
	current, err := s.pending.Get(key)
	if err != nil {
		logging.Errorf("Failed to read pending reversal %s, dropping this firing: %v", key, err)
		return
	}
	if current == nil || !current.ExpiresAt.Equal(sanction.ExpiresAt) {
		logging.Debugf("Reversal %s superseded or cancelled, skipping stale firing", key)
		return
	}

	// Past this point the reversal is consumed regardless of outcome
	defer func() {
		s.timers.Delete(key)
		if err := s.pending.Delete(key); err != nil {
			logging.Errorf("Failed to clear pending reversal %s: %v", key, err)
		}
	}()

	// Re-verify so a manual lift between expiry and execution doesn't
	// get reversed twice
	active, err := s.gw.HasSanction(sanction.CommunityID, sanction.SubjectUserID, string(sanction.Kind))
	if err != nil {
		logging.Errorf("Failed to verify %s for %s in %s, dropping reversal: %v",
			sanction.Kind, sanction.SubjectUserID, sanction.CommunityID, err)
		return
	}
	if !active {
		logging.Debugf("Sanction %s already lifted for %s in %s, skipping reversal",
			sanction.Kind, sanction.SubjectUserID, sanction.CommunityID)
		return
	}

	if err := s.gw.LiftSanction(sanction.CommunityID, sanction.SubjectUserID, string(sanction.Kind)); err != nil {
		logging.Errorf("Failed to lift %s for %s in %s, dropping reversal: %v",
			sanction.Kind, sanction.SubjectUserID, sanction.CommunityID, err)
		return
	}

	reason := sanction.Reason
	if reason == "" {
		reason = fmt.Sprintf("Temporary %s expired", sanction.Kind)
	}

	record, err := s.ledger.RecordCase(&ledger.CasePayload{
		CommunityID:   sanction.CommunityID,
		SubjectUserID: sanction.SubjectUserID,
		ActorID:       "system",
		ActionType:    sanction.Kind.ActionForReversal(),
		Reason:        reason,
		Metadata:      map[string]string{"automated": "true"},
	}, s.numberCases)
	if err != nil {
		logging.Errorf("Sanction lifted but case not recorded for %s in %s: %v",
			sanction.SubjectUserID, sanction.CommunityID, err)
		return
	}

	s.notify(sanction, record)
}

// notify delivers the best-effort subject DM and audit log entry. Delivery
// failure never unwinds the reversal.
func (s *Scheduler) notify(sanction *types.ScheduledSanction, record *types.ModerationCase) {
	content := fmt.Sprintf("Your %s in the community has expired.", sanction.Kind)
	if err := s.gw.SendDirectMessage(sanction.SubjectUserID, content); err != nil {
		logging.Warnf("Failed to notify %s of lifted %s: %v", sanction.SubjectUserID, sanction.Kind, err)
	}

	community, err := s.settings.Community(sanction.CommunityID)
	if err != nil || community.LogChannelID == "" {
		return
	}

	entry := fmt.Sprintf("Automatic %s of %s (%s)",
		record.ActionType, sanction.SubjectUserID, record.Reason)
	if record.CaseID > 0 {
		entry = fmt.Sprintf("Case #%d: %s", record.CaseID, entry)
	}
	if err := s.gw.SendChannelMessage(community.LogChannelID, entry); err != nil {
		logging.Warnf("Failed to write audit log for %s in %s: %v",
			sanction.SubjectUserID, sanction.CommunityID, err)
	}
}
