// Package report drives the user-report lifecycle: a member files a report
// against another member, staff take it, optionally discuss it in a private
// channel, and close it with a verdict.
package report

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/ledger"
	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
	"github.com/wardenkit/warden/lib/workflow/docstore"
)

// Workflow owns report state transitions. Every report is anchored to a
// numbered ledger case allocated at submission.
type Workflow struct {
	store    docstore.Store
	ledger   ledger.Store
	gw       gateway.Gateway
	settings settings.Provider

	// graceDelay is how long the closing notice stays visible before a
	// private channel is reclaimed
	graceDelay time.Duration

	// now is injectable for tests
	now func() time.Time

	// wg tracks delayed channel reclamations
	wg sync.WaitGroup
}

// NewWorkflow creates a report workflow
func NewWorkflow(store docstore.Store, ledgerStore ledger.Store, gw gateway.Gateway, provider settings.Provider, graceDelay time.Duration) *Workflow {
	return &Workflow{
		store:      store,
		ledger:     ledgerStore,
		gw:         gw,
		settings:   provider,
		graceDelay: graceDelay,
		now:        time.Now,
	}
}

// Drain waits for any pending channel reclamations to finish
func (w *Workflow) Drain() {
	w.wg.Wait()
}

// Submit files a report against a member. The reported member must resolve
// to a real, human account that is not the reporter. Submission records a
// numbered note case in the ledger before the report is saved.
func (w *Workflow) Submit(communityID, reporterID, reportedUserID, reason string, evidence []string) (*types.Report, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", types.ErrValidation)
	}
	if len(evidence) > types.MaxEvidenceEntries {
		return nil, fmt.Errorf("%w: at most %d evidence entries allowed", types.ErrValidation, types.MaxEvidenceEntries)
	}
	if reporterID == reportedUserID {
		return nil, fmt.Errorf("%w: cannot report yourself", types.ErrHierarchy)
	}

	member, err := w.gw.ResolveMember(communityID, reportedUserID)
	if err != nil {
		if errors.Is(err, gateway.ErrMemberNotFound) {
			return nil, fmt.Errorf("%w: user %s in community %s", types.ErrNotFound, reportedUserID, communityID)
		}
		return nil, fmt.Errorf("failed to resolve reported user: %w", err)
	}
	if member.Bot {
		return nil, fmt.Errorf("%w: cannot report a bot account", types.ErrValidation)
	}

	record, err := w.ledger.RecordCase(&ledger.CasePayload{
		CommunityID:   communityID,
		SubjectUserID: reportedUserID,
		ActorID:       reporterID,
		ActionType:    types.ActionNote,
		Reason:        "Report: " + reason,
		Evidence:      evidence,
	}, true)
	if err != nil {
		return nil, err
	}

	report := &types.Report{
		ID:             uuid.NewString(),
		CaseID:         record.CaseID,
		CommunityID:    communityID,
		ReporterID:     reporterID,
		ReportedUserID: reportedUserID,
		Reason:         reason,
		Evidence:       append([]string(nil), evidence...),
		Status:         types.ReportSubmitted,
		SubmittedAt:    w.now(),
	}

	if err := w.store.SaveReport(report); err != nil {
		return nil, err
	}

	w.logEntry(communityID, fmt.Sprintf("Case #%d: report filed against %s by %s (%s)",
		report.CaseID, reportedUserID, reporterID, reason))

	return report, nil
}

// Take assigns the report to a staff member. Re-taking a taken report
// reassigns it; a report with a verdict rejects.
func (w *Workflow) Take(reportID, staffID string) (*types.Report, error) {
	report, err := w.store.GetReport(reportID)
	if err != nil {
		return nil, err
	}

	if report.Status == types.ReportVerdictGiven {
		return nil, fmt.Errorf("%w: report %s already has a verdict", types.ErrState, reportID)
	}

	report.Status = types.ReportTaken
	report.AssignedStaffID = staffID

	if err := w.store.SaveReport(report); err != nil {
		return nil, err
	}

	return report, nil
}

// OpenPrivateChannel provisions a discussion channel restricted to the
// reporter, the reported member, and the handling staff member. If the
// report already has one, its reference is returned unchanged.
func (w *Workflow) OpenPrivateChannel(reportID, staffID string) (string, error) {
	report, err := w.store.GetReport(reportID)
	if err != nil {
		return "", err
	}

	if report.Status == types.ReportVerdictGiven {
		return "", fmt.Errorf("%w: report %s already has a verdict", types.ErrState, reportID)
	}
	if report.PrivateChannelRef != "" {
		return report.PrivateChannelRef, nil
	}

	community, err := w.settings.Community(report.CommunityID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("report-%d", report.CaseID)
	allowList := []string{report.ReporterID, report.ReportedUserID, staffID}
	channelRef, err := w.gw.CreateRestrictedChannel(report.CommunityID, community.ReportCategoryID, name, allowList)
	if err != nil {
		return "", fmt.Errorf("failed to provision report channel: %w", err)
	}

	report.PrivateChannelRef = channelRef
	if err := w.store.SaveReport(report); err != nil {
		if delErr := w.gw.DeleteChannel(channelRef); delErr != nil {
			logging.Warnf("Failed to reclaim channel %s after save failure: %v", channelRef, delErr)
		}
		return "", err
	}

	intro := fmt.Sprintf("Discussion channel for report case #%d, handled by <@%s>.", report.CaseID, staffID)
	if err := w.gw.SendChannelMessage(channelRef, intro); err != nil {
		logging.Warnf("Failed to post report channel intro in %s: %v", channelRef, err)
	}

	return channelRef, nil
}

// ClosePrivateChannel posts a closing notice and reclaims the discussion
// channel after the grace delay. The report itself is unaffected, so the
// channel can be closed even after a verdict.
func (w *Workflow) ClosePrivateChannel(reportID, staffID string) error {
	report, err := w.store.GetReport(reportID)
	if err != nil {
		return err
	}

	if report.PrivateChannelRef == "" {
		return fmt.Errorf("%w: report %s has no open discussion channel", types.ErrNotFound, reportID)
	}

	channelRef := report.PrivateChannelRef
	report.PrivateChannelRef = ""
	if err := w.store.SaveReport(report); err != nil {
		return err
	}

	notice := fmt.Sprintf("Channel closed by <@%s>.", staffID)
	if err := w.gw.SendChannelMessage(channelRef, notice); err != nil {
		logging.Warnf("Failed to post closing notice in %s: %v", channelRef, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		time.Sleep(w.graceDelay)

		if err := w.gw.DeleteChannel(channelRef); err != nil {
			logging.Debugf("Channel %s not reclaimed: %v", channelRef, err)
		}
	}()

	return nil
}

// GiveVerdict closes the report with a staff decision. The report must be
// taken; the verdict is terminal and both parties are notified.
func (w *Workflow) GiveVerdict(reportID, staffID, verdictText string) (*types.Report, error) {
	if strings.TrimSpace(verdictText) == "" {
		return nil, fmt.Errorf("%w: verdict text is required", types.ErrValidation)
	}

	report, err := w.store.GetReport(reportID)
	if err != nil {
		return nil, err
	}

	if report.Status != types.ReportTaken {
		return nil, fmt.Errorf("%w: report %s is %s, verdict requires taken", types.ErrState, reportID, report.Status)
	}

	report.Status = types.ReportVerdictGiven
	report.AssignedStaffID = staffID
	report.VerdictText = verdictText

	if err := w.store.SaveReport(report); err != nil {
		return nil, err
	}

	w.notifyVerdict(report)
	w.logEntry(report.CommunityID, fmt.Sprintf("Case #%d: verdict given by %s (%s)",
		report.CaseID, staffID, verdictText))

	return report, nil
}

// notifyVerdict delivers best-effort DMs to both parties
func (w *Workflow) notifyVerdict(report *types.Report) {
	toReporter := fmt.Sprintf("Your report (case #%d) has been resolved: %s", report.CaseID, report.VerdictText)
	if err := w.gw.SendDirectMessage(report.ReporterID, toReporter); err != nil {
		logging.Warnf("Failed to notify reporter %s: %v", report.ReporterID, err)
	}

	toReported := fmt.Sprintf("A report about you (case #%d) has been resolved: %s", report.CaseID, report.VerdictText)
	if err := w.gw.SendDirectMessage(report.ReportedUserID, toReported); err != nil {
		logging.Warnf("Failed to notify reported user %s: %v", report.ReportedUserID, err)
	}
}

// logEntry writes a best-effort audit log line when a destination exists
func (w *Workflow) logEntry(communityID, entry string) {
	community, err := w.settings.Community(communityID)
	if err != nil || community.LogChannelID == "" {
		return
	}
	if err := w.gw.SendChannelMessage(community.LogChannelID, entry); err != nil {
		logging.Warnf("Failed to write audit log for community %s: %v", communityID, err)
	}
}
