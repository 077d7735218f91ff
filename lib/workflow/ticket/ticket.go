// Package ticket drives the support-ticket lifecycle: a member opens a
// private channel, staff take it, and closing reclaims the channel after a
// grace delay.
package ticket

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
	"github.com/wardenkit/warden/lib/workflow/docstore"
)

// Workflow owns ticket state transitions. All state lives in the store and
// in this object; nothing is derived from rendered channel content.
type Workflow struct {
	store    docstore.Store
	gw       gateway.Gateway
	settings settings.Provider

	// graceDelay is how long the closing notice stays visible before the
	// channel is reclaimed
	graceDelay time.Duration

	// chunkSize caps a single transcript delivery unit
	chunkSize int

	// opening guards against two simultaneous opens by the same requester
	// racing past the store lookup
	opening *xsync.MapOf[string, struct{}]

	// now is injectable for tests
	now func() time.Time

	// wg tracks delayed reclamation goroutines
	wg sync.WaitGroup
}

// NewWorkflow creates a ticket workflow
func NewWorkflow(store docstore.Store, gw gateway.Gateway, provider settings.Provider, graceDelay time.Duration, chunkSize int) *Workflow {
	if chunkSize <= 0 {
		chunkSize = 1900
	}

	return &Workflow{
		store:      store,
		gw:         gw,
		settings:   provider,
		graceDelay: graceDelay,
		chunkSize:  chunkSize,
		opening:    xsync.NewMapOf[string, struct{}](),
		now:        time.Now,
	}
}

// Drain waits for any pending channel reclamations to finish
func (w *Workflow) Drain() {
	w.wg.Wait()
}

// Open creates a ticket and its channel for the requester. If the
// requester already has an Open or Taken ticket in the community, that
// ticket is returned instead and existing is true; callers treat this as
// "blocked", not an error.
func (w *Workflow) Open(communityID, requesterID, category string) (ticket *types.Ticket, existing bool, err error) {
	if strings.TrimSpace(category) == "" {
		return nil, false, fmt.Errorf("%w: category is required", types.ErrValidation)
	}

	openKey := communityID + ":" + requesterID
	if _, inFlight := w.opening.LoadOrStore(openKey, struct{}{}); inFlight {
		return nil, false, fmt.Errorf("%w: ticket open already in progress", types.ErrState)
	}
	defer w.opening.Delete(openKey)

	active, err := w.store.ActiveTicketForOpener(communityID, requesterID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return active, true, nil
	}

	community, err := w.settings.Community(communityID)
	if err != nil {
		return nil, false, err
	}

	name := fmt.Sprintf("ticket-%s", requesterID)
	channelRef, err := w.gw.CreateRestrictedChannel(communityID, community.TicketCategoryID, name, []string{requesterID})
	if err != nil {
		return nil, false, fmt.Errorf("failed to provision ticket channel: %w", err)
	}

	ticket = &types.Ticket{
		ID:           uuid.NewString(),
		ChannelRef:   channelRef,
		CommunityID:  communityID,
		OpenerUserID: requesterID,
		Category:     category,
		Status:       types.TicketOpen,
		OpenedAt:     w.now(),
	}

	if err := w.store.SaveTicket(ticket); err != nil {
		// Reclaim the channel so a failed save doesn't leak it
		if delErr := w.gw.DeleteChannel(channelRef); delErr != nil {
			logging.Warnf("Failed to reclaim channel %s after save failure: %v", channelRef, delErr)
		}
		return nil, false, err
	}

	greeting := fmt.Sprintf("Ticket opened for <@%s> (%s). Staff will be with you shortly.", requesterID, category)
	if err := w.gw.SendChannelMessage(channelRef, greeting); err != nil {
		logging.Warnf("Failed to post ticket greeting in %s: %v", channelRef, err)
	}

	return ticket, false, nil
}

// Take assigns the ticket to a staff member. Taking an already-taken
// ticket reassigns it; the last take wins. Closed tickets reject.
func (w *Workflow) Take(ticketID, staffID string) (*types.Ticket, error) {
	ticket, err := w.store.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Status == types.TicketClosed {
		return nil, fmt.Errorf("%w: ticket %s is closed", types.ErrState, ticketID)
	}

	ticket.Status = types.TicketTaken
	ticket.AssignedStaffID = staffID

	if err := w.store.SaveTicket(ticket); err != nil {
		return nil, err
	}

	notice := fmt.Sprintf("<@%s> is handling this ticket.", staffID)
	if err := w.gw.SendChannelMessage(ticket.ChannelRef, notice); err != nil {
		logging.Warnf("Failed to post take notice in %s: %v", ticket.ChannelRef, err)
	}

	return ticket, nil
}

// Close transitions the ticket to Closed, posts an archival notice, and
// reclaims the channel after the grace delay. Reclamation failure is
// tolerated; the ticket stays closed either way.
func (w *Workflow) Close(ticketID, staffID, reason string) (*types.Ticket, error) {
	ticket, err := w.store.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Status == types.TicketClosed {
		return nil, fmt.Errorf("%w: ticket %s is already closed", types.ErrState, ticketID)
	}

	closedAt := w.now()
	ticket.Status = types.TicketClosed
	ticket.ClosedAt = &closedAt

	if err := w.store.SaveTicket(ticket); err != nil {
		return nil, err
	}

	notice := fmt.Sprintf("Ticket closed by <@%s>.", staffID)
	if reason != "" {
		notice += " Reason: " + reason
	}
	if err := w.gw.SendChannelMessage(ticket.ChannelRef, notice); err != nil {
		logging.Warnf("Failed to post closing notice in %s: %v", ticket.ChannelRef, err)
	}

	w.reclaimAfterGrace(ticket.ChannelRef)
	w.logClosure(ticket, staffID, reason)

	return ticket, nil
}

// reclaimAfterGrace deletes the channel once the grace delay elapses
func (w *Workflow) reclaimAfterGrace(channelRef string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		time.Sleep(w.graceDelay)

		if err := w.gw.DeleteChannel(channelRef); err != nil {
			// Already-deleted channels are fine; the goal is gone
			logging.Debugf("Channel %s not reclaimed: %v", channelRef, err)
		}
	}()
}

// logClosure writes the optional audit log entry when a destination is
// configured
func (w *Workflow) logClosure(ticket *types.Ticket, staffID, reason string) {
	community, err := w.settings.Community(ticket.CommunityID)
	if err != nil || community.LogChannelID == "" {
		return
	}

	entry := fmt.Sprintf("Ticket %s (%s) opened by %s closed by %s",
		ticket.ID, ticket.Category, ticket.OpenerUserID, staffID)
	if reason != "" {
		entry += ": " + reason
	}
	if err := w.gw.SendChannelMessage(community.LogChannelID, entry); err != nil {
		logging.Warnf("Failed to log ticket closure: %v", err)
	}
}
