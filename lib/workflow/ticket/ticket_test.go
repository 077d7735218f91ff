package ticket

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
	"github.com/wardenkit/warden/lib/workflow/docstore"
)

func newTestWorkflow(t *testing.T) (*Workflow, *gateway.MockGateway) {
	t.Helper()

	store, err := docstore.InitStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := gateway.NewMockGateway()
	provider := settings.NewStaticProvider(map[string]*settings.Community{
		"c1": {
			ID:               "c1",
			TicketCategoryID: "cat-tickets",
			LogChannelID:     "log-1",
			ArchiveChannelID: "archive-1",
		},
		"bare": {ID: "bare"},
	})
	gw.Channels["log-1"] = true
	gw.Channels["archive-1"] = true

	return NewWorkflow(store, gw, provider, 0, 200), gw
}

func TestOpenProvisionsChannelAndTicket(t *testing.T) {
	w, gw := newTestWorkflow(t)

	opened, existing, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, types.TicketOpen, opened.Status)
	assert.NotEmpty(t, opened.ID)
	assert.NotEmpty(t, opened.ChannelRef)
	assert.True(t, gw.Channels[opened.ChannelRef])

	// The greeting lands in the new channel
	require.Len(t, gw.MessagesIn(opened.ChannelRef), 1)
	assert.Contains(t, gw.MessagesIn(opened.ChannelRef)[0], "u1")
}

func TestOpenIsIdempotentPerRequester(t *testing.T) {
	w, gw := newTestWorkflow(t)

	first, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	again, existing, err := w.Open("c1", "u1", "other")
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first.ID, again.ID)

	// No second channel was provisioned
	channels := 0
	for ref := range gw.Channels {
		if strings.HasPrefix(ref, "chan-ticket-") {
			channels++
		}
	}
	assert.Equal(t, 1, channels)

	// A different requester is unaffected
	_, existing, err = w.Open("c1", "u2", "billing")
	require.NoError(t, err)
	assert.False(t, existing)
}

func TestOpenRequiresCategory(t *testing.T) {
	w, _ := newTestWorkflow(t)

	_, _, err := w.Open("c1", "u1", "  ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestTakeTransitionsAndReassigns(t *testing.T) {
	w, _ := newTestWorkflow(t)

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	taken, err := w.Take(opened.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, types.TicketTaken, taken.Status)
	assert.Equal(t, "staff-1", taken.AssignedStaffID)

	// Last take wins
	retaken, err := w.Take(opened.ID, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, "staff-2", retaken.AssignedStaffID)
}

func TestTakeUnknownTicket(t *testing.T) {
	w, _ := newTestWorkflow(t)

	_, err := w.Take("missing", "staff-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCloseReclaimsChannelAndLogs(t *testing.T) {
	w, gw := newTestWorkflow(t)

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	closed, err := w.Close(opened.ID, "staff-1", "resolved")
	require.NoError(t, err)
	assert.Equal(t, types.TicketClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	w.Drain()
	assert.False(t, gw.Channels[opened.ChannelRef])

	// Closing notice went to the channel, audit entry to the log channel
	notices := gw.MessagesIn(opened.ChannelRef)
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[len(notices)-1], "staff-1")

	logEntries := gw.MessagesIn("log-1")
	require.Len(t, logEntries, 1)
	assert.Contains(t, logEntries[0], "resolved")
}

func TestCloseTwiceRejects(t *testing.T) {
	w, _ := newTestWorkflow(t)

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	_, err = w.Close(opened.ID, "staff-1", "")
	require.NoError(t, err)
	w.Drain()

	_, err = w.Close(opened.ID, "staff-1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrState))

	_, err = w.Take(opened.ID, "staff-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrState))
}

func TestCloseToleratesReclamationFailure(t *testing.T) {
	w, gw := newTestWorkflow(t)

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	// Someone already deleted the channel by hand
	delete(gw.Channels, opened.ChannelRef)

	closed, err := w.Close(opened.ID, "staff-1", "")
	require.NoError(t, err)
	assert.Equal(t, types.TicketClosed, closed.Status)
	w.Drain()
}

func TestTranscriptDeliversChunkedHistory(t *testing.T) {
	w, gw := newTestWorkflow(t)
	gw.HistoryPageSize = 7

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var messages []gateway.Message
	for i := 0; i < 25; i++ {
		messages = append(messages, gateway.Message{
			ID:         fmt.Sprintf("m%d", i),
			AuthorID:   "u1",
			AuthorName: "alice",
			Content:    fmt.Sprintf("message number %d", i),
			SentAt:     sent.Add(time.Duration(i) * time.Minute),
		})
	}
	gw.AddHistory(opened.ChannelRef, messages)

	chunks, err := w.Transcript(opened.ID)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 200)
	}

	// Every message survives, in order, and the delivered copies match
	joined := strings.Join(chunks, "\n")
	last := -1
	for i := 0; i < 25; i++ {
		idx := strings.Index(joined, fmt.Sprintf("message number %d\n", i))
		if i == 24 {
			idx = strings.LastIndex(joined, "message number 24")
		}
		require.GreaterOrEqual(t, idx, 0, "message %d missing", i)
		assert.Greater(t, idx, last)
		last = idx
	}

	assert.Equal(t, chunks, gw.MessagesIn("archive-1"))
}

func TestTranscriptRequiresArchiveDestination(t *testing.T) {
	w, _ := newTestWorkflow(t)

	opened, _, err := w.Open("bare", "u1", "billing")
	require.NoError(t, err)

	_, err = w.Transcript(opened.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotConfigured))
}

func TestTranscriptRejectsUnusableDestination(t *testing.T) {
	w, gw := newTestWorkflow(t)

	opened, _, err := w.Open("c1", "u1", "billing")
	require.NoError(t, err)
	gw.AddHistory(opened.ChannelRef, []gateway.Message{
		{ID: "m1", AuthorName: "alice", Content: "hello", SentAt: time.Now()},
	})

	// The configured archive channel no longer exists
	delete(gw.Channels, "archive-1")

	_, err = w.Transcript(opened.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidDestination))
}
