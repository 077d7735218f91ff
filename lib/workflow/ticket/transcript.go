package ticket

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/types"
)

// Transcript renders the ticket channel's history as a flat text log and
// delivers it to the community's archive destination in chunks. The
// returned slice holds the delivered chunks in order.
func (w *Workflow) Transcript(ticketID string) ([]string, error) {
	ticket, err := w.store.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}

	community, err := w.settings.Community(ticket.CommunityID)
	if err != nil {
		return nil, err
	}
	if community.ArchiveChannelID == "" {
		return nil, fmt.Errorf("%w: no archive destination for community %s", types.ErrNotConfigured, ticket.CommunityID)
	}

	lines, err := w.collectHistory(ticket.ChannelRef)
	if err != nil {
		return nil, err
	}

	header := fmt.Sprintf("Transcript of ticket %s (%s) opened by %s", ticket.ID, ticket.Category, ticket.OpenerUserID)
	chunks := chunkLines(header, lines, w.chunkSize)

	for _, chunk := range chunks {
		if err := w.gw.SendChannelMessage(community.ArchiveChannelID, chunk); err != nil {
			if errors.Is(err, gateway.ErrChannelNotFound) {
				return nil, fmt.Errorf("%w: archive channel %s", types.ErrInvalidDestination, community.ArchiveChannelID)
			}
			return nil, fmt.Errorf("failed to deliver transcript chunk: %w", err)
		}
	}

	return chunks, nil
}

// collectHistory pages through the channel oldest first until the gateway
// signals the end with an empty page
func (w *Workflow) collectHistory(channelRef string) ([]string, error) {
	var lines []string

	for page := 0; ; page++ {
		messages, err := w.gw.FetchChannelHistory(channelRef, page)
		if err != nil {
			if errors.Is(err, gateway.ErrChannelNotFound) {
				return nil, fmt.Errorf("%w: channel %s", types.ErrNotFound, channelRef)
			}
			return nil, fmt.Errorf("failed to fetch channel history: %w", err)
		}
		if len(messages) == 0 {
			return lines, nil
		}

		for _, msg := range messages {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s",
				msg.SentAt.UTC().Format("2006-01-02 15:04:05"), msg.AuthorName, msg.Content))
		}
	}
}

// chunkLines packs the header and lines into chunks no longer than limit.
// A single line longer than the limit becomes its own oversized chunk
// rather than being split mid-line.
func chunkLines(header string, lines []string, limit int) []string {
	var chunks []string
	var current strings.Builder
	current.WriteString(header)

	for _, line := range lines {
		if current.Len()+1+len(line) > limit && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
