// Package gateway defines the directory/enforcement collaborator the
// moderation core drives. The gateway owns member resolution, sanction
// enforcement, channel provisioning, and message delivery; the core only
// decides what should happen and when.
package gateway

import (
	"errors"
	"time"
)

// Errors returned by gateway implementations
var (
	// ErrMemberNotFound is returned when a member id cannot be resolved
	ErrMemberNotFound = errors.New("member not found")

	// ErrChannelNotFound is returned when a channel reference is stale
	ErrChannelNotFound = errors.New("channel not found")
)

// Member is a resolved community member
type Member struct {
	// ID is the member's user id
	ID string `json:"id"`

	// DisplayName is the member's current display name
	DisplayName string `json:"display_name"`

	// Bot indicates a non-human or system account
	Bot bool `json:"bot"`

	// RoleRank is the member's highest role position, used for hierarchy
	// checks. Higher outranks lower.
	RoleRank int `json:"role_rank"`
}

// Message is a single channel message returned by history paging
type Message struct {
	// ID is the message id
	ID string `json:"id"`

	// AuthorID is the sender's user id
	AuthorID string `json:"author_id"`

	// AuthorName is the sender's display name at send time
	AuthorName string `json:"author_name"`

	// Content is the message text
	Content string `json:"content"`

	// SentAt is when the message was sent
	SentAt time.Time `json:"sent_at"`
}

// Gateway is the directory/enforcement collaborator interface. All methods
// perform I/O against the community platform; failures are returned, never
// retried here.
type Gateway interface {
	// ResolveMember looks up a member of a community
	ResolveMember(communityID, userID string) (*Member, error)

	// ApplySanction enforces a mute or ban against a member
	ApplySanction(communityID, userID string, kind string) error

	// LiftSanction removes a mute or ban from a member
	LiftSanction(communityID, userID string, kind string) error

	// HasSanction reports whether the member currently carries the sanction
	HasSanction(communityID, userID string, kind string) (bool, error)

	// KickMember removes a member from the community without banning
	KickMember(communityID, userID string) error

	// CreateRestrictedChannel provisions a channel under the given category
	// visible only to the allow-listed users, returning its reference
	CreateRestrictedChannel(communityID, categoryID, name string, allowList []string) (string, error)

	// DeleteChannel reclaims a provisioned channel
	DeleteChannel(channelRef string) error

	// SendChannelMessage posts content to a channel
	SendChannelMessage(channelRef, content string) error

	// SendDirectMessage delivers content to a user's direct messages
	SendDirectMessage(userID, content string) error

	// FetchChannelHistory returns one page of a channel's messages in
	// chronological order, oldest first. An empty page marks the end.
	FetchChannelHistory(channelRef string, page int) ([]Message, error)
}
