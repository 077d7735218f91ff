package gateway

import (
	"fmt"
	"sync"
)

// MockGateway is an in-memory Gateway for tests and local development. It
// journals every side effect so tests can assert on exactly what the core
// asked the platform to do.
type MockGateway struct {
	mu sync.Mutex

	// Members holds resolvable members keyed by communityID:userID
	Members map[string]*Member

	// Sanctions holds active sanctions keyed by communityID:userID:kind
	Sanctions map[string]bool

	// History holds channel messages keyed by channel ref, in send order
	History map[string][]Message

	// Channels tracks provisioned channels that still exist
	Channels map[string]bool

	// ChannelMessages journals SendChannelMessage calls per channel ref
	ChannelMessages map[string][]string

	// DirectMessages journals SendDirectMessage calls per user id
	DirectMessages map[string][]string

	// Kicked journals KickMember calls as communityID:userID
	Kicked []string

	// HistoryPageSize is the page length served by FetchChannelHistory
	HistoryPageSize int

	// Fail forces the named operations to return an error, keyed by
	// method name ("ApplySanction", "LiftSanction", ...)
	Fail map[string]error

	nextChannel int
}

// NewMockGateway creates an empty mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Members:         make(map[string]*Member),
		Sanctions:       make(map[string]bool),
		History:         make(map[string][]Message),
		Channels:        make(map[string]bool),
		ChannelMessages: make(map[string][]string),
		DirectMessages:  make(map[string][]string),
		HistoryPageSize: 50,
		Fail:            make(map[string]error),
	}
}

// AddMember registers a resolvable member
func (m *MockGateway) AddMember(communityID string, member *Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Members[communityID+":"+member.ID] = member
}

// AddHistory seeds a channel's message history
func (m *MockGateway) AddHistory(channelRef string, messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Channels[channelRef] = true
	m.History[channelRef] = append(m.History[channelRef], messages...)
}

// DirectMessagesTo returns a snapshot of the DMs sent to a user
func (m *MockGateway) DirectMessagesTo(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.DirectMessages[userID]...)
}

// MessagesIn returns a snapshot of the messages posted to a channel
func (m *MockGateway) MessagesIn(channelRef string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ChannelMessages[channelRef]...)
}

func (m *MockGateway) failure(op string) error {
	if err, ok := m.Fail[op]; ok {
		return err
	}
	return nil
}

// ResolveMember looks up a registered member
func (m *MockGateway) ResolveMember(communityID, userID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("ResolveMember"); err != nil {
		return nil, err
	}

	member, ok := m.Members[communityID+":"+userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// ApplySanction marks the sanction active
func (m *MockGateway) ApplySanction(communityID, userID string, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("ApplySanction"); err != nil {
		return err
	}

	m.Sanctions[communityID+":"+userID+":"+kind] = true
	return nil
}

// LiftSanction clears the sanction
func (m *MockGateway) LiftSanction(communityID, userID string, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("LiftSanction"); err != nil {
		return err
	}

	delete(m.Sanctions, communityID+":"+userID+":"+kind)
	return nil
}

// HasSanction reports whether the sanction is active
func (m *MockGateway) HasSanction(communityID, userID string, kind string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("HasSanction"); err != nil {
		return false, err
	}

	return m.Sanctions[communityID+":"+userID+":"+kind], nil
}

// KickMember journals the kick
func (m *MockGateway) KickMember(communityID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("KickMember"); err != nil {
		return err
	}

	m.Kicked = append(m.Kicked, communityID+":"+userID)
	return nil
}

// CreateRestrictedChannel provisions a fake channel reference
func (m *MockGateway) CreateRestrictedChannel(communityID, categoryID, name string, allowList []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("CreateRestrictedChannel"); err != nil {
		return "", err
	}

	m.nextChannel++
	ref := fmt.Sprintf("chan-%s-%d", name, m.nextChannel)
	m.Channels[ref] = true
	return ref, nil
}

// DeleteChannel reclaims a fake channel
func (m *MockGateway) DeleteChannel(channelRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("DeleteChannel"); err != nil {
		return err
	}

	if !m.Channels[channelRef] {
		return ErrChannelNotFound
	}
	delete(m.Channels, channelRef)
	return nil
}

// SendChannelMessage journals the message
func (m *MockGateway) SendChannelMessage(channelRef, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("SendChannelMessage"); err != nil {
		return err
	}

	if !m.Channels[channelRef] {
		return ErrChannelNotFound
	}
	m.ChannelMessages[channelRef] = append(m.ChannelMessages[channelRef], content)
	return nil
}

// SendDirectMessage journals the message
func (m *MockGateway) SendDirectMessage(userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("SendDirectMessage"); err != nil {
		return err
	}

	m.DirectMessages[userID] = append(m.DirectMessages[userID], content)
	return nil
}

// FetchChannelHistory serves seeded history in fixed-size pages
func (m *MockGateway) FetchChannelHistory(channelRef string, page int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("FetchChannelHistory"); err != nil {
		return nil, err
	}

	if !m.Channels[channelRef] {
		return nil, ErrChannelNotFound
	}

	history := m.History[channelRef]
	start := page * m.HistoryPageSize
	if start >= len(history) {
		return nil, nil
	}
	end := start + m.HistoryPageSize
	if end > len(history) {
		end = len(history)
	}

	// Copy to keep callers from mutating the seeded history
	pageCopy := make([]Message, end-start)
	copy(pageCopy, history[start:end])
	return pageCopy, nil
}
