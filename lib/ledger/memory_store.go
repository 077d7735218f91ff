package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/wardenkit/warden/lib/types"
)

// MemoryStore is an in-memory Store for tests and simple deployments
// without a database
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	cases    []*types.ModerationCase
	seq      int64 // insertion order tiebreaker
	order    map[*types.ModerationCase]int64
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		order:    make(map[*types.ModerationCase]int64),
	}
}

// Initialize sets up the in-memory store
func (s *MemoryStore) Initialize() error { return nil }

// Close releases resources
func (s *MemoryStore) Close() error { return nil }

// AllocateCaseID atomically increments and returns the community's counter
func (s *MemoryStore) AllocateCaseID(communityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[communityID]++
	return s.counters[communityID], nil
}

// RecordCase persists a new case in memory
func (s *MemoryStore) RecordCase(payload *CasePayload, assignCaseID bool) (*types.ModerationCase, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	var caseID int64
	if assignCaseID {
		id, err := s.AllocateCaseID(payload.CommunityID)
		if err != nil {
			return nil, err
		}
		caseID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := &types.ModerationCase{
		CaseID:        caseID,
		CommunityID:   payload.CommunityID,
		SubjectUserID: payload.SubjectUserID,
		ActorID:       payload.ActorID,
		ActionType:    payload.ActionType,
		Reason:        payload.Reason,
		Evidence:      append([]string(nil), payload.Evidence...),
		Duration:      payload.Duration,
		ExpiresAt:     payload.ExpiresAt,
		CreatedAt:     time.Now(),
	}
	if len(payload.Metadata) > 0 {
		record.Metadata = make(map[string]string, len(payload.Metadata))
		for k, v := range payload.Metadata {
			record.Metadata[k] = v
		}
	}

	s.seq++
	s.order[record] = s.seq
	s.cases = append(s.cases, record)

	return record, nil
}

// QueryCases returns a subject's cases newest first
func (s *MemoryStore) QueryCases(communityID, subjectUserID string, filter *types.CaseFilter) ([]*types.ModerationCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.match(communityID, subjectUserID)

	if filter != nil && filter.Type != "" {
		filtered := matched[:0]
		for _, c := range matched {
			if c.ActionType == filter.Type {
				filtered = append(filtered, c)
			}
		}
		matched = filtered
	}

	if filter != nil && filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// AggregateStats computes the aggregate view under one lock acquisition,
// giving the same single-snapshot guarantee as the database transaction
func (s *MemoryStore) AggregateStats(communityID, subjectUserID string) (*types.CaseStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.match(communityID, subjectUserID)

	stats := &types.CaseStats{
		TotalCases:   int64(len(matched)),
		CountsByType: make(map[types.ActionType]int64),
	}
	for _, c := range matched {
		stats.CountsByType[c.ActionType]++
	}
	if len(matched) > 0 {
		stats.MostRecent = matched[0]
	}

	return stats, nil
}

// match returns the subject's cases newest first; caller holds the lock
func (s *MemoryStore) match(communityID, subjectUserID string) []*types.ModerationCase {
	var matched []*types.ModerationCase
	for _, c := range s.cases {
		if c.CommunityID == communityID && c.SubjectUserID == subjectUserID {
			matched = append(matched, c)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return s.order[matched[i]] > s.order[matched[j]]
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return matched
}
