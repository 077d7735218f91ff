package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenkit/warden/lib/types"
)

// eachStore runs the test against both ledger implementations
func eachStore(t *testing.T, test func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		test(t, NewMemoryStore())
	})

	t.Run("gorm", func(t *testing.T) {
		store, err := InitStore(t.TempDir())
		require.NoError(t, err)
		defer store.Close()
		test(t, store)
	})
}

func payload(community, subject string, action types.ActionType) *CasePayload {
	return &CasePayload{
		CommunityID:   community,
		SubjectUserID: subject,
		ActorID:       "staff-1",
		ActionType:    action,
		Reason:        "test reason",
	}
}

func TestAllocateCaseIDIsSequentialPerCommunity(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		for i := int64(1); i <= 5; i++ {
			id, err := store.AllocateCaseID("community-a")
			require.NoError(t, err)
			assert.Equal(t, i, id)
		}

		// A second community gets its own independent sequence
		id, err := store.AllocateCaseID("community-b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
	})
}

func TestAllocateCaseIDUnderConcurrency(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		const workers = 20
		const perWorker = 5

		var mu sync.Mutex
		seen := make(map[int64]bool)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					id, err := store.AllocateCaseID("community-a")
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					if seen[id] {
						t.Errorf("duplicate case id %d", id)
					}
					seen[id] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		// No gaps, no duplicates: exactly {1..workers*perWorker}
		require.Len(t, seen, workers*perWorker)
		for i := int64(1); i <= workers*perWorker; i++ {
			assert.True(t, seen[i], "missing case id %d", i)
		}
	})
}

func TestRecordCaseAssignsNumbersOnRequest(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		numbered, err := store.RecordCase(payload("c1", "u1", types.ActionWarn), true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), numbered.CaseID)

		unnumbered, err := store.RecordCase(payload("c1", "u1", types.ActionNote), false)
		require.NoError(t, err)
		assert.Zero(t, unnumbered.CaseID)

		// Unnumbered cases never consume from the sequence
		next, err := store.RecordCase(payload("c1", "u2", types.ActionBan), true)
		require.NoError(t, err)
		assert.Equal(t, int64(2), next.CaseID)
	})
}

func TestRecordCaseRejectsInvalidPayloads(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		invalid := []*CasePayload{
			nil,
			{CommunityID: "", SubjectUserID: "u1", ActorID: "a", ActionType: types.ActionWarn, Reason: "r"},
			{CommunityID: "c1", SubjectUserID: "u1", ActorID: "a", ActionType: "frobnicate", Reason: "r"},
			{CommunityID: "c1", SubjectUserID: "u1", ActorID: "a", ActionType: types.ActionWarn, Reason: "   "},
			{CommunityID: "c1", SubjectUserID: "u1", ActorID: "a", ActionType: types.ActionWarn, Reason: "r",
				Evidence: []string{"1", "2", "3", "4", "5", "6"}},
		}

		for _, p := range invalid {
			_, err := store.RecordCase(p, true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation))
		}
	})
}

func TestRecordCaseRoundTripsFields(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		p := payload("c1", "u1", types.ActionMute)
		p.Evidence = []string{"https://example.com/a", "https://example.com/b"}
		p.Duration = time.Hour
		p.ExpiresAt = &expiry
		p.Metadata = map[string]string{"automated": "true"}

		_, err := store.RecordCase(p, true)
		require.NoError(t, err)

		cases, err := store.QueryCases("c1", "u1", nil)
		require.NoError(t, err)
		require.Len(t, cases, 1)

		got := cases[0]
		assert.Equal(t, p.Evidence, got.Evidence)
		assert.Equal(t, time.Hour, got.Duration)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, expiry.Unix(), got.ExpiresAt.Unix())
		assert.True(t, got.Automated())
	})
}

func TestQueryCasesNewestFirstWithFilter(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		actions := []types.ActionType{
			types.ActionWarn, types.ActionMute, types.ActionWarn, types.ActionBan,
		}
		for i, action := range actions {
			p := payload("c1", "u1", action)
			p.Reason = fmt.Sprintf("reason %d", i)
			_, err := store.RecordCase(p, true)
			require.NoError(t, err)
		}
		// A different subject's case never leaks into the results
		_, err := store.RecordCase(payload("c1", "other", types.ActionWarn), true)
		require.NoError(t, err)

		all, err := store.QueryCases("c1", "u1", nil)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "reason 3", all[0].Reason)
		assert.Equal(t, "reason 0", all[3].Reason)

		warns, err := store.QueryCases("c1", "u1", &types.CaseFilter{Type: types.ActionWarn})
		require.NoError(t, err)
		require.Len(t, warns, 2)
		assert.Equal(t, "reason 2", warns[0].Reason)

		limited, err := store.QueryCases("c1", "u1", &types.CaseFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "reason 3", limited[0].Reason)
	})
}

func TestAggregateStats(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		empty, err := store.AggregateStats("c1", "nobody")
		require.NoError(t, err)
		assert.Zero(t, empty.TotalCases)
		assert.Nil(t, empty.MostRecent)

		for _, action := range []types.ActionType{types.ActionWarn, types.ActionWarn, types.ActionMute} {
			_, err := store.RecordCase(payload("c1", "u1", action), true)
			require.NoError(t, err)
		}

		stats, err := store.AggregateStats("c1", "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalCases)
		assert.Equal(t, int64(2), stats.CountsByType[types.ActionWarn])
		assert.Equal(t, int64(1), stats.CountsByType[types.ActionMute])
		require.NotNil(t, stats.MostRecent)
		assert.Equal(t, types.ActionMute, stats.MostRecent.ActionType)

		// The breakdown always sums to the total
		var sum int64
		for _, n := range stats.CountsByType {
			sum += n
		}
		assert.Equal(t, stats.TotalCases, sum)
	})
}
