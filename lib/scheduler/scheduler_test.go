package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/ledger"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/types"
)

func newTestScheduler(t *testing.T) (*Scheduler, *ledger.MemoryStore, *gateway.MockGateway, *MemoryPendingStore) {
	t.Helper()

	ledgerStore := ledger.NewMemoryStore()
	gw := gateway.NewMockGateway()
	pending := NewMemoryPendingStore()
	provider := settings.NewStaticProvider(map[string]*settings.Community{
		"c1": {ID: "c1", LogChannelID: "log-1"},
	})
	gw.Channels["log-1"] = true

	sched := New(ledgerStore, gw, pending, provider, true)
	t.Cleanup(sched.Stop)

	return sched, ledgerStore, gw, pending
}

func muteActive(gw *gateway.MockGateway, community, user string) {
	gw.Sanctions[community+":"+user+":mute"] = true
}

func TestReversalFiresOnceAndRecordsCase(t *testing.T) {
	sched, ledgerStore, gw, pending := newTestScheduler(t)
	require.NoError(t, sched.Start())

	muteActive(gw, "c1", "u1")

	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      20 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cases, err := ledgerStore.QueryCases("c1", "u1", nil)
		return err == nil && len(cases) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, types.ActionUnmute, cases[0].ActionType)
	assert.Equal(t, "system", cases[0].ActorID)
	assert.True(t, cases[0].Automated())

	// The sanction is lifted and the pending row consumed
	active, err := gw.HasSanction("c1", "u1", "mute")
	require.NoError(t, err)
	assert.False(t, active)

	require.Eventually(t, func() bool {
		rows, err := pending.List()
		return err == nil && len(rows) == 0
	}, time.Second, 5*time.Millisecond)

	// Nothing fires twice
	time.Sleep(50 * time.Millisecond)
	cases, err = ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestCancelReversalPreventsFiring(t *testing.T) {
	sched, ledgerStore, gw, pending := newTestScheduler(t)
	require.NoError(t, sched.Start())

	muteActive(gw, "c1", "u1")

	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      30 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sched.CancelReversal("c1", "u1", types.SanctionMute))

	rows, err := pending.List()
	require.NoError(t, err)
	assert.Empty(t, rows)

	time.Sleep(80 * time.Millisecond)

	// The mute stays in place and no case was recorded
	active, err := gw.HasSanction("c1", "u1", "mute")
	require.NoError(t, err)
	assert.True(t, active)

	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestCancelMissingReversalIsNoOp(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t)
	require.NoError(t, sched.Start())

	assert.NoError(t, sched.CancelReversal("c1", "ghost", types.SanctionBan))
}

func TestReschedulingSameKeyLastWins(t *testing.T) {
	sched, ledgerStore, gw, pending := newTestScheduler(t)
	require.NoError(t, sched.Start())

	muteActive(gw, "c1", "u1")

	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      30 * time.Millisecond,
	})
	require.NoError(t, err)

	// Replace with a longer sanction before the first fires
	_, err = sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      150 * time.Millisecond,
	})
	require.NoError(t, err)

	rows, err := pending.List()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Past the first deadline, before the second: nothing has fired
	time.Sleep(70 * time.Millisecond)
	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, cases)

	require.Eventually(t, func() bool {
		cases, err := ledgerStore.QueryCases("c1", "u1", nil)
		return err == nil && len(cases) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExecuteSkipsAlreadyLiftedSanction(t *testing.T) {
	sched, ledgerStore, gw, _ := newTestScheduler(t)
	require.NoError(t, sched.Start())

	// Never marked active: equivalent to a manual lift before expiry
	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, cases)

	assert.Empty(t, gw.DirectMessagesTo("u1"))
}

func TestStartRecoversPersistedReversals(t *testing.T) {
	ledgerStore := ledger.NewMemoryStore()
	gw := gateway.NewMockGateway()
	pending := NewMemoryPendingStore()
	provider := settings.NewStaticProvider(nil)

	muteActive(gw, "c1", "overdue")
	gw.Sanctions["c1:upcoming:ban"] = true

	// Rows left behind by a previous process
	require.NoError(t, pending.Save(&types.ScheduledSanction{
		CommunityID:   "c1",
		SubjectUserID: "overdue",
		Kind:          types.SanctionMute,
		ExpiresAt:     time.Now().Add(-time.Minute),
	}))
	require.NoError(t, pending.Save(&types.ScheduledSanction{
		CommunityID:   "c1",
		SubjectUserID: "upcoming",
		Kind:          types.SanctionBan,
		ExpiresAt:     time.Now().Add(40 * time.Millisecond),
	}))

	sched := New(ledgerStore, gw, pending, provider, true)
	t.Cleanup(sched.Stop)
	require.NoError(t, sched.Start())

	// The overdue reversal fires immediately
	require.Eventually(t, func() bool {
		cases, err := ledgerStore.QueryCases("c1", "overdue", nil)
		return err == nil && len(cases) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The upcoming one re-arms with its remaining delay
	require.Eventually(t, func() bool {
		cases, err := ledgerStore.QueryCases("c1", "upcoming", nil)
		return err == nil && len(cases) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cases, err := ledgerStore.QueryCases("c1", "upcoming", nil)
	require.NoError(t, err)
	assert.Equal(t, types.ActionUnban, cases[0].ActionType)
}

// blockingGateway holds HasSanction open so tests can observe the
// scheduler mid-execution
type blockingGateway struct {
	*gateway.MockGateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) HasSanction(communityID, userID, kind string) (bool, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.MockGateway.HasSanction(communityID, userID, kind)
}

func TestStopWaitsForInFlightExecution(t *testing.T) {
	ledgerStore := ledger.NewMemoryStore()
	gw := &blockingGateway{
		MockGateway: gateway.NewMockGateway(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	pending := NewMemoryPendingStore()
	provider := settings.NewStaticProvider(nil)

	muteActive(gw.MockGateway, "c1", "u1")

	sched := New(ledgerStore, gw, pending, provider, true)
	require.NoError(t, sched.Start())

	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      time.Millisecond,
	})
	require.NoError(t, err)

	// The timer fired and the execution is inside the gateway call
	<-gw.entered

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a reversal was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the reversal finished")
	}

	// The reversal completed before Stop returned, so stores were still
	// safe to use
	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestStaleTimerFiringDoesNotConsumeReplacement(t *testing.T) {
	sched, ledgerStore, gw, pending := newTestScheduler(t)
	require.NoError(t, sched.Start())

	muteActive(gw, "c1", "u1")

	replacement, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      time.Hour,
	})
	require.NoError(t, err)

	// A firing left over from a superseded schedule carries the old expiry
	stale := &types.ScheduledSanction{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		ExpiresAt:     replacement.ExpiresAt.Add(-30 * time.Minute),
	}
	sched.execute(stale)

	// The replacement's row survives and nothing was lifted or recorded
	row, err := pending.Get(stale.Key())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.ExpiresAt.Equal(replacement.ExpiresAt))

	active, err := gw.HasSanction("c1", "u1", "mute")
	require.NoError(t, err)
	assert.True(t, active)

	cases, err := ledgerStore.QueryCases("c1", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestNotificationsOnReversal(t *testing.T) {
	sched, _, gw, _ := newTestScheduler(t)
	require.NoError(t, sched.Start())

	muteActive(gw, "c1", "u1")

	_, err := sched.ScheduleReversal(&Request{
		CommunityID:   "c1",
		SubjectUserID: "u1",
		Kind:          types.SanctionMute,
		Duration:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(gw.DirectMessagesTo("u1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(gw.MessagesIn("log-1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	logged := gw.MessagesIn("log-1")[0]
	assert.Contains(t, logged, "Case #1")
	assert.Contains(t, logged, "unmute")
}
