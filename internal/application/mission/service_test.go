package mission

import (
	"context"
	"testing"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func day(clock fixedClock, offset int) time.Time {
	return domain.Normalize(clock.t.AddDate(0, 0, offset))
}

func newTestService(t *testing.T) (*Service, *memory.Store, *memory.Keeper, fixedClock) {
	t.Helper()
	store := memory.NewStore()
	keeper := memory.NewKeeper()
	clock := fixedClock{t: time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)}
	svc := NewService(store, keeper, clock, 5*time.Minute)
	return svc, store, keeper, clock
}

func seedMissions(t *testing.T, store *memory.Store, userID int64, cycleStart time.Time) {
	t.Helper()
	for _, mt := range domain.AllMissionTypes {
		created, err := store.InsertMission(context.Background(), userID, mt, cycleStart)
		require.NoError(t, err)
		require.True(t, created)
	}
}

func TestConsecutiveLoginDays_AnchorsAtLatestLogin(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	// Three consecutive days ending five days ago. No login today.
	for _, off := range []int{-7, -6, -5} {
		_, err := store.InsertLoginDay(ctx, 1, day(clock, off))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, svc.ConsecutiveLoginDays(ctx, 1))
}

func TestConsecutiveLoginDays_GapBreaksChain(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	// -2 and -3 are consecutive; -5 is past a gap.
	for _, off := range []int{-5, -3, -2} {
		_, err := store.InsertLoginDay(ctx, 1, day(clock, off))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, svc.ConsecutiveLoginDays(ctx, 1))
}

func TestConsecutiveLoginDays_NoLogins(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	assert.Equal(t, 0, svc.ConsecutiveLoginDays(context.Background(), 1))
}

func TestLaunchMission_RequiresDistinctGames(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	// Same game on three days: one distinct game.
	for _, off := range []int{-3, -2, -1} {
		_, err := store.InsertGameLaunch(ctx, 1, 7, day(clock, off))
		require.NoError(t, err)
	}
	done, err := svc.LaunchMissionCompleted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, done)

	// Two more games.
	for _, gameID := range []int64{8, 9} {
		_, err := store.InsertGameLaunch(ctx, 1, gameID, day(clock, -1))
		require.NoError(t, err)
	}
	done, err = svc.LaunchMissionCompleted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPlayMission_ThresholdIsStrict(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	addPlay := func(eventID string, score int) {
		_, err := store.InsertPlaySession(ctx, domain.PlaySession{
			EventID: eventID, UserID: 1, GameID: 7, Score: score, PlayedAt: clock.t,
		})
		require.NoError(t, err)
	}

	// Three sessions summing to exactly 1000: not completed.
	addPlay("p1", 400)
	addPlay("p2", 300)
	addPlay("p3", 300)

	done, err := svc.PlayMissionCompleted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, done)

	// One more point crosses the line.
	addPlay("p4", 1)
	done, err = svc.PlayMissionCompleted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPlayMission_RequiresThreeSessions(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	// Two huge sessions are not enough.
	for i, score := range []int{900, 900} {
		_, err := store.InsertPlaySession(ctx, domain.PlaySession{
			EventID: string(rune('a' + i)), UserID: 1, GameID: 7, Score: score, PlayedAt: clock.t,
		})
		require.NoError(t, err)
	}

	done, err := svc.PlayMissionCompleted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCheckAndComplete_TransitionsOnce(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	seedMissions(t, store, 1, day(clock, 0))
	for _, off := range []int{-2, -1, 0} {
		_, err := store.InsertLoginDay(ctx, 1, day(clock, off))
		require.NoError(t, err)
	}

	pred := svc.PredicateFor(domain.MissionLogin, 1)

	won, err := svc.CheckAndComplete(ctx, 1, domain.MissionLogin, pred)
	require.NoError(t, err)
	assert.True(t, won)

	// Already completed: the second evaluation is a no-op.
	won, err = svc.CheckAndComplete(ctx, 1, domain.MissionLogin, pred)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestCheckAndComplete_PredicateFalseLeavesMissionOpen(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	seedMissions(t, store, 1, day(clock, 0))
	_, err := store.InsertLoginDay(ctx, 1, day(clock, 0))
	require.NoError(t, err)

	won, err := svc.CheckAndComplete(ctx, 1, domain.MissionLogin, svc.PredicateFor(domain.MissionLogin, 1))
	require.NoError(t, err)
	assert.False(t, won)

	missions, err := svc.Progress(ctx, 1)
	require.NoError(t, err)
	for _, m := range missions {
		assert.False(t, m.IsCompleted)
	}
}

func TestCheckAndComplete_TargetsNewestCycleRow(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	// Consumed previous cycle still inside the 30-day window.
	oldStart := day(clock, -10)
	seedMissions(t, store, 1, oldStart)
	missions, err := store.MissionsInCycle(ctx, 1, domain.CycleSince(clock.t))
	require.NoError(t, err)
	for _, m := range missions {
		_, err := store.CompleteMission(ctx, m.ID, clock.t)
		require.NoError(t, err)
	}

	// Fresh cycle started today.
	seedMissions(t, store, 1, day(clock, 0))

	for _, off := range []int{-2, -1, 0} {
		_, err := store.InsertLoginDay(ctx, 1, day(clock, off))
		require.NoError(t, err)
	}

	won, err := svc.CheckAndComplete(ctx, 1, domain.MissionLogin, svc.PredicateFor(domain.MissionLogin, 1))
	require.NoError(t, err)
	assert.True(t, won, "must complete the fresh row, not skip on the consumed one")
}

func TestCheckAndComplete_MissingMissionIsNotAnError(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	won, err := svc.CheckAndComplete(context.Background(), 1, domain.MissionLogin,
		func(context.Context) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.False(t, won)
}

func TestProgress_ReadThroughCache(t *testing.T) {
	svc, store, keeper, clock := newTestService(t)
	ctx := context.Background()

	seedMissions(t, store, 1, day(clock, 0))

	first, err := svc.Progress(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// A direct store write is invisible until the cache is evicted.
	_, err = store.InsertMission(ctx, 2, domain.MissionLogin, day(clock, 0))
	require.NoError(t, err)
	for _, m := range first {
		_, err := store.CompleteMission(ctx, m.ID, clock.t)
		require.NoError(t, err)
	}

	cached, err := svc.Progress(ctx, 1)
	require.NoError(t, err)
	for _, m := range cached {
		assert.False(t, m.IsCompleted)
	}

	require.NoError(t, keeper.EvictProgress(ctx, 1))
	fresh, err := svc.Progress(ctx, 1)
	require.NoError(t, err)
	for _, m := range fresh {
		assert.True(t, m.IsCompleted)
	}
}

func TestAllMissionsCompleted(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	seedMissions(t, store, 1, day(clock, 0))

	all, err := svc.AllMissionsCompleted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, all)

	missions, err := store.MissionsInCycle(ctx, 1, domain.CycleSince(clock.t))
	require.NoError(t, err)
	for _, m := range missions {
		_, err := store.CompleteMission(ctx, m.ID, clock.t)
		require.NoError(t, err)
	}

	all, err = svc.AllMissionsCompleted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, all)
}
