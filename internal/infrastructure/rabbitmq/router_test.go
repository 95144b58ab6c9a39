package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/contracts/event"
	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type routerFixture struct {
	router *Router
	store  *memory.Store
	keeper *memory.Keeper
	pub    *memory.Publisher
	outbox *memory.Outbox
	clock  fixedClock
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	store := memory.NewStore()
	keeper := memory.NewKeeper()
	pub := memory.NewPublisher()
	outbox := memory.NewOutbox()
	clock := fixedClock{t: time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)}

	store.AddUser(domain.User{ID: 1, Username: "alice", Password: "pw"})
	store.AddGame(domain.Game{ID: 7, Name: "Stellar Drift"})
	store.AddGame(domain.Game{ID: 8, Name: "Dungeon Loop"})
	store.AddGame(domain.Game{ID: 9, Name: "Pixel Racer"})

	svc := mission.NewService(store, keeper, clock, 5*time.Minute)
	init := mission.NewInitializer(store, keeper, clock)
	dist := mission.NewDistributor(store, svc, clock)

	return &routerFixture{
		router: NewRouter(keeper, init, svc, dist, store, pub, outbox),
		store:  store,
		keeper: keeper,
		pub:    pub,
		outbox: outbox,
		clock:  clock,
	}
}

func loginEvent(id string, dayOffset int) event.LoginEvent {
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	return event.LoginEvent{
		EventID:   id,
		UserID:    1,
		LoginDate: base.AddDate(0, 0, dayOffset),
	}
}

func TestHandleLogin_InitializesMissionsAndRecordsDay(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	res := fx.router.HandleLogin(ctx, loginEvent("ev-1", 0))
	assert.Equal(t, ResultOk, res)

	missions, err := fx.store.MissionsInCycle(ctx, 1, domain.CycleSince(fx.clock.t))
	require.NoError(t, err)
	assert.Len(t, missions, 3)

	days, err := fx.store.LoginDaysInWindow(ctx, 1, domain.CycleSince(fx.clock.t))
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestHandleLogin_DuplicateEventID(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", 0)))
	assert.Equal(t, ResultDuplicate, fx.router.HandleLogin(ctx, loginEvent("ev-1", 0)))

	days, err := fx.store.LoginDaysInWindow(ctx, 1, domain.CycleSince(fx.clock.t))
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestHandleLogin_ThirdConsecutiveDayCascades(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", -2)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-2", -1)))
	assert.Empty(t, fx.pub.MessagesOn(event.TopicMissionCompleted))

	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-3", 0)))

	msgs := fx.pub.MessagesOn(event.TopicMissionCompleted)
	require.Len(t, msgs, 1)

	var ev event.MissionCompletedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Body, &ev))
	assert.Equal(t, int64(1), ev.UserID)
	assert.Equal(t, string(domain.MissionLogin), ev.MissionType)
}

func TestHandleLogin_OutOfOrderDaysStillComplete(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	// Redelivery may reorder; the evaluator re-scans the window each time.
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", 0)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-2", -2)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-3", -1)))

	assert.Len(t, fx.pub.MessagesOn(event.TopicMissionCompleted), 1)
}

func TestHandleLogin_StoreFailureReleasesDedupAndRetries(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	fx.store.Err = errors.New("connection refused")

	res := fx.router.HandleLogin(ctx, loginEvent("ev-1", 0))
	assert.Equal(t, ResultRetry, res)

	// Dedup key was released so the redelivery is processed, not dropped.
	assert.False(t, fx.keeper.Has(dedupLoginPrefix+"ev-1"))

	fx.store.Err = nil
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", 0)))
}

func TestHandleLogin_CascadePublishFailureFallsBackToOutbox(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	fx.pub.FailSync = errors.New("broker gone")

	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", -2)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-2", -1)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-3", 0)))

	entries := fx.outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, event.TopicMissionCompleted, entries[0].Topic)
	assert.Equal(t, event.TypeMissionCompleted, entries[0].EventType)

	// The completion itself is durable regardless of the publish failure.
	missions, err := fx.store.MissionsInCycle(ctx, 1, domain.CycleSince(fx.clock.t))
	require.NoError(t, err)
	completed := 0
	for _, m := range missions {
		if m.IsCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestHandleGameLaunch_ThreeDistinctGamesCompletes(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	launch := func(id string, gameID int64) Result {
		return fx.router.HandleGameLaunch(ctx, event.GameLaunchEvent{
			EventID:    id,
			UserID:     1,
			GameID:     gameID,
			LaunchTime: fx.clock.t,
		})
	}

	assert.Equal(t, ResultOk, launch("l-1", 7))
	assert.Equal(t, ResultOk, launch("l-2", 7)) // same game, same day: no progress
	assert.Equal(t, ResultOk, launch("l-3", 8))
	assert.Empty(t, fx.pub.MessagesOn(event.TopicMissionCompleted))

	assert.Equal(t, ResultOk, launch("l-4", 9))
	assert.Len(t, fx.pub.MessagesOn(event.TopicMissionCompleted), 1)
}

func TestHandleGamePlay_DuplicateEventIDNeverDoubleCounts(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	play := event.GamePlayEvent{
		EventID: "p-1", UserID: 1, GameID: 7, Score: 600, PlayTime: fx.clock.t,
	}
	assert.Equal(t, ResultOk, fx.router.HandleGamePlay(ctx, play))
	assert.Equal(t, ResultDuplicate, fx.router.HandleGamePlay(ctx, play))

	stats, err := fx.store.PlayStatsInWindow(ctx, 1, domain.CycleSince(fx.clock.t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, int64(600), stats.TotalScore)
}

func TestHandleGamePlay_CompletesOnThresholds(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	for i, score := range []int{400, 400, 300} {
		res := fx.router.HandleGamePlay(ctx, event.GamePlayEvent{
			EventID: fmt.Sprintf("p-%d", i), UserID: 1, GameID: 7, Score: score, PlayTime: fx.clock.t,
		})
		assert.Equal(t, ResultOk, res)
	}

	// 3 sessions, 1100 points total: completed on the third.
	assert.Len(t, fx.pub.MessagesOn(event.TopicMissionCompleted), 1)
}

func TestHandleMissionCompleted_DistributesAndDeduplicates(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	// Drive all three missions to completion through the pipeline.
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-1", -2)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-2", -1)))
	assert.Equal(t, ResultOk, fx.router.HandleLogin(ctx, loginEvent("ev-3", 0)))
	for i, gameID := range []int64{7, 8, 9} {
		fx.router.HandleGameLaunch(ctx, event.GameLaunchEvent{
			EventID: fmt.Sprintf("l-%d", i), UserID: 1, GameID: gameID, LaunchTime: fx.clock.t,
		})
	}
	for i, score := range []int{400, 400, 300} {
		fx.router.HandleGamePlay(ctx, event.GamePlayEvent{
			EventID: fmt.Sprintf("p-%d", i), UserID: 1, GameID: 7, Score: score, PlayTime: fx.clock.t,
		})
	}

	cascades := fx.pub.MessagesOn(event.TopicMissionCompleted)
	require.Len(t, cascades, 3)

	for _, msg := range cascades {
		var ev event.MissionCompletedEvent
		require.NoError(t, json.Unmarshal(msg.Body, &ev))
		assert.Equal(t, ResultOk, fx.router.HandleMissionCompleted(ctx, ev))
	}

	// One reward, 777 points, despite three cascade events.
	assert.Equal(t, int64(777), fx.store.UserPoints(1))

	// Redelivery of any cascade is a duplicate.
	var ev event.MissionCompletedEvent
	require.NoError(t, json.Unmarshal(cascades[0].Body, &ev))
	assert.Equal(t, ResultDuplicate, fx.router.HandleMissionCompleted(ctx, ev))
	assert.Equal(t, int64(777), fx.store.UserPoints(1))
}

func TestHandleMissionCompleted_DistributionErrorStillAcks(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	fx.store.Err = errors.New("connection refused")

	res := fx.router.HandleMissionCompleted(ctx, event.MissionCompletedEvent{
		EventID: "mc-1", UserID: 1, MissionType: string(domain.MissionLogin), CompletedAt: fx.clock.t,
	})
	assert.Equal(t, ResultOk, res, "reward path never requeues; next event re-evaluates")
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "ok", ResultOk.String())
	assert.Equal(t, "duplicate", ResultDuplicate.String())
	assert.Equal(t, "retry", ResultRetry.String())
	assert.Equal(t, "fatal", ResultFatal.String())
}
