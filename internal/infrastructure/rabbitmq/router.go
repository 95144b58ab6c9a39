package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/contracts/event"
	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/metrics"
	"github.com/herverfred/mission-center/internal/pkg/logger"
)

// Result classifies one handled delivery. The consumer maps it to ack/nack.
type Result int

const (
	ResultOk        Result = iota // processed, ack
	ResultDuplicate               // already processed, ack
	ResultRetry                   // transient failure, nack + requeue
	ResultFatal                   // unprocessable, ack and drop
)

func (r Result) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultDuplicate:
		return "duplicate"
	case ResultRetry:
		return "retry"
	default:
		return "fatal"
	}
}

// Dedup key prefixes, per topic. 24h comfortably exceeds the broker's
// redelivery horizon.
const (
	dedupLoginPrefix     = "processed:login:"
	dedupLaunchPrefix    = "processed:game-launch:"
	dedupPlayPrefix      = "processed:game-play:"
	dedupCompletedPrefix = "processed:mission-completed:"

	dedupTTL = 24 * time.Hour
)

// Router implements the consume-side pipeline behind each queue: dedup,
// mission init, activity record, completion check, cascade publish.
type Router struct {
	keeper   mission.Keeper
	init     *mission.Initializer
	missions *mission.Service
	rewards  *mission.Distributor
	store    mission.Store
	pub      mission.Publisher
	outbox   mission.OutboxEnqueuer
}

func NewRouter(
	keeper mission.Keeper,
	init *mission.Initializer,
	missions *mission.Service,
	rewards *mission.Distributor,
	store mission.Store,
	pub mission.Publisher,
	outbox mission.OutboxEnqueuer,
) *Router {
	return &Router{
		keeper:   keeper,
		init:     init,
		missions: missions,
		rewards:  rewards,
		store:    store,
		pub:      pub,
		outbox:   outbox,
	}
}

// ingress runs the shared pipeline for the three activity topics.
// record persists the activity row; mt names the mission the event feeds.
func (rt *Router) ingress(
	ctx context.Context,
	prefix, eventID string,
	userID int64,
	mt domain.MissionType,
	record func(ctx context.Context) error,
) Result {
	log := logger.WithCtx(ctx)

	dedupKey := ""
	if eventID != "" {
		dedupKey = prefix + eventID
		fresh, err := rt.keeper.MarkProcessed(ctx, dedupKey, dedupTTL)
		if err != nil {
			log.Error().Err(err).Str("key", dedupKey).Msg("dedup check failed")
			return ResultRetry
		}
		if !fresh {
			log.Info().Str("event_id", eventID).Msg("duplicate event skipped")
			return ResultDuplicate
		}
	} else {
		log.Warn().Int64("user_id", userID).Msg("event without event_id; processing without dedup")
	}

	release := func() {
		if dedupKey == "" {
			return
		}
		if err := rt.keeper.ReleaseProcessed(ctx, dedupKey); err != nil {
			log.Warn().Err(err).Str("key", dedupKey).Msg("dedup key release failed")
		}
	}

	if err := rt.init.EnsureMissions(ctx, userID); err != nil {
		release()
		if errors.Is(err, domain.ErrInitTimeout) {
			log.Warn().Err(err).Int64("user_id", userID).Msg("mission init wait timed out; requeueing")
		} else {
			log.Error().Err(err).Int64("user_id", userID).Msg("mission init failed")
		}
		return ResultRetry
	}

	if err := record(ctx); err != nil {
		release()
		log.Error().Err(err).Int64("user_id", userID).Msg("activity record failed")
		return ResultRetry
	}

	won, err := rt.missions.CheckAndComplete(ctx, userID, mt, rt.missions.PredicateFor(mt, userID))
	if err != nil {
		// Activity is recorded and dedup stands: a redelivery would be a
		// duplicate anyway, and the next event re-evaluates the predicate.
		log.Error().Err(err).Int64("user_id", userID).Str("mission_type", string(mt)).
			Msg("completion check failed; next event will re-evaluate")
		return ResultOk
	}
	if won {
		metrics.MissionCompleted(string(mt))
		rt.publishCompleted(ctx, userID, mt)
	}
	return ResultOk
}

// publishCompleted cascades the completion synchronously; a failed send is
// buffered in the outbox. The mission row stays completed either way.
func (rt *Router) publishCompleted(ctx context.Context, userID int64, mt domain.MissionType) {
	ev := event.MissionCompletedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		MissionType: string(mt),
		CompletedAt: time.Now().UTC(),
	}

	if err := rt.pub.PublishSync(ctx, event.TopicMissionCompleted, ev.EventID, ev); err != nil {
		logger.WithCtx(ctx).Error().Err(err).
			Int64("user_id", userID).
			Str("mission_type", string(mt)).
			Msg("completed-event publish failed; saving to outbox")

		body, merr := json.Marshal(ev)
		if merr != nil {
			logger.WithCtx(ctx).Error().Err(merr).Msg("completed-event encode failed")
			return
		}
		if oerr := rt.outbox.Enqueue(ctx, ev.EventID, event.TopicMissionCompleted,
			event.TypeMissionCompleted, body, err.Error()); oerr != nil {
			logger.WithCtx(ctx).Error().Err(oerr).
				Str("event_id", ev.EventID).
				Msg("outbox enqueue failed; reward check deferred to next event")
		}
	}
}

func (rt *Router) HandleLogin(ctx context.Context, ev event.LoginEvent) Result {
	return rt.ingress(ctx, dedupLoginPrefix, ev.EventID, ev.UserID, domain.MissionLogin,
		func(ctx context.Context) error {
			date := ev.LoginDate
			if date.IsZero() {
				date = time.Now()
			}
			_, err := rt.store.InsertLoginDay(ctx, ev.UserID, domain.Normalize(date))
			return err
		})
}

func (rt *Router) HandleGameLaunch(ctx context.Context, ev event.GameLaunchEvent) Result {
	return rt.ingress(ctx, dedupLaunchPrefix, ev.EventID, ev.UserID, domain.MissionLaunch,
		func(ctx context.Context) error {
			date := ev.LaunchTime
			if date.IsZero() {
				date = time.Now()
			}
			_, err := rt.store.InsertGameLaunch(ctx, ev.UserID, ev.GameID, domain.Normalize(date))
			return err
		})
}

func (rt *Router) HandleGamePlay(ctx context.Context, ev event.GamePlayEvent) Result {
	return rt.ingress(ctx, dedupPlayPrefix, ev.EventID, ev.UserID, domain.MissionPlay,
		func(ctx context.Context) error {
			playedAt := ev.PlayTime
			if playedAt.IsZero() {
				playedAt = time.Now()
			}
			_, err := rt.store.InsertPlaySession(ctx, domain.PlaySession{
				EventID:  ev.EventID,
				UserID:   ev.UserID,
				GameID:   ev.GameID,
				Score:    ev.Score,
				PlayedAt: playedAt,
			})
			return err
		})
}

// HandleMissionCompleted runs the reward check. It always acks: a lost reward
// opportunity here is recovered by the next ingress event, and requeueing a
// poisoned cascade would loop forever.
func (rt *Router) HandleMissionCompleted(ctx context.Context, ev event.MissionCompletedEvent) Result {
	log := logger.WithCtx(ctx)

	if ev.EventID != "" {
		fresh, err := rt.keeper.MarkProcessed(ctx, dedupCompletedPrefix+ev.EventID, dedupTTL)
		if err != nil {
			log.Error().Err(err).Msg("dedup check failed; proceeding (reward insert is idempotent)")
		} else if !fresh {
			return ResultDuplicate
		}
	}

	awarded, err := rt.rewards.Distribute(ctx, ev.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", ev.UserID).Msg("reward distribution failed")
		return ResultOk
	}
	if awarded {
		metrics.RewardDistributed()
	}
	return ResultOk
}
