package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/pkg/logger"
)

// Predicate is a read-only completion check over event-store state.
type Predicate func(ctx context.Context) (bool, error)

// Service evaluates mission predicates and owns the single completion
// transition. Reads that fail report "not completed"; they never complete a
// mission by default.
type Service struct {
	store Store
	cache ProgressCache
	clock Clock

	progressTTL time.Duration
}

func NewService(store Store, cache ProgressCache, clock Clock, progressTTL time.Duration) *Service {
	if clock == nil {
		clock = SystemClock
	}
	if progressTTL == 0 {
		progressTTL = 5 * time.Minute
	}
	return &Service{store: store, cache: cache, clock: clock, progressTTL: progressTTL}
}

// Progress returns the user's missions in the active cycle, read-through
// cached.
func (s *Service) Progress(ctx context.Context, userID int64) ([]domain.Mission, error) {
	if s.cache != nil {
		if missions, err := s.cache.GetProgress(ctx, userID); err == nil {
			return missions, nil
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			logger.WithCtx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("progress cache read failed")
		}
	}

	since := domain.CycleSince(s.clock.Now())
	missions, err := s.store.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("fetch mission progress: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetProgress(ctx, userID, missions, s.progressTTL); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("progress cache write failed")
		}
	}
	return missions, nil
}

// ConsecutiveLoginDays counts back from the most recent login inside the
// window. The chain anchors at the latest login, not at today.
func (s *Service) ConsecutiveLoginDays(ctx context.Context, userID int64) int {
	since := domain.CycleSince(s.clock.Now())
	days, err := s.store.LoginDaysInWindow(ctx, userID, since)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).Int64("user_id", userID).Msg("login days query failed")
		return 0
	}
	if len(days) == 0 {
		return 0
	}

	consecutive := 0
	expected := domain.Normalize(days[0])
	for _, d := range days {
		d = domain.Normalize(d)
		if d.Equal(expected) {
			consecutive++
			expected = expected.AddDate(0, 0, -1)
		} else if d.Before(expected) {
			break // gap
		}
	}
	return consecutive
}

func (s *Service) LoginMissionCompleted(ctx context.Context, userID int64) (bool, error) {
	return s.ConsecutiveLoginDays(ctx, userID) >= 3, nil
}

func (s *Service) LaunchMissionCompleted(ctx context.Context, userID int64) (bool, error) {
	since := domain.CycleSince(s.clock.Now())
	distinct, err := s.store.CountDistinctLaunches(ctx, userID, since)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).Int64("user_id", userID).Msg("launch count query failed")
		return false, nil
	}
	return distinct >= 3, nil
}

// PlayMissionCompleted requires at least 3 sessions and a sum strictly over
// 1000 inside the window.
func (s *Service) PlayMissionCompleted(ctx context.Context, userID int64) (bool, error) {
	since := domain.CycleSince(s.clock.Now())
	stats, err := s.store.PlayStatsInWindow(ctx, userID, since)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).Int64("user_id", userID).Msg("play stats query failed")
		return false, nil
	}
	return stats.Count >= 3 && stats.TotalScore > 1000, nil
}

// LaunchProgress and PlayProgress back the progress endpoint's detail fields.
func (s *Service) LaunchProgress(ctx context.Context, userID int64) int64 {
	since := domain.CycleSince(s.clock.Now())
	distinct, err := s.store.CountDistinctLaunches(ctx, userID, since)
	if err != nil {
		return 0
	}
	return distinct
}

func (s *Service) PlayProgress(ctx context.Context, userID int64) domain.PlayStats {
	since := domain.CycleSince(s.clock.Now())
	stats, err := s.store.PlayStatsInWindow(ctx, userID, since)
	if err != nil {
		return domain.PlayStats{}
	}
	return stats
}

// AllMissionsCompleted reports whether the active cycle holds at least three
// completed missions.
func (s *Service) AllMissionsCompleted(ctx context.Context, userID int64) (bool, error) {
	since := domain.CycleSince(s.clock.Now())
	completed, err := s.store.CountCompletedInCycle(ctx, userID, since)
	if err != nil {
		return false, fmt.Errorf("count completed missions: %w", err)
	}
	return completed >= 3, nil
}

// PredicateFor maps a mission type to its evaluator.
func (s *Service) PredicateFor(mt domain.MissionType, userID int64) Predicate {
	switch mt {
	case domain.MissionLogin:
		return func(ctx context.Context) (bool, error) { return s.LoginMissionCompleted(ctx, userID) }
	case domain.MissionLaunch:
		return func(ctx context.Context) (bool, error) { return s.LaunchMissionCompleted(ctx, userID) }
	default:
		return func(ctx context.Context) (bool, error) { return s.PlayMissionCompleted(ctx, userID) }
	}
}

// CheckAndComplete runs the completion engine for one mission. The
// conditional update is the single linearization point: concurrent callers
// may both pass the predicate, but only one flips the row.
func (s *Service) CheckAndComplete(ctx context.Context, userID int64, mt domain.MissionType, pred Predicate) (bool, error) {
	now := s.clock.Now()
	since := domain.CycleSince(now)

	missions, err := s.store.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return false, fmt.Errorf("load missions: %w", err)
	}

	// A consumed cycle can leave two rows of the same type inside the window;
	// the newest cycle is the one being played.
	var target *domain.Mission
	for idx := range missions {
		m := &missions[idx]
		if m.Type != mt {
			continue
		}
		if target == nil || m.CycleStartDate.After(target.CycleStartDate) {
			target = m
		}
	}
	if target == nil {
		logger.WithCtx(ctx).Warn().
			Int64("user_id", userID).
			Str("mission_type", string(mt)).
			Msg("mission not found in active cycle")
		return false, nil
	}
	if target.IsCompleted {
		return false, nil
	}

	done, err := pred(ctx)
	if err != nil {
		return false, fmt.Errorf("evaluate %s: %w", mt, err)
	}
	if !done {
		return false, nil
	}

	won, err := s.store.CompleteMission(ctx, target.ID, now)
	if err != nil {
		return false, fmt.Errorf("complete mission: %w", err)
	}
	if !won {
		// Another worker transitioned it first.
		return false, nil
	}

	if s.cache != nil {
		if err := s.cache.EvictProgress(ctx, userID); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("progress cache evict failed")
		}
	}

	logger.WithCtx(ctx).Info().
		Int64("user_id", userID).
		Str("mission_type", string(mt)).
		Msg("mission completed")
	return true, nil
}
