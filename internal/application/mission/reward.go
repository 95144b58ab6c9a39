package mission

import (
	"context"
	"fmt"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/pkg/logger"
)

// Distributor awards the fixed cycle reward at most once per calendar period.
// The (user, reward type, period) unique key is the sole idempotency guard.
type Distributor struct {
	store   Store
	service *Service
	clock   Clock
}

func NewDistributor(store Store, service *Service, clock Clock) *Distributor {
	if clock == nil {
		clock = SystemClock
	}
	return &Distributor{store: store, service: service, clock: clock}
}

// Distribute awards 777 points if all three missions in the active cycle are
// completed and the user was not already rewarded this period. Returns true
// only when this call created the reward.
func (d *Distributor) Distribute(ctx context.Context, userID int64) (bool, error) {
	all, err := d.service.AllMissionsCompleted(ctx, userID)
	if err != nil {
		return false, err
	}
	if !all {
		return false, nil
	}

	now := d.clock.Now()
	period := domain.Period(now)

	inserted, err := d.store.DistributeReward(ctx, userID,
		domain.RewardTypeMissionCompletion, period, domain.RewardPoints, now)
	if err != nil {
		return false, fmt.Errorf("distribute reward: %w", err)
	}
	if !inserted {
		logger.WithCtx(ctx).Info().
			Int64("user_id", userID).
			Str("period", period).
			Msg("reward already distributed this period")
		return false, nil
	}

	logger.WithCtx(ctx).Info().
		Int64("user_id", userID).
		Str("period", period).
		Int("points", domain.RewardPoints).
		Msg("reward distributed")
	return true, nil
}

// History returns the user's rewards, newest first.
func (d *Distributor) History(ctx context.Context, userID int64) ([]domain.Reward, error) {
	return d.store.RewardsByUser(ctx, userID)
}
