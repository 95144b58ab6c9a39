package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/pkg/logger"
)

const (
	initLockPrefix = "mission:init:"
	initLockTTL    = 10 * time.Second
)

// Initializer guarantees the three missions exist for a user's active cycle.
// The insert path is guarded twice: a redis lock keeps concurrent consumers
// from racing the insert, and the (user, type, cycle_start) unique key makes
// the insert itself idempotent even if the lock expires mid-flight.
type Initializer struct {
	store  Store
	keeper Keeper
	clock  Clock

	// Waiter knobs, overridable in tests. Defaults: 50 polls x 100ms.
	PollEvery time.Duration
	PollMax   int
}

func NewInitializer(store Store, keeper Keeper, clock Clock) *Initializer {
	if clock == nil {
		clock = SystemClock
	}
	return &Initializer{
		store:     store,
		keeper:    keeper,
		clock:     clock,
		PollEvery: 100 * time.Millisecond,
		PollMax:   50,
	}
}

// EnsureMissions is called on every ingress event. A cycle whose three
// missions are all completed counts as consumed: a fresh set is inserted so
// progress can accumulate toward the next reward.
func (i *Initializer) EnsureMissions(ctx context.Context, userID int64) error {
	now := i.clock.Now()
	since := domain.CycleSince(now)

	missions, err := i.store.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("query missions: %w", err)
	}

	if len(missions) >= 3 {
		completed := 0
		for _, m := range missions {
			if m.IsCompleted {
				completed++
			}
		}
		if completed < len(missions) {
			// Active cycle with incomplete missions stands.
			return nil
		}
		// All completed: fall through and start a fresh cycle.
	}

	lockKey := initLockPrefix + fmt.Sprint(userID)
	locked, err := i.keeper.TryLock(ctx, lockKey, initLockTTL)
	if err != nil {
		return fmt.Errorf("init lock: %w", err)
	}
	if !locked {
		return i.waitForInit(ctx, userID, since)
	}
	defer func() {
		// Insert commits before this runs, so waiters observe the rows.
		if err := i.keeper.Unlock(ctx, lockKey); err != nil {
			logger.Logger.Warn().Err(err).Str("lock", lockKey).Msg("init lock release failed")
		}
	}()

	// Double-checked: another holder may have finished between our first
	// query and the lock grant.
	recheck, err := i.store.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("recheck missions: %w", err)
	}
	if len(recheck) >= 3 && !allConsumed(recheck) {
		return nil
	}

	cycleStart := domain.Normalize(now)
	for _, mt := range domain.AllMissionTypes {
		if _, err := i.store.InsertMission(ctx, userID, mt, cycleStart); err != nil {
			return fmt.Errorf("insert mission %s: %w", mt, err)
		}
	}

	logger.Logger.Info().
		Int64("user_id", userID).
		Time("cycle_start", cycleStart).
		Msg("missions initialized")
	return nil
}

func allConsumed(missions []domain.Mission) bool {
	if len(missions) < 3 {
		return false
	}
	for _, m := range missions {
		if !m.IsCompleted {
			return false
		}
	}
	return true
}

// waitForInit polls until the lock holder's rows become visible. On timeout
// it returns domain.ErrInitTimeout, which consumers map to a redelivery.
func (i *Initializer) waitForInit(ctx context.Context, userID int64, since time.Time) error {
	for n := 0; n < i.PollMax; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.PollEvery):
		}

		count, err := i.store.CountMissionsInCycle(ctx, userID, since)
		if err != nil {
			return fmt.Errorf("poll missions: %w", err)
		}
		if count >= 3 {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d", domain.ErrInitTimeout, userID)
}
