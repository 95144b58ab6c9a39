package mission

import (
	"context"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

type Clock interface {
	Now() time.Time
}

// Store is the event-store capability set the pipeline composes over.
// Postgres implements it for real; the memory package implements it for tests.
// Every insert is insert-if-absent on the table's unique key and reports
// whether a row was created.
type Store interface {
	// Missions
	MissionsInCycle(ctx context.Context, userID int64, since time.Time) ([]domain.Mission, error)
	CountMissionsInCycle(ctx context.Context, userID int64, since time.Time) (int64, error)
	CountCompletedInCycle(ctx context.Context, userID int64, since time.Time) (int64, error)
	InsertMission(ctx context.Context, userID int64, mt domain.MissionType, cycleStart time.Time) (bool, error)
	// CompleteMission flips is_completed under "WHERE is_completed = false".
	// Exactly one concurrent caller observes true.
	CompleteMission(ctx context.Context, missionID int64, at time.Time) (bool, error)

	// Activity records
	InsertLoginDay(ctx context.Context, userID int64, date time.Time) (bool, error)
	LoginDaysInWindow(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) // newest first
	InsertGameLaunch(ctx context.Context, userID, gameID int64, date time.Time) (bool, error)
	CountDistinctLaunches(ctx context.Context, userID int64, since time.Time) (int64, error)
	InsertPlaySession(ctx context.Context, s domain.PlaySession) (bool, error)
	PlayStatsInWindow(ctx context.Context, userID int64, since time.Time) (domain.PlayStats, error)

	// Rewards. DistributeReward runs insert-if-absent on
	// (user, reward type, period) and the points increment in one transaction.
	DistributeReward(ctx context.Context, userID int64, rewardType, period string, points int, at time.Time) (bool, error)
	RewardsByUser(ctx context.Context, userID int64) ([]domain.Reward, error)
}

// Keeper is the short-TTL key/value service used for dedup and the init lock.
type Keeper interface {
	// MarkProcessed is set-if-absent. true means first processing.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ReleaseProcessed removes the key so the bus redelivery re-attempts.
	ReleaseProcessed(ctx context.Context, key string) error

	// TryLock / Unlock: non-reentrant, not owner-verified. Safe because every
	// hold is shorter than the TTL and the guarded section is also protected
	// by unique-key constraints.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ProgressCache caches the active-cycle mission rows per user.
type ProgressCache interface {
	GetProgress(ctx context.Context, userID int64) ([]domain.Mission, error) // domain.ErrCacheMiss when absent
	SetProgress(ctx context.Context, userID int64, missions []domain.Mission, ttl time.Duration) error
	EvictProgress(ctx context.Context, userID int64) error
}

// Publisher sends the mission-completed cascade event. PublishSync surfaces
// the send error so the caller can fall back to the outbox.
type Publisher interface {
	PublishSync(ctx context.Context, topic, eventID string, payload any) error
}

// OutboxEnqueuer persists a payload whose publish failed.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, eventID, topic, eventType string, payload []byte, lastError string) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock.
var SystemClock Clock = realClock{}
