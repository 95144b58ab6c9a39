package domain

import (
	"errors"
	"time"
)

// MissionType is the closed set of missions every user cycle carries.
type MissionType string

const (
	MissionLogin  MissionType = "LOGIN-3-CONSECUTIVE"
	MissionLaunch MissionType = "LAUNCH-3-DISTINCT"
	MissionPlay   MissionType = "PLAY-3-SESSIONS-SCORE-OVER-1000"
)

// AllMissionTypes is the fixed set inserted at cycle start.
var AllMissionTypes = []MissionType{MissionLogin, MissionLaunch, MissionPlay}

const (
	// CycleWindow is the rolling lookback that defines the active cycle.
	CycleWindow = 30 * 24 * time.Hour

	RewardTypeMissionCompletion = "MISSION_COMPLETION"
	RewardPoints                = 777

	// PeriodLayout keys reward idempotency per calendar month.
	PeriodLayout = "2006-01"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrGameNotFound       = errors.New("game not found")
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrMissionNotFound = errors.New("mission not found in active cycle")
	ErrInitTimeout     = errors.New("timeout waiting for mission initialization")

	// ErrPointsNotApplied means the reward guard row was inserted but the user
	// points update matched no row. The surrounding tx must abort.
	ErrPointsNotApplied = errors.New("reward inserted but user points update affected no rows")

	ErrCacheMiss = errors.New("cache miss")
)

type User struct {
	ID        int64
	Username  string
	Password  string
	Points    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Game struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Mission is one of the three per-cycle rows. It transitions exactly once,
// from incomplete to completed, via a conditional update.
type Mission struct {
	ID             int64
	UserID         int64
	Type           MissionType
	CycleStartDate time.Time // date-only, midnight
	IsCompleted    bool
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// LoginRecord is unique per (user, date).
type LoginRecord struct {
	UserID    int64
	LoginDate time.Time // date-only, midnight
}

// GameLaunch is unique per (user, game, launch date).
type GameLaunch struct {
	UserID     int64
	GameID     int64
	LaunchDate time.Time // date-only, midnight
}

// PlaySession is unique per event id so redelivery never double-counts.
type PlaySession struct {
	EventID  string
	UserID   int64
	GameID   int64
	Score    int
	PlayedAt time.Time
}

// PlayStats aggregates sessions inside the cycle window.
type PlayStats struct {
	Count      int64
	TotalScore int64
}

// Reward is unique per (user, reward type, period).
type Reward struct {
	ID            int64
	UserID        int64
	RewardType    string
	RewardPeriod  string // YYYY-MM
	Points        int
	DistributedAt time.Time
}

// Normalize truncates t to midnight in its own location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CycleSince returns the lower bound of the active cycle window at now.
func CycleSince(now time.Time) time.Time {
	return now.Add(-CycleWindow)
}

// Period formats now as the reward idempotency period.
func Period(now time.Time) string {
	return now.Format(PeriodLayout)
}
