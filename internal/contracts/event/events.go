package event

import "time"

// Topic names double as routing keys on the mission topic exchange.
// Each has exactly one consumer queue bound to it.
const (
	TopicLogin            = "mission-login-event"
	TopicGameLaunch       = "mission-game-launch-event"
	TopicGamePlay         = "mission-game-play-event"
	TopicMissionCompleted = "mission-completed-event"
)

// Event types recorded on outbox rows.
const (
	TypeLogin            = "LOGIN"
	TypeGameLaunch       = "GAME_LAUNCH"
	TypeGamePlay         = "GAME_PLAY"
	TypeMissionCompleted = "MISSION_COMPLETED"
)

// LoginEvent marks one calendar day of user activity.
// LoginDate is date-only; consumers normalize to midnight.
type LoginEvent struct {
	EventID   string    `json:"event_id"`
	UserID    int64     `json:"user_id"`
	LoginDate time.Time `json:"login_date"`
}

type GameLaunchEvent struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	GameID     int64     `json:"game_id"`
	LaunchTime time.Time `json:"launch_time"`
}

type GamePlayEvent struct {
	EventID  string    `json:"event_id"`
	UserID   int64     `json:"user_id"`
	GameID   int64     `json:"game_id"`
	Score    int       `json:"score"`
	PlayTime time.Time `json:"play_time"`
}

// MissionCompletedEvent is the internal cascade event. Its publish is
// synchronous; a failed send lands in the outbox.
type MissionCompletedEvent struct {
	EventID     string    `json:"event_id"`
	UserID      int64     `json:"user_id"`
	MissionType string    `json:"mission_type"`
	CompletedAt time.Time `json:"completed_at"`
}
