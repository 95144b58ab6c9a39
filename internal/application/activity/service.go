package activity

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/contracts/event"
	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/pkg/logger"
	"github.com/google/uuid"
)

// MaxScore bounds the server-generated play score, inclusive.
const MaxScore = 1000

// Service is the synchronous ingress side: validate, publish, return. All
// mission bookkeeping happens in the consumers.
type Service struct {
	store Store
	pub   AsyncPublisher
	clock mission.Clock

	// scoreFn exists so tests can pin the generated score.
	scoreFn func() int
}

func NewService(store Store, pub AsyncPublisher, clock mission.Clock) *Service {
	if clock == nil {
		clock = mission.SystemClock
	}
	return &Service{
		store:   store,
		pub:     pub,
		clock:   clock,
		scoreFn: func() int { return rand.Intn(MaxScore + 1) },
	}
}

// Login authenticates by password equality and publishes the login event.
// loginDate nil means today.
func (s *Service) Login(ctx context.Context, username, password string, loginDate *time.Time) (*domain.User, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || password == "" || password != user.Password {
		return nil, domain.ErrInvalidCredentials
	}

	date := domain.Normalize(s.clock.Now())
	if loginDate != nil {
		date = domain.Normalize(*loginDate)
	}

	ev := event.LoginEvent{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		LoginDate: date,
	}
	s.pub.PublishAsync(ctx, event.TopicLogin, event.TypeLogin, ev.EventID, ev)

	logger.WithCtx(ctx).Info().
		Int64("user_id", user.ID).
		Time("login_date", date).
		Msg("login event published")
	return user, nil
}

// Launch validates the pair and publishes the launch event.
func (s *Service) Launch(ctx context.Context, userID, gameID int64) error {
	if err := s.checkUserAndGame(ctx, userID, gameID); err != nil {
		return err
	}

	ev := event.GameLaunchEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		GameID:     gameID,
		LaunchTime: s.clock.Now(),
	}
	s.pub.PublishAsync(ctx, event.TopicGameLaunch, event.TypeGameLaunch, ev.EventID, ev)

	logger.WithCtx(ctx).Info().
		Int64("user_id", userID).
		Int64("game_id", gameID).
		Msg("game launch event published")
	return nil
}

// Play generates the score server-side, publishes the play event, and echoes
// the score back. Persistence happens only via the event.
func (s *Service) Play(ctx context.Context, userID, gameID int64) (int, error) {
	if err := s.checkUserAndGame(ctx, userID, gameID); err != nil {
		return 0, err
	}

	score := s.scoreFn()
	ev := event.GamePlayEvent{
		EventID:  uuid.NewString(),
		UserID:   userID,
		GameID:   gameID,
		Score:    score,
		PlayTime: s.clock.Now(),
	}
	s.pub.PublishAsync(ctx, event.TopicGamePlay, event.TypeGamePlay, ev.EventID, ev)

	logger.WithCtx(ctx).Info().
		Int64("user_id", userID).
		Int64("game_id", gameID).
		Int("score", score).
		Msg("game play event published")
	return score, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) ListGames(ctx context.Context) ([]domain.Game, error) {
	return s.store.ListGames(ctx)
}

func (s *Service) checkUserAndGame(ctx context.Context, userID, gameID int64) error {
	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if !ok {
		return domain.ErrUserNotFound
	}

	ok, err = s.store.GameExists(ctx, gameID)
	if err != nil {
		return fmt.Errorf("game lookup: %w", err)
	}
	if !ok {
		return domain.ErrGameNotFound
	}
	return nil
}
