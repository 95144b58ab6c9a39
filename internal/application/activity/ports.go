package activity

import (
	"context"

	"github.com/herverfred/mission-center/internal/domain"
)

// Store covers the synchronous read paths the HTTP layer needs before an
// event is published.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindUserByID(ctx context.Context, id int64) (*domain.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	GameExists(ctx context.Context, id int64) (bool, error)
	ListGames(ctx context.Context) ([]domain.Game, error)
}

// AsyncPublisher is fire-and-queue: the send result is observed on a
// callback; failures are handed to the outbox by the adapter, never surfaced
// to the caller.
type AsyncPublisher interface {
	PublishAsync(ctx context.Context, topic, eventType, eventID string, payload any)
}
