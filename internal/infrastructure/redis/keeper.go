package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Keeper backs the idempotency keys, the mission init lock, and the progress
// cache with a single redis client.
type Keeper struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Keeper {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Keeper{Client: rdb}
}

// MarkProcessed is SETNX with TTL. true means this call created the key and
// the event is fresh; false means duplicate delivery.
func (k *Keeper) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return k.Client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseProcessed removes a dedup key after a downstream failure so the
// redelivered message is re-attempted instead of silently dropped.
func (k *Keeper) ReleaseProcessed(ctx context.Context, key string) error {
	return k.Client.Del(ctx, key).Err()
}

func (k *Keeper) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return k.Client.SetNX(ctx, key, "1", ttl).Result()
}

func (k *Keeper) Unlock(ctx context.Context, key string) error {
	return k.Client.Del(ctx, key).Err()
}

// --- mission progress cache ---

func progressKey(userID int64) string {
	return fmt.Sprintf("missionProgress::%d", userID)
}

func (k *Keeper) GetProgress(ctx context.Context, userID int64) ([]domain.Mission, error) {
	raw, err := k.Client.Get(ctx, progressKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}

	var missions []domain.Mission
	if err := json.Unmarshal(raw, &missions); err != nil {
		// Poisoned entry: treat as a miss so the DB read repairs it.
		_ = k.Client.Del(ctx, progressKey(userID)).Err()
		return nil, domain.ErrCacheMiss
	}
	return missions, nil
}

func (k *Keeper) SetProgress(ctx context.Context, userID int64, missions []domain.Mission, ttl time.Duration) error {
	raw, err := json.Marshal(missions)
	if err != nil {
		return err
	}
	return k.Client.Set(ctx, progressKey(userID), raw, ttl).Err()
}

func (k *Keeper) EvictProgress(ctx context.Context, userID int64) error {
	return k.Client.Del(ctx, progressKey(userID)).Err()
}
