package memory

import (
	"context"
	"sync"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

// Keeper is the in-memory stand-in for the redis keeper: dedup keys, init
// lock, progress cache. TTLs are honored lazily on read.
type Keeper struct {
	mu    sync.Mutex
	keys  map[string]time.Time // key -> expiry
	cache map[int64][]domain.Mission
	nowFn func() time.Time

	// Err, when set, fails every keeper call.
	Err error
}

func NewKeeper() *Keeper {
	return &Keeper{
		keys:  make(map[string]time.Time),
		cache: make(map[int64][]domain.Mission),
		nowFn: time.Now,
	}
}

func (k *Keeper) setIfAbsent(key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Err != nil {
		return false, k.Err
	}
	now := k.nowFn()
	if exp, ok := k.keys[key]; ok && exp.After(now) {
		return false, nil
	}
	k.keys[key] = now.Add(ttl)
	return true, nil
}

func (k *Keeper) delete(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Err != nil {
		return k.Err
	}
	delete(k.keys, key)
	return nil
}

// Has reports whether key is live, for assertions.
func (k *Keeper) Has(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	exp, ok := k.keys[key]
	return ok && exp.After(k.nowFn())
}

func (k *Keeper) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return k.setIfAbsent(key, ttl)
}

func (k *Keeper) ReleaseProcessed(_ context.Context, key string) error {
	return k.delete(key)
}

func (k *Keeper) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return k.setIfAbsent(key, ttl)
}

func (k *Keeper) Unlock(_ context.Context, key string) error {
	return k.delete(key)
}

func (k *Keeper) GetProgress(_ context.Context, userID int64) ([]domain.Mission, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Err != nil {
		return nil, k.Err
	}
	missions, ok := k.cache[userID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return missions, nil
}

func (k *Keeper) SetProgress(_ context.Context, userID int64, missions []domain.Mission, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Err != nil {
		return k.Err
	}
	k.cache[userID] = missions
	return nil
}

func (k *Keeper) EvictProgress(_ context.Context, userID int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Err != nil {
		return k.Err
	}
	delete(k.cache, userID)
	return nil
}
