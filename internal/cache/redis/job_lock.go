package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

//go:embed scripts/release_lock.lua
var releaseLockLua string

// JobLock implements domain.JobLock with SET NX leases that expire after
// their TTL, so a crashed holder never blocks the job for good.
type JobLock struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewJobLock creates a JobLock backed by the given Client.
func NewJobLock(c *Client) *JobLock {
	return &JobLock{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLockLua),
	}
}

func jobLockKey(key string) string {
	return "joblock:" + key
}

// Acquire takes the lease for key. It returns domain.ErrLockHeld when another
// instance holds it.
func (l *JobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := jobLockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire job lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx is often already cancelled at release time.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.release.Run(rctx, l.rdb, []string{lk}, token).Err()
		})
	}, nil
}

var _ domain.JobLock = (*JobLock)(nil)
