package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"roundtable/internal/redis"
)

const (
	redisLockPrefix = "roundtable:generating:"
	redisLockTTL    = 2 * time.Minute
)

// tableLock coordinates generation across server processes sharing a redis.
type tableLock struct {
	client *redis.Client
	ttl    time.Duration
}

func newTableLock(client *redis.Client) *tableLock {
	if client == nil {
		return nil
	}
	return &tableLock{client: client, ttl: redisLockTTL}
}

// acquire returns the lock token, or "" when another process holds the table.
func (l *tableLock) acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisLockPrefix+key, token, l.ttl)
	if err != nil {
		return "", errors.Wrap(err, "acquire table lock")
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// release drops the lock if token still owns it; an expired lock taken over
// by someone else is left alone.
func (l *tableLock) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := l.client.DeleteIfEquals(ctx, redisLockPrefix+key, token); err != nil {
		return errors.Wrap(err, "release table lock")
	}
	return nil
}
