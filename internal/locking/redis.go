package locking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultLockTTL   = 10 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// RedisLocker is a FirmLocker backed by Redis SET NX with fenced release,
// for deployments where several replicas share the charge tables.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    defaultLockTTL,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, firmID string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if firmID == "" {
		return nil, errors.New("lock key is empty")
	}

	key := "firmbill:proposal_lock:" + firmID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}

	release := func() {
		_ = l.script.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, nil
}
