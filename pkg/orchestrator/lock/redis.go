package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// deleteScript and expireScript compare the stored token before mutating so a
// worker whose lease expired cannot touch a lock re-granted to someone else.
var (
	deleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	expireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisBackend implements Backend over SET NX PX.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, token, ttl).Result()
}

func (b *RedisBackend) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	n, err := deleteScript.Run(ctx, b.client, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *RedisBackend) ExpireIfToken(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := expireScript.Run(ctx, b.client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
