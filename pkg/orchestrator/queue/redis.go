package queue

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Score-checked mutations run as Lua so a concurrent reschedule cannot be
// clobbered between the read and the write.
var (
	claimScript = redis.NewScript(`
		if redis.call("ZSCORE", KEYS[1], ARGV[1]) == ARGV[2] then
			redis.call("ZADD", KEYS[1], ARGV[3], ARGV[1])
			return 1
		end
		return 0
	`)

	remIfScoreScript = redis.NewScript(`
		if redis.call("ZSCORE", KEYS[1], ARGV[1]) == ARGV[2] then
			return redis.call("ZREM", KEYS[1], ARGV[1])
		end
		return 0
	`)
)

// RedisBackend implements Backend over a sorted set of due times plus one
// hash per job.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) ZAddNX(ctx context.Context, key, member string, score float64) (bool, error) {
	added, err := b.client.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (b *RedisBackend) ZAdd(ctx context.Context, key, member string, score float64) error {
	return b.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (b *RedisBackend) ZFirstDue(ctx context.Context, key string, max float64) (string, float64, bool, error) {
	members, err := b.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(max, 'f', -1, 64),
		Count: 1,
	}).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(members) == 0 {
		return "", 0, false, nil
	}
	member, _ := members[0].Member.(string)
	return member, members[0].Score, true, nil
}

func (b *RedisBackend) ZClaim(ctx context.Context, key, member string, oldScore, newScore float64) (bool, error) {
	res, err := claimScript.Run(ctx, b.client, []string{key},
		member, formatScore(oldScore), formatScore(newScore)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (b *RedisBackend) ZRemIfScore(ctx context.Context, key, member string, score float64) (bool, error) {
	res, err := remIfScoreScript.Run(ctx, b.client, []string{key},
		member, formatScore(score)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// formatScore matches the representation ZSCORE returns for millisecond
// timestamps, so the Lua string comparison holds.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func (b *RedisBackend) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	return b.client.HSet(ctx, key, fields).Err()
}

func (b *RedisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.client.HGetAll(ctx, key).Result()
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}
