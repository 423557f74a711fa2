package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using a single Redis sorted set:
//
//	<prefix>queue => ZSET of gob-encoded Task values scored by NotBefore (unix ms)
//
// Tasks become eligible once their score is not after the current time.
// Tasks sharing a millisecond are not ordered relative to each other.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// claimScript pops the first member whose score is <= ARGV[1].
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
redis.call('ZREM', KEYS[1], due[1])
return due[1]
`)

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "flux:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "flux:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "queue",
		pollInterval: 20 * time.Millisecond,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(notBefore.UnixMilli()),
		Member: data,
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		res, err := claimScript.Run(ctx, q.client, []string{q.key}, now).Text()
		switch {
		case err == nil:
			return DecodeTask([]byte(res))
		case !errors.Is(err, redis.Nil):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis dequeue: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// Len returns the number of queued tasks (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		// For a Len() helper, it's better to log and return 0 than panic.
		slog.Warn("redis queue length failed", slog.String("key", q.key), slog.Any("error", err))
		return 0
	}
	return int(n)
}
