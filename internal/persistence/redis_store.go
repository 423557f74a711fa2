package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flux/pkg/api"
)

// allStatuses is used to keep the status indexes consistent on update.
var allStatuses = []api.Status{
	api.StatusPending,
	api.StatusRunning,
	api.StatusPaused,
	api.StatusSuspended,
	api.StatusCompleted,
	api.StatusFailed,
	api.StatusRolledBack,
}

// RedisStore is a Store backed by Redis.
// It uses a simple key structure:
//
//	<prefix>state:<id>            => gob-encoded WorkflowState
//	<prefix>idx:all               => ZSET of all IDs scored by creation time
//	<prefix>idx:name:<workflow>   => ZSET of IDs for a given workflow name
//	<prefix>idx:status:<status>   => ZSET of IDs for a given status
//
// Payload and indexes are written in one MULTI/EXEC transaction, so a Save
// is atomic. List reads the narrowest index and re-checks every decoded
// payload against the filter.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ Store       = (*RedisStore)(nil)
	_ Initializer = (*RedisStore)(nil)
)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "flux:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "flux:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyState(id string) string {
	return s.prefix + "state:" + id
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyName(name string) string {
	return s.prefix + "idx:name:" + name
}

func (s *RedisStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

// Init verifies connectivity.
func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Save(ctx context.Context, state *api.WorkflowState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	member := redis.Z{
		Score:  float64(state.CreatedAt.UnixNano()),
		Member: state.ID,
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyState(state.ID), data, 0)
	pipe.ZAdd(ctx, s.keyAll(), member)
	pipe.ZAdd(ctx, s.keyName(state.Name), member)
	for _, st := range allStatuses {
		if st != state.Status {
			pipe.ZRem(ctx, s.keyStatus(st), state.ID)
		}
	}
	pipe.ZAdd(ctx, s.keyStatus(state.Status), member)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Load(ctx context.Context, id string) (*api.WorkflowState, error) {
	data, err := s.client.Get(ctx, s.keyState(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return DecodeState(data)
}

func (s *RedisStore) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	key := s.keyAll()
	switch {
	case filter.Status != "":
		key = s.keyStatus(filter.Status)
	case filter.Name != "":
		key = s.keyName(filter.Name)
	}

	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.WorkflowState{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.WorkflowState{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyState(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	states := make([]*api.WorkflowState, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		state, err := DecodeState(data)
		if err != nil {
			return nil, err
		}
		if matches(state, filter) {
			states = append(states, state)
		}
	}

	return page(states, filter), nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	state, err := s.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyState(id))
	pipe.ZRem(ctx, s.keyAll(), id)
	pipe.ZRem(ctx, s.keyName(state.Name), id)
	for _, st := range allStatuses {
		pipe.ZRem(ctx, s.keyStatus(st), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}
