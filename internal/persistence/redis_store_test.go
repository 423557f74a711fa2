package persistence

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flux/pkg/api"
)

const redisTestPrefix = "flux:test:"

func TestRedisStoreSuite(t *testing.T) {
	s := &StoreSuite{}
	s.newStore = func() Store {
		mr := miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s.T().Cleanup(func() { _ = client.Close() })

		store := NewRedisStore(client, redisTestPrefix)
		require.NoError(s.T(), store.Init(s.T().Context()))
		return store
	}
	suite.Run(t, s)
}

func TestRedisStore_KeysUsePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, redisTestPrefix)
	st := &api.WorkflowState{ID: "wf-1", Name: "orders", Status: api.StatusRunning, Data: map[string]any{}}
	require.NoError(t, store.Save(t.Context(), st))

	require.True(t, mr.Exists(redisTestPrefix+"state:wf-1"))
	members, err := mr.ZMembers(redisTestPrefix + "idx:status:running")
	require.NoError(t, err)
	require.Equal(t, []string{"wf-1"}, members)
}

func TestRedisStore_InitFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	store := NewRedisStore(client, "")
	require.Error(t, store.Init(t.Context()))
}
