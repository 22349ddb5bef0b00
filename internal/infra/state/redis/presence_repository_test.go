package redisstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstate "collabboard/internal/infra/state/redis"
	"collabboard/internal/repository"
)

func newTestRepo(t *testing.T) (*redisstate.RedisPresenceRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstate.NewRedisPresenceRepository(client, "test:"), mr
}

func TestPresenceRepository_OnlineOffline(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetOnline(ctx, "bob", true, at))
	require.NoError(t, repo.SetOnline(ctx, "alice", true, at))

	assert.Equal(t, "1", mr.HGet("test:presence:user:bob", "online"))
	users, err := repo.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
	assert.True(t, mr.Exists("test:presence:user:bob"))

	later := at.Add(time.Minute)
	require.NoError(t, repo.SetOnline(ctx, "bob", false, later))

	assert.Equal(t, "0", mr.HGet("test:presence:user:bob", "online"))
	seen, err := repo.LastSeen(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, later.Equal(seen))
	users, err = repo.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}

func TestPresenceRepository_UnknownUser(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.LastSeen(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// 上线与下线的持久化异步进行，较早的下线晚到时不得覆盖较新的上线
func TestPresenceRepository_StaleWriteIsIgnored(t *testing.T) {
	// Arrange
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	// Act
	require.NoError(t, repo.SetOnline(ctx, "bob", true, t2))
	require.NoError(t, repo.SetOnline(ctx, "bob", false, t1))

	// Assert
	assert.Equal(t, "1", mr.HGet("test:presence:user:bob", "online"))
	ok, err := mr.SIsMember("test:presence:online", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	seen, err := repo.LastSeen(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, t2.Equal(seen))

	// 之后的转换照常生效
	require.NoError(t, repo.SetOnline(ctx, "bob", false, t2.Add(time.Second)))
	assert.Equal(t, "0", mr.HGet("test:presence:user:bob", "online"))
	users, err := repo.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPresenceRepository_ResetAndErrors(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SetOnline(ctx, "carol", true, time.Now()))

	require.NoError(t, repo.Reset(ctx))
	users, err := repo.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	mr.Close()
	err = repo.SetOnline(ctx, "carol", false, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: failed to set presence")
}

func TestNewRedisPresenceRepository_PanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { redisstate.NewRedisPresenceRepository(nil, "") })
}
