package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(time.Minute),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := uuid.New()

			ok, err := store.Exists(ctx, user, "t1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Create(ctx, user, "t1", time.Hour))
			require.NoError(t, store.Create(ctx, user, "t2", time.Hour))

			ok, err = store.Exists(ctx, user, "t1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Revoke(ctx, user, "t1"))
			ok, _ = store.Exists(ctx, user, "t1")
			assert.False(t, ok)
			ok, _ = store.Exists(ctx, user, "t2")
			assert.True(t, ok)
		})
	}
}

func TestStore_RevokeAllKeepsOtherUsers(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, bob := uuid.New(), uuid.New()

			require.NoError(t, store.Create(ctx, alice, "a1", time.Hour))
			require.NoError(t, store.Create(ctx, alice, "a2", time.Hour))
			require.NoError(t, store.Create(ctx, bob, "b1", time.Hour))

			require.NoError(t, store.RevokeAll(ctx, alice))

			for _, id := range []string{"a1", "a2"} {
				ok, err := store.Exists(ctx, alice, id)
				require.NoError(t, err)
				assert.False(t, ok, id)
			}
			ok, err := store.Exists(ctx, bob, "b1")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, store.Create(ctx, user, "t1", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := store.Exists(ctx, user, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}
