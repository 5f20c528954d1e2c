package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	perms := []Permission{
		{ID: 1, Name: "users:read", Resource: "users", Action: "read", Scope: ScopeTenant},
		{ID: 2, Name: "roles:write", Resource: "roles", Action: "write", Scope: ScopeTenant},
	}

	_, ok := cache.Get(ctx, 7, nil)
	require.False(t, ok)

	cache.Set(ctx, 7, nil, perms)
	got, ok := cache.Get(ctx, 7, nil)
	require.True(t, ok)
	require.Equal(t, perms, got)
}

func TestCacheFieldsAreTenantScoped(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()
	tenant := int64(3)

	cache.Set(ctx, 7, &tenant, []Permission{{ID: 1, Name: "users:read"}})

	// The global field is separate from the tenant field.
	_, ok := cache.Get(ctx, 7, nil)
	require.False(t, ok)

	got, ok := cache.Get(ctx, 7, &tenant)
	require.True(t, ok)
	require.Len(t, got, 1)
}

func TestCacheInvalidateDropsAllFields(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()
	tenant := int64(3)

	cache.Set(ctx, 7, nil, []Permission{{ID: 1}})
	cache.Set(ctx, 7, &tenant, []Permission{{ID: 2}})
	cache.Set(ctx, 8, nil, []Permission{{ID: 3}})

	cache.Invalidate(ctx, 7)

	_, ok := cache.Get(ctx, 7, nil)
	require.False(t, ok)
	_, ok = cache.Get(ctx, 7, &tenant)
	require.False(t, ok)

	// Other users are untouched.
	_, ok = cache.Get(ctx, 8, nil)
	require.True(t, ok)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	cache.Set(ctx, 7, nil, []Permission{{ID: 1}})
	mr.FastForward(2 * time.Second)

	_, ok := cache.Get(ctx, 7, nil)
	require.False(t, ok)
}

func TestCacheNilReceiverIsSafe(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 7, nil)
	require.False(t, ok)
	cache.Set(ctx, 7, nil, []Permission{{ID: 1}})
	cache.Invalidate(ctx, 7)
}
