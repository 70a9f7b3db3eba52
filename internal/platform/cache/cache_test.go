package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "finhub:test:lock", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "finhub:test:lock", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))

	release, err = locker.Acquire(ctx, "finhub:test:lock", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "finhub:test:lock", time.Second)
	require.NoError(t, err)

	// Lock expired and was taken by someone else.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("finhub:test:lock", "other"))

	require.NoError(t, release(ctx))
	val, err := mr.Get("finhub:test:lock")
	require.NoError(t, err)
	require.Equal(t, "other", val)
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestVersionedFetchAndBump(t *testing.T) {
	client, _ := newTestClient(t)
	c := NewVersioned(client, "pnl", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "2025", "EUR")
	require.NoError(t, err)
	require.Equal(t, "pnl:2025:EUR:v1", key)

	var out map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 1, out["calls"])

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "2025", "EUR")
	require.NoError(t, err)
	require.Equal(t, "pnl:2025:EUR:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls)
}

func TestVersionedWithoutClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, "pnl", time.Minute)
	var out []int
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []int{1, 2}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, out)
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := New(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = New(context.Background(), addr)
	require.Error(t, err)
}
