package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestLockIsExclusive(t *testing.T) {
	mr, client := newRedis(t)
	locks := NewLockRepository(client)
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "p1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("explorable:lock:p1"))

	_, err = locks.Acquire(ctx, "p1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrProjectBusy)

	other, err := locks.Acquire(ctx, "p2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, mr.Exists("explorable:lock:p1"))

	again, err := locks.Acquire(ctx, "p1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	locks := NewLockRepository(client)
	ctx := context.Background()

	stale, err := locks.Acquire(ctx, "p1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locks.Acquire(ctx, "p1", time.Minute)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("explorable:lock:p1"), "expired holder must not release the new lock")
	fresh()
}

func TestPublishSubscribe(t *testing.T) {
	_, client := newRedis(t)
	events := NewEventPublisher(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := events.Subscribe(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, events.Publish(ctx, domain.StatusRecord{ID: "p1", Status: domain.StatusCreatingSandbox}))

	select {
	case rec := <-ch:
		assert.Equal(t, domain.StatusCreatingSandbox, rec.Status)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
