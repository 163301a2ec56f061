package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(4, time.Minute)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "course:c1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "course:c1", []byte(`{"id":"c1"}`)))
	got, ok, err := c.Get(ctx, "course:c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"c1"}`, string(got))

	got[0] = 'X'
	again, _, _ := c.Get(ctx, "course:c1")
	assert.Equal(t, byte('{'), again[0], "returned slice is a copy")

	require.NoError(t, c.Delete(ctx, "course:c1", "missing"))
	_, ok, _ = c.Get(ctx, "course:c1")
	assert.False(t, ok)
}

func TestLRUExpiresEntries(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(4, time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2, 0)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := NewRedis(context.Background(), " ", "coachd:", time.Minute)
	assert.Error(t, err)
}
