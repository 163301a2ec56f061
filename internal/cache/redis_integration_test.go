//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("COACHD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COACHD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "coachd-test:", time.Minute)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "k", []byte("v")))
	got, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
