package redisc

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	assert.NoError(t, client.Ping(ctx).Err())

	_, err = Connect(ctx, "")
	assert.ErrorIs(t, err, ErrNoRedisURL)

	_, err = Connect(ctx, "http://not-redis")
	assert.Error(t, err)

	dead := miniredis.NewMiniRedis()
	require.NoError(t, dead.Start())
	addr := dead.Addr()
	dead.Close()
	_, err = Connect(ctx, "redis://"+addr)
	assert.ErrorContains(t, err, "failed to reach redis")
}
