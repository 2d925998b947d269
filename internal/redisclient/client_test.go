package redisclient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	require.Nil(t, New(config.RedisConfig{}))
	require.Equal(t, "disabled", Status(context.Background(), nil))
	require.NoError(t, Ping(context.Background(), nil))
}

func TestNewAcceptsURLAndBareAddress(t *testing.T) {
	server := miniredis.RunT(t)

	for _, raw := range []string{"redis://" + server.Addr() + "/0", server.Addr()} {
		client := New(config.RedisConfig{URL: raw, PoolSize: 2})
		require.NotNil(t, client)
		require.NoError(t, Ping(context.Background(), client))
		require.Equal(t, "ok", Status(context.Background(), client))
		require.Equal(t, 2, client.Options().PoolSize)
		require.NoError(t, client.Close())
	}
}

func TestStatusReportsUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	client := New(config.RedisConfig{URL: server.Addr()})
	defer client.Close()
	server.Close()

	require.Equal(t, "unavailable", Status(context.Background(), client))
}
