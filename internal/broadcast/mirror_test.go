// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisMirrorPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "results")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	m, err := NewRedisMirror(ctx, RedisConfig{Addr: mr.Addr(), Channel: "results"})
	require.NoError(t, err)

	s := NewServer(Options{Mirror: m})
	s.Broadcast([]byte(`{"type":"status","status":"ready"}`))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "results", msg.Channel)
	require.JSONEq(t, `{"type":"status","status":"ready"}`, msg.Payload)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	m.Mirror([]byte("after close"))
}

func TestRedisMirrorDefaultsChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewRedisMirror(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, DefaultRedisChannel, m.channel)
}

func TestRedisMirrorUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisMirror(context.Background(), RedisConfig{Addr: addr})
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis connection failed")
}
