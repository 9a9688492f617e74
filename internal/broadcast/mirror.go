// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultRedisChannel is the pub/sub channel results are mirrored to.
	DefaultRedisChannel  = "vitalsd.results"
	mirrorQueueSize      = 256
	mirrorPublishTimeout = 2 * time.Second
)

// RedisConfig holds the mirror connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisMirror republishes broadcast lines on a Redis pub/sub channel.
// Lines are queued and published by one goroutine; when the queue is full the
// line is dropped.
type RedisMirror struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
	errLog  *rate.Limiter

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// NewRedisMirror connects to Redis and starts the publisher goroutine.
func NewRedisMirror(ctx context.Context, cfg RedisConfig) (*RedisMirror, error) {
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	m := newRedisMirror(client, cfg.Channel)
	m.logger.Info().
		Str("event", "broadcast.mirror_connected").
		Str("addr", cfg.Addr).
		Str("channel", cfg.Channel).
		Msg("mirroring broadcast to redis")
	return m, nil
}

func newRedisMirror(client *redis.Client, channel string) *RedisMirror {
	m := &RedisMirror{
		client:  client,
		channel: channel,
		logger:  log.WithComponent("broadcast.mirror"),
		errLog:  rate.NewLimiter(rate.Every(10*time.Second), 1),
		queue:   make(chan []byte, mirrorQueueSize),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Mirror implements broadcast.Mirror. It never blocks.
func (m *RedisMirror) Mirror(line []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- bytes.TrimSuffix(line, []byte{'\n'}):
	default:
		m.fail(fmt.Errorf("mirror queue full (%d)", mirrorQueueSize))
	}
}

func (m *RedisMirror) run() {
	defer close(m.done)
	for line := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
		err := m.client.Publish(ctx, m.channel, line).Err()
		cancel()
		if err != nil {
			m.fail(err)
		}
	}
}

func (m *RedisMirror) fail(err error) {
	metrics.IncMirrorError()
	if m.errLog.Allow() {
		m.logger.Warn().Err(err).Str("event", "broadcast.mirror_failed").Msg("redis mirror publish failed")
	}
}

// Close flushes queued lines and closes the client.
func (m *RedisMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	<-m.done
	return m.client.Close()
}
