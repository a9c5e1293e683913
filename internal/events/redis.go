// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// PublishTimeout bounds one publish issued from an observer callback.
const PublishTimeout = 2 * time.Second

// RedisPublisher publishes events with PUBLISH.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to url and verifies the connection with PING.
// An empty channel means DefaultChannel.
func NewRedisPublisher(ctx context.Context, url, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPublisherFromClient(client, channel, logger), nil
}

// NewRedisPublisherFromClient wraps an existing client.
func NewRedisPublisherFromClient(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger.Named("events")}
}

// Channel returns the Pub/Sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish marshals ev and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// ObserveRoute implements router.Observer.
func (p *RedisPublisher) ObserveRoute(ctx context.Context, res *router.Result, elapsed time.Duration) {
	if res == nil {
		return
	}
	p.send(ctx, RouteEvent(res, elapsed))
}

// ObserveOutcome implements attempt.Observer.
func (p *RedisPublisher) ObserveOutcome(ctx context.Context, job attempt.Job, o attempt.Outcome, elapsed time.Duration) {
	p.send(ctx, AttemptEvent(job, o, elapsed))
}

// send publishes on a context detached from the caller's cancellation so a
// finished request still reports its decision.
func (p *RedisPublisher) send(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.String("channel", p.channel),
			zap.Error(err))
	}
}

var (
	_ Publisher        = (*RedisPublisher)(nil)
	_ router.Observer  = (*RedisPublisher)(nil)
	_ attempt.Observer = (*RedisPublisher)(nil)
	_ Publisher        = Nop{}
	_ router.Observer  = Nop{}
	_ attempt.Observer = Nop{}
)
