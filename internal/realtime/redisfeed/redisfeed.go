// Package redisfeed carries change events between processes over Redis pub/sub.
//
// The API and worker processes publish events for the rows they write; every
// process runs a Bridge that re-publishes remote events into its local hub.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// DefaultPrefix is prepended to the table name to form the channel name.
const DefaultPrefix = "tss:changes:"

// Config configures both the Publisher and the Bridge.
type Config struct {
	Client *redis.Client
	Prefix string
	Logger zerolog.Logger
}

func (c Config) prefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}

// Publisher publishes change events to Redis.
type Publisher struct {
	client *redis.Client
	prefix string
}

var _ realtime.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{client: cfg.Client, prefix: cfg.prefix()}
}

// Publish sends evt on the channel of its table.
func (p *Publisher) Publish(ctx context.Context, evt realtime.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+evt.Table, data).Err(); err != nil {
		return fmt.Errorf("publishing change event: %w", err)
	}
	return nil
}

// Bridge subscribes to every change channel and re-publishes into a local target.
type Bridge struct {
	client *redis.Client
	prefix string
	target realtime.Publisher
	logger zerolog.Logger
	ready  chan struct{}
}

// NewBridge creates a Bridge delivering into target.
func NewBridge(cfg Config, target realtime.Publisher) *Bridge {
	return &Bridge{
		client: cfg.Client,
		prefix: cfg.prefix(),
		target: target,
		logger: cfg.Logger.With().Str("component", "redisfeed").Logger(),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the pattern subscription is confirmed.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *Bridge) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, b.prefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to change channels: %w", err)
	}
	close(b.ready)
	b.logger.Info().Str("pattern", b.prefix+"*").Msg("bridging redis change events")

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			evt, err := realtime.ParseEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping malformed change event")
				continue
			}
			if err := b.target.Publish(ctx, evt); err != nil {
				b.logger.Warn().Err(err).Str("table", evt.Table).Msg("failed to deliver change event")
			}
		}
	}
}
