package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/config"
	"github.com/dexxeth/tourist-safety-shield/internal/database"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime/mqttfeed"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime/pgnotify"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime/redisfeed"
)

// realtimeFeed is the change feed chosen by REALTIME_BACKEND. Publisher is
// where in-memory repositories send their writes; every backend ends up
// delivering into the local hub.
type realtimeFeed struct {
	Publisher realtime.Publisher
	redis     *redis.Client
	cancel    context.CancelFunc
}

// Throttle returns the shared Redis throttle when Redis is available and
// nil otherwise, leaving the store on its in-process throttle.
func (f *realtimeFeed) Throttle(window time.Duration) location.Throttle {
	if f.redis == nil {
		return nil
	}
	return location.NewRedisThrottle(f.redis, window)
}

func (f *realtimeFeed) Close() {
	f.cancel()
	if f.redis != nil {
		_ = f.redis.Close()
	}
}

func startRealtime(ctx context.Context, cfg config.Config, hub *realtime.Hub, pool *pgxpool.Pool, db database.Config, log zerolog.Logger) (*realtimeFeed, error) {
	ctx, cancel := context.WithCancel(ctx)
	feed := &realtimeFeed{Publisher: hub, cancel: cancel}
	rt := cfg.Realtime

	switch rt.Backend {
	case config.RealtimeMemory:
		log.Info().Msg("realtime: in-process hub")

	case config.RealtimePostgres:
		if pool == nil {
			cancel()
			return nil, fmt.Errorf("realtime backend %q needs a database", rt.Backend)
		}
		if err := pgnotify.Install(ctx, pool); err != nil {
			cancel()
			return nil, err
		}
		listener := pgnotify.NewListener(pgnotify.ListenerConfig{
			ConnString: db.ConnectionString(),
			Channel:    rt.Channel,
			Target:     hub,
			Logger:     log,
		})
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("change listener stopped")
			}
		}()
		log.Info().Str("channel", rt.Channel).Msg("realtime: postgres notifications")

	case config.RealtimeRedis:
		client := redis.NewClient(&redis.Options{Addr: rt.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			cancel()
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", rt.RedisAddr, err)
		}
		feed.redis = client
		rcfg := redisfeed.Config{Client: client, Logger: log}
		feed.Publisher = redisfeed.NewPublisher(rcfg)
		bridge := redisfeed.NewBridge(rcfg, hub)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Error().Err(err).Msg("redis bridge stopped")
			}
		}()
		log.Info().Str("addr", rt.RedisAddr).Msg("realtime: redis pub/sub")

	case config.RealtimeMQTT:
		mcfg := mqttfeed.Config{BrokerURL: rt.MQTTBroker, ClientID: rt.MQTTClientID, Logger: log}
		pub := &switchingPublisher{fallback: hub}
		feed.Publisher = pub
		bridge := mqttfeed.NewBridge(mcfg, hub)
		go func() {
			err := bridge.Run(ctx, func(c mqtt.Client) {
				pub.set(mqttfeed.NewPublisher(c, mcfg))
			})
			if err != nil {
				log.Error().Err(err).Msg("mqtt bridge stopped")
			}
		}()
		log.Info().Str("broker", rt.MQTTBroker).Msg("realtime: mqtt")
	}
	return feed, nil
}

// switchingPublisher publishes to the local hub until the broker
// connection is up, then to the broker.
type switchingPublisher struct {
	fallback realtime.Publisher
	remote   atomic.Pointer[mqttfeed.Publisher]
}

func (p *switchingPublisher) set(pub *mqttfeed.Publisher) {
	p.remote.Store(pub)
}

func (p *switchingPublisher) Publish(ctx context.Context, evt realtime.ChangeEvent) error {
	if remote := p.remote.Load(); remote != nil {
		return remote.Publish(ctx, evt)
	}
	return p.fallback.Publish(ctx, evt)
}
