// Package cache provides switchgear's redis-backed change bus: a
// publish/subscribe fan-out that lets several switchgear processes
// sharing one SQL database coalesce store on_change notifications
// across process boundaries, per spec.md §4.6 ("polling-based
// implementations may coalesce bursts... within one
// backend-update-frequency-secs tick" — the bus turns a same-process
// notify() into a cross-process one, so every instance's OnChange
// subscribers fire, not only the writer's). The backend pool does not
// subscribe to OnChange; it picks up changes on its own ticker.
//
// Grounded on the teacher's pkg/cache/redis.go: same Config shape and
// Init/Close lifecycle, generalized here from a get/set/lock/counter
// cache client to a pub/sub bus, since switchgear has no caching need
// of its own — only the notification-fan-out half of redis's API.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"switchgear/pkg/logger"
)

// Config carries the redis connection parameters for the change bus,
// identical in shape to the teacher's cache.Config.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ParseURL builds a Config from a redis:// or rediss:// URL, the
// shape store.discover|offer.database.change-bus-url carries per
// spec.md §6.
func ParseURL(raw string) (Config, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid change-bus-url: %w", err)
	}
	host, port, ok := strings.Cut(opts.Addr, ":")
	if !ok {
		host, port = opts.Addr, "6379"
	}
	return Config{Host: host, Port: port, Password: opts.Password, DB: opts.DB}, nil
}

// Bus is a redis pub/sub fan-out. Each SQL store entity (backends,
// offers, metadata) publishes on its own channel after a successful
// mutation and subscribes to relay remote publishes into its local
// on_change subscriber list.
type Bus struct {
	client *redis.Client
}

// NewBus dials redis and verifies the connection with a Ping, mirroring
// the teacher's cache.Init.
func NewBus(cfg Config) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to change-bus redis", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to change-bus redis at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	logger.Info("connected to change-bus redis", zap.String("host", cfg.Host), zap.Int("db", cfg.DB))
	return &Bus{client: rdb}, nil
}

// Publish fans out one change notification on channel. Failures are
// logged and swallowed: a missed cross-process notification only
// delays another instance's next scheduled reconcile tick, it never
// corrupts local state (spec.md §4.1's change-observer still polls
// the store directly on its own ticker).
func (b *Bus) Publish(ctx context.Context, channel, payload string) {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Warn("change-bus publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// Subscribe relays every message received on channel to handler until
// ctx is canceled. Returns immediately; the relay runs in a goroutine.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler func(payload string)) {
	sub := b.client.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
}

// Close releases the underlying redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// EntityChannel names the pub/sub channel for one SQL-backed entity
// store ("backends", "offers", "offer_metadata"), scoped by an
// optional partition suffix.
func EntityChannel(entity, partition string) string {
	if partition == "" {
		return "switchgear:" + entity
	}
	return "switchgear:" + entity + ":" + partition
}
