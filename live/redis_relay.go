package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient принимает как host:port, так и redis:// URL.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// RedisRelay публикует события в канал Redis. Каждый инстанс слушает канал
// и отдает полученное своему локальному хабу, так что наблюдатели видят
// события независимо от того, какой инстанс обработал запрос.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode live event %s: %w", event.Type, err)
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish live event to redis: %w", err)
	}
	return nil
}

// Run слушает канал до отмены ctx.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis channel %s: %w", r.channel, err)
	}
	r.logger.Info("redis relay subscribed", slog.String("channel", r.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.hub.Deliver(ctx, []byte(msg.Payload)); err != nil {
				r.logger.Warn("redis relay failed to deliver event", slog.Any("error", err))
			}
		}
	}
}
