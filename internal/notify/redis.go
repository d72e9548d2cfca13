package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sourcing/internal/config"
	"sourcing/models"
)

// redisClient is the part of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes every event on the channel "<prefix>:<kind>".
type RedisPublisher struct {
	client redisClient
	prefix string
}

func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisPublisher{client: client, prefix: cfg.ChannelPrefix}, nil
}

// Channel returns the channel events of kind are published on.
func (p *RedisPublisher) Channel(kind models.EventKind) string {
	if p.prefix == "" {
		return string(kind)
	}
	return p.prefix + ":" + string(kind)
}

func (p *RedisPublisher) Publish(ctx context.Context, ev models.Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.Kind), msg).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
