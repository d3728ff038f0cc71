package publish

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rxtech-lab/marketboard/pkg/errors"
)

// RedisConfig holds connection parameters for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisPublisher publishes on Redis Pub/Sub channels.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher connects to Redis and pings it.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, errors.Wrapf(errors.ErrCodePublishFailed, err, "redis ping %s", cfg.Addr)
	}

	return &RedisPublisher{rdb: rdb}, nil
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodePublishFailed, err, "redis publish %s", channel)
	}

	return nil
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

var _ Publisher = (*RedisPublisher)(nil)
