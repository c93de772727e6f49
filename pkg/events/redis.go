package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes event envelopes on Redis pub/sub channels named
// prefix + topic.
type RedisPublisher struct {
	client redis.Cmdable
	closer func() error
	prefix string
	clock  func() time.Time
}

// NewRedisPublisher connects to a Redis server.
func NewRedisPublisher(addr, password string, db int, prefix string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	p := NewRedisPublisherWithClient(rdb, prefix)
	p.closer = rdb.Close
	return p
}

// NewRedisPublisherWithClient publishes through an existing client.
func NewRedisPublisherWithClient(client redis.Cmdable, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, clock: time.Now}
}

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := encode(topic, payload, p.clock())
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
