package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"studyhub/internal/config"
)

// eventSink is the subset of Redis operations the publisher needs.
type eventSink interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Append(ctx context.Context, key string, message []byte, size int) error
	Close() error
}

// RedisPublisher broadcasts events on a pub/sub channel and keeps a capped
// history list of the most recent ones.
type RedisPublisher struct {
	sink        eventSink
	channel     string
	historyKey  string
	historySize int
}

// NewRedisPublisher connects to the Redis URL in cfg.
func NewRedisPublisher(cfg config.Redis) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisPublisher(&goRedisSink{client: redis.NewClient(opts)}, cfg), nil
}

func newRedisPublisher(sink eventSink, cfg config.Redis) *RedisPublisher {
	return &RedisPublisher{
		sink:        sink,
		channel:     cfg.Channel,
		historyKey:  cfg.HistoryKey,
		historySize: cfg.HistorySize,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if p.channel != "" {
		if err := p.sink.Publish(ctx, p.channel, data); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	if p.historyKey != "" && p.historySize > 0 {
		if err := p.sink.Append(ctx, p.historyKey, data, p.historySize); err != nil {
			return fmt.Errorf("redis history: %w", err)
		}
	}
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.sink.Close()
}

type goRedisSink struct {
	client *redis.Client
}

func (s *goRedisSink) Publish(ctx context.Context, channel string, message []byte) error {
	return s.client.Publish(ctx, channel, message).Err()
}

func (s *goRedisSink) Append(ctx context.Context, key string, message []byte, size int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, message)
		pipe.LTrim(ctx, key, 0, int64(size-1))
		return nil
	})
	return err
}

func (s *goRedisSink) Close() error {
	return s.client.Close()
}
