package report

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKey     = "receiptctl:receipts"
	DefaultRedisChannel = "receiptctl:receipts:events"
)

// RedisSink stores reports as JSON in a capped list and announces them on a
// pub/sub channel.
type RedisSink struct {
	client     *backend.Client
	key        string
	channel    string
	maxEntries int64
}

type RedisOption func(*RedisSink)

func WithKey(key string) RedisOption {
	return func(s *RedisSink) {
		if key != "" {
			s.key = key
		}
	}
}

// WithChannel sets the pub/sub channel. An empty channel disables publishing.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSink) {
		s.channel = channel
	}
}

// WithMaxEntries caps the list length. Zero keeps everything.
func WithMaxEntries(n int64) RedisOption {
	return func(s *RedisSink) {
		s.maxEntries = n
	}
}

func NewRedisSink(address, password string, db int, opts ...RedisOption) *RedisSink {
	return NewRedisSinkFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

func NewRedisSinkFromClient(client *backend.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:  client,
		key:     DefaultRedisKey,
		channel: DefaultRedisChannel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) Publish(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal %s: %w", r.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	if s.maxEntries > 0 {
		pipe.LTrim(ctx, s.key, 0, s.maxEntries-1)
	}
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("report: redis publish %s: %w", r.ID, err)
	}
	return nil
}

// Recent reads up to limit stored reports, newest first.
func (s *RedisSink) Recent(ctx context.Context, limit int64) ([]Report, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("report: redis read: %w", err)
	}
	out := make([]Report, 0, len(raw))
	for _, item := range raw {
		var r Report
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("report: redis decode: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
