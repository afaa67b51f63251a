package credstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisKey holds the most recent TokenRecord.
const RedisKey = "schwabgw:tokens:last"

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisSink stores the record as JSON under RedisKey.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return &RedisSink{client: client, key: RedisKey}, nil
}

// Save implements Sink.
func (s *RedisSink) Save(ctx context.Context, rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode token record")
	}
	return errors.Wrap(s.client.Set(ctx, s.key, data, 0).Err(), "redis set")
}

// Last returns the most recently saved record.
func (s *RedisSink) Last(ctx context.Context) (TokenRecord, error) {
	var rec TokenRecord
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		return rec, errors.Wrap(err, "redis get")
	}
	return rec, errors.Wrap(json.Unmarshal(data, &rec), "decode token record")
}

// Close releases the connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
