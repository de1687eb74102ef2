package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps redis.Client but fails safe by swallowing connectivity errors.
// A failed read looks like a miss; a failed write is logged and dropped.
type Client struct {
	client *redis.Client
	log    *zap.Logger
}

// New creates a new Redis client.
func New(addr, password string, db int, log *zap.Logger) *Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{client: redis.NewClient(opts), log: log}
}

// Ping checks connectivity. Unlike the other methods it reports errors.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotConfigured
	}
	return c.client.Ping(ctx).Err()
}

// Get returns value or nil if missing or redis unavailable.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	res, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return res, nil
}

// Set stores value with TTL, ignoring redis errors.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Delete removes a key, ignoring redis errors.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ErrConflict is returned by Strict.Update when the key kept changing while it
// was being rewritten.
var ErrConflict = errors.New("cache: concurrent update")

const maxUpdateAttempts = 5

var errNotConfigured = errors.New("redis client not configured")

// Strict is a view of Client that reports redis errors instead of swallowing
// them. Data with no other copy, like sessions, goes through it.
type Strict struct {
	c *Client
}

// Strict returns the error-reporting view of c.
func (c *Client) Strict() *Strict {
	return &Strict{c: c}
}

func (s *Strict) rdb() (*redis.Client, error) {
	if s == nil || s.c == nil || s.c.client == nil {
		return nil, errNotConfigured
	}
	return s.c.client, nil
}

// Get returns the value, nil if the key is missing, or the redis error.
func (s *Strict) Get(ctx context.Context, key string) ([]byte, error) {
	rdb, err := s.rdb()
	if err != nil {
		return nil, err
	}
	res, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return res, nil
}

// Set stores value with TTL.
func (s *Strict) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	rdb, err := s.rdb()
	if err != nil {
		return err
	}
	if err := rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *Strict) Delete(ctx context.Context, key string) error {
	rdb, err := s.rdb()
	if err != nil {
		return err
	}
	if err := rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Update reads key under WATCH, hands the current value (nil when missing) to
// fn and writes what fn returns in a MULTI block. If another client writes key
// in between, fn runs again on the fresh value. Errors from fn are returned
// as is and nothing is written.
func (s *Strict) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, time.Duration, error)) error {
	rdb, err := s.rdb()
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get: %w", err)
		}
		value, ttl, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.c.log.Debug("redis update retried", zap.String("key", key))
			continue
		}
		return err
	}
	return ErrConflict
}
