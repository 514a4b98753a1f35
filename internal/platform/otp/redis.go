package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// verifyScript compares and consumes a code atomically. It returns 1 on match,
// 0 when no code exists and -1 on mismatch, counting failed attempts under
// KEYS[2] and dropping both keys once ARGV[2] is reached.
var verifyScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if v == ARGV[1] then
  redis.call('DEL', KEYS[1], KEYS[2])
  return 1
end
local n = redis.call('INCR', KEYS[2])
if n == 1 then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl > 0 then redis.call('PEXPIRE', KEYS[2], ttl) end
end
if n >= tonumber(ARGV[2]) then redis.call('DEL', KEYS[1], KEYS[2]) end
return -1
`)

// RedisStore keeps codes in Redis with a TTL so they survive restarts and are
// shared across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "otp:"}
}

func (s *RedisStore) codeKey(key string) string     { return s.prefix + key }
func (s *RedisStore) attemptsKey(key string) string { return s.prefix + key + ":attempts" }

func (s *RedisStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.codeKey(key), code, ttl)
		p.Del(ctx, s.attemptsKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Verify(ctx context.Context, key, code string) error {
	res, err := verifyScript.Run(ctx, s.client,
		[]string{s.codeKey(key), s.attemptsKey(key)}, code, MaxAttempts).Int()
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrCodeExpired
	default:
		return ErrCodeMismatch
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
