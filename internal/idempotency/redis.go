package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idempotency:"

// RedisGuard is a Guard shared by every instance through Redis.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Guard = (*RedisGuard)(nil)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// NewRedisGuard creates a RedisGuard whose keys expire after ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Reserve(ctx context.Context, key, fingerprint string) (*Response, error) {
	k := keyPrefix + key
	pending := pendingMarker + ":" + fingerprint
	ok, err := g.client.SetNX(ctx, k, pending, g.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reserve idempotency key")
	}
	if ok {
		return nil, nil
	}

	val, err := g.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; the caller may retry.
			return nil, ErrInFlight
		}
		return nil, errors.Wrap(err, "read idempotency key")
	}
	if owner, isPending := strings.CutPrefix(val, pendingMarker+":"); isPending {
		if owner != fingerprint {
			return nil, ErrKeyReused
		}
		return nil, ErrInFlight
	}

	resp, err := decodeResponse([]byte(val))
	if err != nil {
		return nil, err
	}
	if resp.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	return resp, nil
}

func (g *RedisGuard) Complete(ctx context.Context, key string, resp Response) error {
	if err := g.client.Set(ctx, keyPrefix+key, encodeResponse(resp), g.ttl).Err(); err != nil {
		return errors.Wrap(err, "store idempotent response")
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Ping reports whether Redis answers. Used by readiness checks.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
