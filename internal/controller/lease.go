package controller

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease gates a single loop's tick to one control-plane replica at a
// time. With a single replica (the common case) TryAcquire always
// succeeds; it only matters once Rise runs with more than one replica
// for HA, a natural extension of the long-running control-plane process
// this package implements.
type Lease interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// noopLease never contends: every tick proceeds, exactly the single-
// replica behavior the rest of this package is built around.
type noopLease struct{}

func (noopLease) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return true, nil
}

// NoopLease is the Lease used when no Redis is configured.
var NoopLease Lease = noopLease{}

const leaseKeyPrefix = "rise:controller:lease:"

// RedisLease acquires a per-loop lease via SET NX PX, so a losing
// replica's tick is skipped rather than racing the winner's.
type RedisLease struct {
	client *redis.Client
}

// NewRedisLease wraps an existing Redis client for lease acquisition.
func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{client: client}
}

func (l *RedisLease) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKeyPrefix+name, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
