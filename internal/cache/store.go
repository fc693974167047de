package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
//
// Decrement exists to compensate a prior IncrementWithTTL when the guarded
// action fails after the quota was already consumed, e.g. an OTP email that
// never left the mailer.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Decrement(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
