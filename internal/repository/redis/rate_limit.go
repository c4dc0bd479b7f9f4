package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
)

const defaultRateLimitPrefix = "randevubu:ratelimit"

// RateLimitStore persists request attempts in Redis sorted sets scored by
// nanosecond timestamps, so window math is a range query.
type RateLimitStore struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewRateLimitStore constructs the sliding-window attempt store. The TTL
// bounds how long an idle key survives; it should exceed the widest window.
func NewRateLimitStore(client *red.Client, keyPrefix string, ttl time.Duration) *RateLimitStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RateLimitStore{client: client, prefix: prefix, ttl: ttl}
}

// RecordAttempt stores one attempt at the given instant.
func (s *RateLimitStore) RecordAttempt(ctx context.Context, key string, at time.Time) error {
	member := red.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()}

	if err := s.client.ZAdd(ctx, s.key(key), member).Err(); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if err := s.client.Expire(ctx, s.key(key), s.ttl).Err(); err != nil {
		return fmt.Errorf("expire attempts: %w", err)
	}

	return nil
}

// CountAttempts returns the attempts inside the window ending at reference.
func (s *RateLimitStore) CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}

	count, err := s.client.ZCount(ctx, s.key(key),
		scoreBound(reference.Add(-window)), scoreBound(reference)).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}

	return int(count), nil
}

// TrimWindow drops attempts older than the window relative to reference.
func (s *RateLimitStore) TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return fmt.Errorf("window must be positive")
	}

	threshold := scoreBound(reference.Add(-window))
	if err := s.client.ZRemRangeByScore(ctx, s.key(key), "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("trim attempts: %w", err)
	}

	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (s *RateLimitStore) OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, fmt.Errorf("window must be positive")
	}

	values, err := s.client.ZRangeByScore(ctx, s.key(key), &red.ZRangeBy{
		Min:   scoreBound(reference.Add(-window)),
		Max:   scoreBound(reference),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp: %w", err)
	}

	return time.Unix(0, nanos), true, nil
}

func (s *RateLimitStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func scoreBound(at time.Time) string {
	return strconv.FormatInt(at.UnixNano(), 10)
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
