package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

const defaultPermissionCachePrefix = "randevubu:rbac"

// PermissionCache stores computed permission snapshots in Redis keyed by
// subject, fenced by a per-subject generation counter. The generation key
// has no TTL; snapshot keys expire after the configured TTL.
type PermissionCache struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewPermissionCache constructs the permission snapshot cache.
func NewPermissionCache(client *red.Client, keyPrefix string, ttl time.Duration) *PermissionCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPermissionCachePrefix
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &PermissionCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached snapshot, or repository.ErrNotFound when absent.
// Snapshots written under an older generation are treated as misses.
func (c *PermissionCache) Get(ctx context.Context, userID string) (*domain.PermissionSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	payload, err := c.client.Get(ctx, c.snapshotKey(userID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get permission snapshot: %w", err)
	}

	var snapshot domain.PermissionSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("decode permission snapshot: %w", err)
	}

	generation, err := c.Generation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snapshot.Generation < generation {
		return nil, repository.ErrNotFound
	}

	return &snapshot, nil
}

// Set stores the snapshot under its embedded generation with TTL.
func (c *PermissionCache) Set(ctx context.Context, userID string, snapshot domain.PermissionSnapshot) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode permission snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.snapshotKey(userID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set permission snapshot: %w", err)
	}

	return nil
}

// Generation returns the subject's current invalidation generation. A
// subject that has never been force-invalidated is at generation zero.
func (c *PermissionCache) Generation(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	generation, err := c.client.Get(ctx, c.generationKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get permission generation: %w", err)
	}

	return generation, nil
}

// Invalidate drops the cached snapshot without bumping the generation.
func (c *PermissionCache) Invalidate(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	if err := c.client.Del(ctx, c.snapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete permission snapshot: %w", err)
	}

	return nil
}

// ForceInvalidate bumps the generation counter, then drops the snapshot.
// The bump happens first so a concurrent Set holding the old generation
// is fenced out even if it lands after the delete.
func (c *PermissionCache) ForceInvalidate(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	generation, err := c.client.Incr(ctx, c.generationKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis bump permission generation: %w", err)
	}

	if err := c.client.Del(ctx, c.snapshotKey(userID)).Err(); err != nil {
		return 0, fmt.Errorf("redis delete permission snapshot: %w", err)
	}

	return generation, nil
}

func (c *PermissionCache) snapshotKey(userID string) string {
	return fmt.Sprintf("%s:snap:%s", c.prefix, userID)
}

func (c *PermissionCache) generationKey(userID string) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, userID)
}

var _ port.PermissionCache = (*PermissionCache)(nil)
