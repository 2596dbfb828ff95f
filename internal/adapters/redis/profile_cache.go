package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// ProfileCache is a read-through cache in front of a ProfileStore.
// Only found profiles are cached; misses always reach the store so a profile
// provisioned after a first lookup becomes visible on the next fetch.
// Cache failures degrade to the underlying store.
type ProfileCache struct {
	client redis.UniversalClient
	next   ports.ProfileStore
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.ProfileStore = (*ProfileCache)(nil)

// ProfileCacheOptions configures a ProfileCache.
type ProfileCacheOptions struct {
	Client redis.UniversalClient
	Next   ports.ProfileStore
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// NewProfileCache wraps opts.Next with a Redis cache. A non-positive TTL disables caching.
func NewProfileCache(opts ProfileCacheOptions) *ProfileCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileCache{
		client: opts.Client,
		next:   opts.Next,
		prefix: opts.Prefix + "profile:",
		ttl:    opts.TTL,
		logger: logger.With("component", "profile_cache"),
	}
}

// FindProfileBySubjectID serves from cache when possible and populates it on a store hit.
func (c *ProfileCache) FindProfileBySubjectID(ctx context.Context, subjectID string) (*domainauth.Profile, error) {
	if c.ttl <= 0 || c.client == nil {
		return c.next.FindProfileBySubjectID(ctx, subjectID)
	}

	key := c.prefix + subjectID
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var p domainauth.Profile
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "profile cache read failed", "error", err)
	}

	p, err := c.next.FindProfileBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(p); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "profile cache write failed", "error", setErr)
		}
	}
	return p, nil
}

// Invalidate drops the cached profile for subjectID.
func (c *ProfileCache) Invalidate(ctx context.Context, subjectID string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.prefix+subjectID).Err(); err != nil {
		return fmt.Errorf("invalidate profile cache: %w", err)
	}
	return nil
}
