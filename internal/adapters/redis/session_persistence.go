// Package redis provides Redis-backed adapters for session persistence and profile caching.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// SessionPersistence stores one identity-provider session per client key.
// Entries live until the refresh material expires, so an access token that has
// lapsed can still be refreshed on the next read.
type SessionPersistence struct {
	client redis.UniversalClient
	prefix string
	// MaxTTL caps how long a session without refresh material is kept.
	MaxTTL time.Duration
}

var _ ports.SessionPersistence = (*SessionPersistence)(nil)

// NewSessionPersistence creates a Redis-backed session persistence with the given key prefix.
func NewSessionPersistence(client redis.UniversalClient, prefix string) *SessionPersistence {
	return &SessionPersistence{
		client: client,
		prefix: prefix + "idp:session:",
		MaxTTL: 30 * 24 * time.Hour,
	}
}

// Load returns the stored session for key, or nil when none exists.
func (s *SessionPersistence) Load(ctx context.Context, key string) (*domainauth.Session, error) {
	if key == "" {
		return nil, nil
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Corrupt entries are dropped rather than blocking the client forever.
		if delErr := s.Delete(ctx, key); delErr != nil {
			return nil, errors.Join(fmt.Errorf("unmarshal session: %w", err), delErr)
		}
		return nil, nil
	}
	return &sess, nil
}

// Save stores sess under key.
func (s *SessionPersistence) Save(ctx context.Context, key string, sess *domainauth.Session) error {
	if key == "" {
		return errors.New("session key cannot be empty")
	}
	if sess == nil {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := s.MaxTTL
	if sess.RefreshToken == "" {
		ttl = time.Until(sess.ExpiresAt)
		if ttl <= 0 {
			return s.Delete(ctx, key)
		}
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// Delete removes the session stored under key.
func (s *SessionPersistence) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
