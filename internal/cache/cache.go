// Package cache memoizes scrape results. Failures never surface to callers:
// a read error is a miss and a write error is logged.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/justmadeid/social-services/internal/models"
)

const (
	keyPrefix     = "cache:"
	subjectPrefix = "subject:"
)

// Stamper is implemented by results that can be flagged as served from cache.
type Stamper interface {
	MarkCached()
}

// TTLs are the expiry classes.
type TTLs struct {
	UserData     time.Duration
	TimelineData time.Duration
	TaskResult   time.Duration
}

// HealthStatus reports on the backing store.
type HealthStatus struct {
	Status  string `json:"status" yaml:"status"`
	Backend string `json:"backend" yaml:"backend"`
	Keys    int    `json:"keys" yaml:"keys"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Cache is the result cache.
type Cache struct {
	store  Store
	ttls   TTLs
	logger *slog.Logger
}

// New creates a cache over store.
func New(store Store, ttls TTLs, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, ttls: ttls, logger: logger.With("component", "cache")}
}

// Key derives the cache key for an operation. encoding/json writes map keys
// in sorted order, so permutations of the same params share a key.
func Key(op models.Operation, params map[string]any) string {
	data, err := json.Marshal(params)
	if err != nil {
		data = []byte(fmt.Sprint(params))
	}
	sum := md5.Sum(data)
	return keyPrefix + string(op) + ":" + hex.EncodeToString(sum[:])
}

// TTLFor returns the expiry class of op.
func (c *Cache) TTLFor(op models.Operation) time.Duration {
	switch op {
	case models.OpTimeline:
		return c.ttls.TimelineData
	case models.OpSearchUser, models.OpFollowing, models.OpFollowers:
		return c.ttls.UserData
	}
	return c.ttls.TaskResult
}

// Get decodes the value at key into dst and reports whether it was found.
// dst is stamped as cached when it implements Stamper.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return false
	}
	if s, ok := dst.(Stamper); ok {
		s.MarkCached()
	}
	return true
}

// Set stores value under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// SetForSubject stores value and indexes key under the subject so
// InvalidateForSubject can find it. Every entry has its own index key
// "subject:<username>:<key>" expiring with it, so concurrent writers never
// touch the same index record.
func (c *Cache) SetForSubject(ctx context.Context, username, key string, value any, ttl time.Duration) {
	c.Set(ctx, key, value, ttl)

	if err := c.store.Set(ctx, subjectPrefixFor(username)+key, nil, ttl); err != nil {
		c.logger.Warn("cache subject index write failed", "subject", username, "error", err)
	}
}

// Delete removes one key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Invalidate deletes every key matching a glob pattern such as
// "cache:timeline:*" and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		prefix = pattern[:i]
	}

	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	var matched []string
	for _, k := range keys {
		if ok, _ := path.Match(pattern, k); ok {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	if err := c.store.Delete(ctx, matched...); err != nil {
		return 0, fmt.Errorf("failed to delete cache keys: %w", err)
	}
	c.logger.Info("cache invalidated", "pattern", pattern, "deleted", len(matched))
	return len(matched), nil
}

// InvalidateForSubject deletes the following, followers and timeline entries
// recorded for username.
func (c *Cache) InvalidateForSubject(ctx context.Context, username string) (int, error) {
	prefix := subjectPrefixFor(username)
	indexed, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to read subject index: %w", err)
	}
	if len(indexed) == 0 {
		return 0, nil
	}

	patterns := []string{
		keyPrefix + string(models.OpFollowing) + ":*",
		keyPrefix + string(models.OpFollowers) + ":*",
		keyPrefix + string(models.OpTimeline) + ":*",
	}
	var doomed []string
	for _, idx := range indexed {
		k := strings.TrimPrefix(idx, prefix)
		for _, p := range patterns {
			if ok, _ := path.Match(p, k); ok {
				doomed = append(doomed, k)
				break
			}
		}
	}

	if err := c.store.Delete(ctx, append(doomed, indexed...)...); err != nil {
		return 0, fmt.Errorf("failed to delete subject keys: %w", err)
	}
	c.logger.Info("cache invalidated for user", "username", username, "deleted", len(doomed))
	return len(doomed), nil
}

// Health pings the store and counts live result keys.
func (c *Cache) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{Status: "healthy", Backend: "badger"}
	if err := c.store.Ping(ctx); err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}
	keys, err := c.store.Keys(ctx, keyPrefix)
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}
	h.Keys = len(keys)
	return h
}

// subjectPrefixFor returns the index prefix of username, "subject:<name>:".
func subjectPrefixFor(username string) string {
	return subjectPrefix + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@")) + ":"
}
