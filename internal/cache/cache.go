// Package cache memoizes derived folder trees keyed by the exact folder list
// they were built from.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when nothing is cached for the key.
var ErrMiss = errors.New("cache miss")

// TreeCache stores built forests per owner and folder-list fingerprint.
type TreeCache interface {
	Get(ctx context.Context, ownerID string, fingerprint uint64) ([]*foldertree.Node, error)
	Set(ctx context.Context, ownerID string, fingerprint uint64, roots []*foldertree.Node) error
}

// Fingerprint hashes records in order. Any change to an id, name, parent or
// the order of the list yields a different value.
func Fingerprint(records []foldertree.Record) uint64 {
	d := xxhash.New()
	for _, r := range records {
		_, _ = d.WriteString(r.ID)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(r.Name)
		_, _ = d.Write([]byte{0})
		if r.ParentID != nil {
			_, _ = d.Write([]byte{1})
			_, _ = d.WriteString(*r.ParentID)
		} else {
			_, _ = d.Write([]byte{2})
		}
		_, _ = d.Write([]byte{0xff})
	}
	return d.Sum64()
}

func key(ownerID string, fingerprint uint64) string {
	return "foldertree:" + ownerID + ":" + strconv.FormatUint(fingerprint, 16)
}

// RedisTreeCache keeps trees in redis as JSON with a TTL.
type RedisTreeCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTreeCache returns a cache backed by the redis server at addr.
func NewRedisTreeCache(addr, password string, ttl time.Duration) *RedisTreeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return NewRedisTreeCacheWithClient(client, ttl)
}

// NewRedisTreeCacheWithClient wraps an existing client.
func NewRedisTreeCacheWithClient(client redis.UniversalClient, ttl time.Duration) *RedisTreeCache {
	return &RedisTreeCache{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (c *RedisTreeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTreeCache) Close() error {
	return c.client.Close()
}

func (c *RedisTreeCache) Get(ctx context.Context, ownerID string, fingerprint uint64) ([]*foldertree.Node, error) {
	raw, err := c.client.Get(ctx, key(ownerID, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("TreeCache.Get: %w", err)
	}

	var roots []*foldertree.Node
	if err := json.Unmarshal(raw, &roots); err != nil {
		return nil, fmt.Errorf("TreeCache.Get: decode: %w", err)
	}
	return roots, nil
}

func (c *RedisTreeCache) Set(ctx context.Context, ownerID string, fingerprint uint64, roots []*foldertree.Node) error {
	raw, err := json.Marshal(roots)
	if err != nil {
		return fmt.Errorf("TreeCache.Set: encode: %w", err)
	}
	if err := c.client.Set(ctx, key(ownerID, fingerprint), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("TreeCache.Set: %w", err)
	}
	return nil
}

// Noop never stores anything; used when redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string, uint64) ([]*foldertree.Node, error) { return nil, ErrMiss }

func (Noop) Set(context.Context, string, uint64, []*foldertree.Node) error { return nil }

var (
	_ TreeCache = (*RedisTreeCache)(nil)
	_ TreeCache = Noop{}
)
