package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedKeyPrefix = "wsenergy:"

// maxRelativeExpiration is the largest value memcached treats as a relative TTL.
const maxRelativeExpiration = 30 * 24 * 60 * 60

// MemcachedCache implements PayloadCache on memcached so several API
// instances can share one upstream snapshot.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache from a comma-separated server list.
func NewMemcachedCache(addrs string, timeout time.Duration) *MemcachedCache {
	var servers []string
	for _, addr := range strings.Split(addrs, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			servers = append(servers, addr)
		}
	}
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}

	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &MemcachedCache{client: client}
}

func (c *MemcachedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(memcachedKeyPrefix + key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (c *MemcachedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        memcachedKeyPrefix + key,
		Value:      value,
		Expiration: expirationSeconds(ttl),
	})
}

// Ping checks that every server is reachable.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}

func (c *MemcachedCache) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"backend": "memcached",
	}
}

// expirationSeconds rounds ttl up to whole seconds within memcached's relative range.
func expirationSeconds(ttl time.Duration) int32 {
	sec := int64((ttl + time.Second - 1) / time.Second)
	if sec <= 0 {
		return 1
	}
	if sec > maxRelativeExpiration {
		return maxRelativeExpiration
	}
	return int32(sec)
}
