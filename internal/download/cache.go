package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"
)

// Default cache settings.
const (
	DefaultTTL     = 30 * time.Minute
	DefaultEntries = 128
)

// Cache fetches JSON documents and keeps them in memory and on disk for a bounded TTL.
// Disk entries are named after the sha256 of their URL and expire by modification time.
type Cache struct {
	client *http.Client
	dir    string
	ttl    time.Duration
	mem    *expirable.LRU[string, []byte]
	group  singleflight.Group
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache storing responses under dir.
// The in-memory layer holds up to entries documents.
func NewCache(client *http.Client, dir string, entries int, opts ...CacheOption) *Cache {
	if entries <= 0 {
		entries = DefaultEntries
	}
	c := &Cache{
		client: client,
		dir:    dir,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mem = expirable.NewLRU[string, []byte](entries, nil, c.ttl)
	return c
}

// FetchJSON returns the JSON body at url, from cache when still fresh.
func (c *Cache) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	if data, ok := c.mem.Get(url); ok {
		return data, nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		logger := slogcontext.FromCtx(ctx).With("url", url)
		path := c.path(url)

		if data, ok := c.readDisk(path); ok {
			logger.DebugContext(ctx, "fetch cache hit")
			c.mem.Add(url, data)
			return data, nil
		}

		data, err := Bytes(ctx, c.client, url)
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("response from %s is not valid JSON", url)
		}
		if err := c.writeDisk(path, data); err != nil {
			logger.WarnContext(ctx, "unable to persist fetch cache entry", "error", err)
		}
		c.mem.Add(url, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Fetch decodes the JSON document at url into T.
func Fetch[T any](ctx context.Context, c *Cache, url string) (T, error) {
	var out T
	data, err := c.FetchJSON(ctx, url)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unable to decode response from %s: %w", url, err)
	}
	return out, nil
}

func (c *Cache) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

func (c *Cache) readDisk(path string) ([]byte, bool) {
	if c.dir == "" {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || c.now().After(info.ModTime().Add(c.ttl)) {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) writeDisk(path string, data []byte) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	tmp := path + PartSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return errors.Join(os.Rename(tmp, path), os.Chtimes(path, c.now(), c.now()))
}
