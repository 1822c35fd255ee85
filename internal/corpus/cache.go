package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through cache of document lines keyed by document id.
// Entries expire after the configured TTL and can be dropped explicitly
// through Invalidate, InvalidatePath or Flush. Concurrent misses on the same
// document share one load.
type Cache struct {
	manifest *Manifest
	store    *gocache.Cache
	group    singleflight.Group
	load     func(path string) (string, error)
	logger   *zap.Logger
}

// NewCache creates a Cache over the manifest's documents. A ttl <= 0 keeps
// entries until invalidated.
func NewCache(m *Manifest, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	exp, cleanup := gocache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		exp, cleanup = ttl, ttl/2
	}
	return &Cache{
		manifest: m,
		store:    gocache.New(exp, cleanup),
		load:     LoadText,
		logger:   logger.Named("corpus"),
	}
}

// Manifest returns the manifest the cache serves.
func (c *Cache) Manifest() *Manifest { return c.manifest }

// Lines returns the document's text split into lines, loading it on a miss.
func (c *Cache) Lines(ctx context.Context, id string) ([]string, error) {
	if v, ok := c.store.Get(id); ok {
		return v.([]string), nil
	}

	doc, ok := c.manifest.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown document %q", id)
	}

	ch := c.group.DoChan(id, func() (any, error) {
		text, err := c.load(c.manifest.AbsPath(doc))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", doc.ID, err)
		}
		lines := strings.Split(text, "\n")
		c.store.Set(id, lines, gocache.DefaultExpiration)
		c.logger.Debug("document cached", zap.String("doc", id), zap.Int("lines", len(lines)))
		return lines, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// Invalidate drops one document.
func (c *Cache) Invalidate(id string) {
	c.store.Delete(id)
	c.group.Forget(id)
}

// InvalidatePath drops the document stored at path, reporting whether the
// path belonged to one.
func (c *Cache) InvalidatePath(path string) bool {
	path = filepath.Clean(path)
	for _, d := range c.manifest.Documents {
		if c.manifest.AbsPath(d) == path {
			c.Invalidate(d.ID)
			c.logger.Debug("document invalidated", zap.String("doc", d.ID))
			return true
		}
	}
	return false
}

// Flush drops every cached document.
func (c *Cache) Flush() {
	c.store.Flush()
}

// Len reports the number of cached documents.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
