package preferences

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/postforge/postforge/domain"
)

const DefaultCacheSize = 1024

// Cached is a read-through LRU in front of another Store. Save goes to the
// inner store first and then drops the cached entry.
type Cached struct {
	inner Store
	cache *lru.Cache[string, domain.UserPreferences]
}

func NewCached(inner Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, domain.UserPreferences](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Load(ctx context.Context, userID string) (domain.UserPreferences, error) {
	key := strings.TrimSpace(userID)
	if p, ok := c.cache.Get(key); ok {
		return p.Clone(), nil
	}
	p, err := c.inner.Load(ctx, userID)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	c.cache.Add(key, p.Clone())
	return p, nil
}

func (c *Cached) Save(ctx context.Context, prefs domain.UserPreferences) error {
	if err := c.inner.Save(ctx, prefs); err != nil {
		return err
	}
	c.Invalidate(prefs.UserID)
	return nil
}

// Invalidate drops a user's cached profile.
func (c *Cached) Invalidate(userID string) {
	c.cache.Remove(strings.TrimSpace(userID))
}
