package microfeed

import (
	"context"
	"sync"
	"time"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
)

// TimelineCache is an in-memory cache of the home timeline with TTL. Every
// write through the App invalidates it, so the TTL only bounds staleness
// from writers outside this process.
type TimelineCache struct {
	mu      sync.RWMutex
	posts   []post.Post
	fetched time.Time
	ttl     time.Duration
	limit   int
	store   docstore.Store
}

// NewTimelineCache creates a TimelineCache holding the newest limit posts.
func NewTimelineCache(s docstore.Store, limit int, ttl time.Duration) *TimelineCache {
	return &TimelineCache{store: s, limit: limit, ttl: ttl}
}

func (c *TimelineCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *TimelineCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

// Timeline returns the newest posts, createdAt descending. The returned
// slice is shared; callers must not modify it.
func (c *TimelineCache) Timeline(ctx context.Context) ([]post.Post, error) {
	c.mu.RLock()
	if c.valid() {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, nil
	}
	records, err := c.store.Query(ctx, post.Collection, docstore.Query{
		OrderBy: post.FieldCreatedAt,
		Desc:    true,
		Limit:   c.limit,
	})
	if err != nil {
		return nil, err
	}
	c.posts = post.Project(records)
	c.fetched = time.Now()
	return c.posts, nil
}
