// Package cache keeps successful GET responses in memory and replays them
// without dispatching. Freshness comes from Cache-Control max-age or
// Expires, falling back to a default TTL.
package cache

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/sync/singleflight"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// ItemKey is the Invocation.Items key set to "hit" or "miss" for cacheable
// requests.
const ItemKey = "cache"

// DefaultTTL applies to responses without freshness headers.
const DefaultTTL = time.Minute

type entry struct {
	resp    *rabbit.Response
	expires time.Time
}

// Cache is an in-memory response cache
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group

	ttl        time.Duration
	maxEntries int
	vary       []string
	now        func() time.Time
}

// Option configures the cache
type Option func(*Cache)

// WithTTL sets the TTL of responses without freshness headers. Zero
// disables caching of such responses.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithMaxEntries bounds the number of cached responses
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithVaryHeaders adds the values of the named request headers to the key
func WithVaryHeaders(names ...string) Option {
	return func(c *Cache) {
		for _, name := range names {
			c.vary = append(c.vary, http.CanonicalHeaderKey(name))
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		ttl:        DefaultTTL,
		maxEntries: 1024,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of stored responses, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Interceptor returns the interceptor serving from c. Concurrent misses
// for the same key share one dispatch, which outlives the cancellation of
// any one caller.
func (c *Cache) Interceptor() rabbit.Interceptor {
	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		req := inv.Request()
		if req.Method != http.MethodGet || req.Header.Get("Cache-Control") == "no-cache" {
			return next(ctx, inv)
		}

		key := c.key(req)
		if resp, ok := c.get(key); ok {
			inv.Items[ItemKey] = "hit"
			inv.Response().CopyFrom(resp)
			return inv.Decode(ctx)
		}
		inv.Items[ItemKey] = "miss"

		// The shared dispatch runs on a copy of the invocation under a
		// context that no single caller can cancel. Each caller waits on
		// its own ctx and decodes into its own response.
		shadow := inv.Clone()
		ch := c.group.DoChan(key, func() (any, error) {
			_, err := next(context.WithoutCancel(ctx), shadow)
			resp := shadow.Response().Clone()
			if err == nil {
				c.store(key, resp)
			}
			return resp, err
		})

		select {
		case <-ctx.Done():
			return nil, errors.FromContext(ctx)
		case res := <-ch:
			if resp, ok := res.Val.(*rabbit.Response); ok {
				inv.Response().CopyFrom(resp)
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return inv.Decode(ctx)
		}
	}
}

func (c *Cache) key(req *rabbit.Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.URL().String())
	for _, name := range c.vary {
		b.WriteByte('\n')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(req.Header.Values(name), ","))
	}
	return b.String()
}

func (c *Cache) get(key string) (*rabbit.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp, true
}

func (c *Cache) store(key string, resp *rabbit.Response) {
	if !resp.IsSuccess() {
		return
	}
	now := c.now()
	ttl, ok := c.freshness(resp.Header, now)
	if !ok || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
		for k := range c.entries {
			if len(c.entries) < c.maxEntries {
				break
			}
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{resp: resp, expires: now.Add(ttl)}
}

// freshness returns how long a response may be served from the cache.
func (c *Cache) freshness(h http.Header, now time.Time) (time.Duration, bool) {
	for _, directive := range strings.Split(h.Get("Cache-Control"), ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store", directive == "no-cache", directive == "private":
			return 0, false
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil {
				return 0, false
			}
			return time.Duration(secs) * time.Second, true
		}
	}
	if expires := h.Get("Expires"); expires != "" {
		t, err := dateparse.ParseAny(expires)
		if err != nil {
			return 0, false
		}
		return t.Sub(now), true
	}
	return c.ttl, true
}
