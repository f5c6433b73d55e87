// Package jwkscache caches identity-provider JWKS documents with HTTP
// caching semantics, so the query path does not refetch keys on every
// request and survives transient provider outages on stale keys.
package jwkscache

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
)

// Cache provides JWKS retrieval keyed by URL.
type Cache interface {
	Get(ctx context.Context, url string) (jwk.Set, error)
	Invalidate(url string)
}

type cached struct {
	set        jwk.Set
	freshUntil time.Time
	staleUntil time.Time
	etag       string
}

type memoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*cached
	client     *http.Client
	defaultTTL time.Duration
	staleGrace time.Duration
}

var (
	defaultOnce sync.Once
	defaultC    Cache
)

// Default returns a process-wide cache with sensible defaults.
func Default() Cache {
	defaultOnce.Do(func() {
		defaultC = New(10*time.Minute, 1*time.Hour)
	})
	return defaultC
}

// New creates an in-memory JWKS cache. defaultTTL applies when the response
// carries no caching directives; staleGrace is how long a stale set may still
// be served after a failed refresh.
func New(defaultTTL, staleGrace time.Duration) Cache {
	return &memoryCache{
		entries:    make(map[string]*cached),
		client:     &http.Client{Timeout: 5 * time.Second},
		defaultTTL: defaultTTL,
		staleGrace: staleGrace,
	}
}

func (c *memoryCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

func (c *memoryCache) Get(ctx context.Context, url string) (jwk.Set, error) {
	c.mu.RLock()
	e := c.entries[url]
	c.mu.RUnlock()
	if e != nil && time.Now().Before(e.freshUntil) {
		return e.set, nil
	}
	return c.refresh(ctx, url, e)
}

func (c *memoryCache) refresh(ctx context.Context, url string, prev *cached) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, err, "build JWKS request")
	}
	if prev != nil && prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if set := staleSet(prev); set != nil {
			return set, nil
		}
		return nil, apperr.Wrap(apperr.KindAuth, err, "fetch JWKS")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if prev == nil || prev.set == nil {
			return nil, apperr.Auth("JWKS endpoint returned 304 with no cached entry")
		}
		fresh, stale := c.lifetimes(resp.Header)
		c.store(url, &cached{set: prev.set, freshUntil: fresh, staleUntil: stale, etag: prev.etag})
		return prev.set, nil
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAuth, err, "read JWKS response")
		}
		set, err := jwk.Parse(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAuth, err, "parse JWKS")
		}
		fresh, stale := c.lifetimes(resp.Header)
		c.store(url, &cached{set: set, freshUntil: fresh, staleUntil: stale, etag: resp.Header.Get("ETag")})
		return set, nil
	default:
		if set := staleSet(prev); set != nil {
			return set, nil
		}
		return nil, apperr.Auth("JWKS endpoint returned status %d", resp.StatusCode)
	}
}

func staleSet(e *cached) jwk.Set {
	if e != nil && e.set != nil && time.Now().Before(e.staleUntil) {
		return e.set
	}
	return nil
}

func (c *memoryCache) store(url string, e *cached) {
	c.mu.Lock()
	c.entries[url] = e
	c.mu.Unlock()
}

// lifetimes derives the fresh and stale horizons from Cache-Control. Only
// no-store and max-age matter here; everything else falls back to the
// default TTL.
func (c *memoryCache) lifetimes(h http.Header) (fresh, stale time.Time) {
	now := time.Now()
	ttl := c.defaultTTL
	for _, part := range strings.Split(h.Get("Cache-Control"), ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if p == "no-store" {
			return now, now
		}
		if v, ok := strings.CutPrefix(p, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil {
				ttl = time.Duration(secs) * time.Second
			}
		}
	}
	fresh = now.Add(ttl)
	return fresh, fresh.Add(c.staleGrace)
}
