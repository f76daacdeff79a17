package remote

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"golang.org/x/sync/singleflight"
)

// LimitsFetcher asks the server for its entry limits.
type LimitsFetcher interface {
	GetLimits(ctx context.Context) (models.Limits, error)
}

// LimitsCache memoizes the server limits for one application session.
// Concurrent callers share a single in-flight request.
type LimitsCache struct {
	fetcher LimitsFetcher
	ttl     time.Duration
	logger  logging.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	value     models.Limits
	fetchedAt time.Time
	ok        bool
}

// NewLimitsCache returns a cache that refetches after ttl. A zero ttl keeps
// the first successful answer for the lifetime of the cache.
func NewLimitsCache(fetcher LimitsFetcher, ttl time.Duration, logger logging.Logger) *LimitsCache {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LimitsCache{fetcher: fetcher, ttl: ttl, logger: logger, now: time.Now}
}

func (c *LimitsCache) cached() (models.Limits, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok {
		return models.Limits{}, false
	}
	if c.ttl > 0 && c.now().Sub(c.fetchedAt) > c.ttl {
		return c.value, false
	}
	return c.value, true
}

// fallback is the last known answer, or the defaults.
func (c *LimitsCache) fallback() models.Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ok {
		return c.value
	}
	return models.DefaultLimits()
}

// Get returns the server limits. It never fails: when the server cannot be
// asked it returns the last known limits or the defaults. The shared fetch is
// not cancelled when ctx is; the caller just stops waiting.
func (c *LimitsCache) Get(ctx context.Context) models.Limits {
	if v, fresh := c.cached(); fresh {
		return v
	}

	ch := c.group.DoChan("limits", func() (any, error) {
		v, err := c.fetcher.GetLimits(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.value, c.fetchedAt, c.ok = v, c.now(), true
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return c.fallback()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn(ctx, "server limits unavailable, using fallback", "error", res.Err)
			return c.fallback()
		}
		return res.Val.(models.Limits)
	}
}

// Invalidate forgets the cached answer, e.g. on sign-out.
func (c *LimitsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value, c.fetchedAt, c.ok = models.Limits{}, time.Time{}, false
}
