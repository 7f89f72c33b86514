package sampler

import (
	"context"
	"sync"
	"time"
)

// CachedSampler serves a recent reading instead of hitting the device when
// the caller accepts a fix up to MaxAge old.
type CachedSampler struct {
	inner Sampler

	mu       sync.Mutex
	last     Reading
	lastTime time.Time
	nowFn    func() time.Time
}

func NewCachedSampler(inner Sampler) *CachedSampler {
	return &CachedSampler{inner: inner, nowFn: time.Now}
}

func (c *CachedSampler) RequestFix(ctx context.Context, opts Options) (Reading, error) {
	if opts.MaxAge > 0 {
		c.mu.Lock()
		if !c.lastTime.IsZero() && c.nowFn().Sub(c.lastTime) <= opts.MaxAge {
			reading := c.last
			c.mu.Unlock()
			return reading, nil
		}
		c.mu.Unlock()
	}

	reading, err := c.inner.RequestFix(ctx, opts)
	if err != nil {
		return Reading{}, err
	}

	c.mu.Lock()
	c.last = reading
	c.lastTime = c.nowFn()
	c.mu.Unlock()
	return reading, nil
}
