package providers

import (
	"context"

	"github.com/dshills/prgate/internal/cache"
)

// Cached memoises successful responses of the wrapped analyzer. Failures are
// never stored, so a transient error does not stick.
type Cached struct {
	next  Analyzer
	model string
	store *cache.Cache

	// OnHit is called with the request label on every cache hit. May be nil.
	OnHit func(label string)
}

// WithCache wraps a with store. A nil or disabled store returns a unchanged.
func WithCache(a Analyzer, model string, store *cache.Cache) Analyzer {
	if store == nil || !store.Enabled() {
		return a
	}
	return &Cached{next: a, model: model, store: store}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Analyze(ctx context.Context, req Request) (Response, error) {
	key := cache.BuildKey(c.next.Name(), c.model, req.System, req.Prompt)
	if e, ok := c.store.Get(key); ok {
		if c.OnHit != nil {
			c.OnHit(req.Label)
		}
		return Response{Content: e.Content, TokensUsed: e.TokensUsed}, nil
	}
	resp, err := c.next.Analyze(ctx, req)
	if err != nil {
		return resp, err
	}
	// A failed write only costs a future cache miss.
	_ = c.store.Put(key, resp.Content, resp.TokensUsed)
	return resp, nil
}
