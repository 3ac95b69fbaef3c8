package github

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"golang.org/x/sync/singleflight"
)

// refreshSkew is how long before expiry a cached token stops being reused.
const refreshSkew = 5 * time.Minute

// mintTimeout bounds a shared refresh. The mint is detached from the caller
// that started it so other waiters are not failed by its cancellation.
const mintTimeout = 30 * time.Second

// DefaultTokenCacheSize bounds the number of cached installations.
const DefaultTokenCacheSize = 64

// MintFunc creates a new installation token.
type MintFunc func(ctx context.Context, installationID int64) (Token, error)

// TokenCache holds installation tokens until shortly before they expire.
// Concurrent requests for the same installation share one mint.
type TokenCache struct {
	mint   MintFunc
	size   int
	logger *logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens map[int64]Token
	group  singleflight.Group
}

// NewTokenCache creates a cache of at most size installations; size <= 0
// selects DefaultTokenCacheSize.
func NewTokenCache(mint MintFunc, size int, logger *logging.Logger) *TokenCache {
	if size <= 0 {
		size = DefaultTokenCacheSize
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &TokenCache{
		mint:   mint,
		size:   size,
		logger: logger,
		now:    time.Now,
		tokens: make(map[int64]Token),
	}
}

// Token returns a usable token for the installation, minting one if the
// cached token is missing or about to expire.
func (c *TokenCache) Token(ctx context.Context, installationID int64) (string, error) {
	if tok, ok := c.lookup(installationID); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		if tok, ok := c.lookup(installationID); ok {
			return tok, nil
		}
		mintCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mintTimeout)
		defer cancel()
		tok, err := c.mint(mintCtx, installationID)
		if err != nil {
			return "", err
		}
		c.store(installationID, tok)
		c.logger.Info(ctx, "minted token for installation %d (expires %s)", installationID, tok.ExpiresAt.Format(time.RFC3339))
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token for an installation.
func (c *TokenCache) Invalidate(installationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, installationID)
}

// Len returns the number of cached tokens.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

func (c *TokenCache) lookup(installationID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[installationID]
	if !ok || !c.fresh(tok) {
		return "", false
	}
	return tok.Value, true
}

func (c *TokenCache) fresh(tok Token) bool {
	return c.now().Before(tok.ExpiresAt.Add(-refreshSkew))
}

func (c *TokenCache) store(installationID int64, tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tokens[installationID]; !ok && len(c.tokens) >= c.size {
		for id, t := range c.tokens {
			if !c.fresh(t) {
				delete(c.tokens, id)
			}
		}
	}
	for len(c.tokens) >= c.size {
		if _, ok := c.tokens[installationID]; ok {
			break
		}
		var victim int64
		var soonest time.Time
		first := true
		for id, t := range c.tokens {
			if first || t.ExpiresAt.Before(soonest) {
				victim, soonest, first = id, t.ExpiresAt, false
			}
		}
		delete(c.tokens, victim)
	}
	c.tokens[installationID] = tok
}
