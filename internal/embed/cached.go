package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of unique (text, model) embeddings
// kept in memory.
const DefaultCacheSize = 1000

// CachedProvider wraps a Provider with LRU caching, so repeated chunk
// text (common across near-duplicate files, or a query re-run) skips a
// network round trip.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with an LRU cache of the given size (0
// uses DefaultCacheSize).
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{inner: inner, cache: cache}
}

func (c *CachedProvider) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelID()))
	return hex.EncodeToString(h[:])
}

// Embed serves cached entries directly and only calls the inner provider
// for the texts that missed, preserving input order in the result.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.cache.Get(key); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	return results, nil
}

func (c *CachedProvider) ID() string                         { return c.inner.ID() }
func (c *CachedProvider) Dimension() int                      { return c.inner.Dimension() }
func (c *CachedProvider) ModelID() string                     { return c.inner.ModelID() }
func (c *CachedProvider) Limits() Limits                      { return c.inner.Limits() }
func (c *CachedProvider) IsReady(ctx context.Context) bool    { return c.inner.IsReady(ctx) }

// Inner returns the wrapped provider.
func (c *CachedProvider) Inner() Provider { return c.inner }
