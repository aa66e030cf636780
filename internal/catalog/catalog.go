// Package catalog caches the type-scoped category lists so pickers and
// reconciliation edits do not refetch them on every keystroke.
package catalog

import (
	"context"
	"fmt"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/dgraph-io/ristretto"
)

// CategoryLister fetches the categories available for a transaction type.
type CategoryLister interface {
	Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error)
}

// Catalog decorates a CategoryLister with an in-process cache keyed by
// transaction type. It satisfies CategoryLister itself, so it drops in
// wherever the raw gateway would be used.
type Catalog struct {
	lister CategoryLister
	cache  *ristretto.Cache
}

// New creates a Catalog over the given lister.
func New(lister CategoryLister) (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000, // number of keys to track frequency of
		MaxCost:     100,  // a handful of category lists at most
		BufferItems: 64,   // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: init cache: %w", err)
	}
	return &Catalog{lister: lister, cache: cache}, nil
}

// Categories returns the cached list for a type, fetching it on a miss.
// Errors are not cached; the next call retries.
func (c *Catalog) Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error) {
	key := cacheKey(t)
	if v, ok := c.cache.Get(key); ok {
		return v.([]models.Category), nil
	}

	cats, err := c.lister.Categories(ctx, t)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, cats, 1)
	// Set is buffered; wait so the entry is visible to the next call.
	c.cache.Wait()
	return cats, nil
}

// Invalidate drops the cached list for a type, forcing the next call to
// refetch.
func (c *Catalog) Invalidate(t models.TransactionType) {
	c.cache.Del(cacheKey(t))
}

// Close releases the cache's internal resources.
func (c *Catalog) Close() {
	c.cache.Close()
}

func cacheKey(t models.TransactionType) string {
	return "categories:" + string(t)
}
