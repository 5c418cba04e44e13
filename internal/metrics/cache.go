package metrics

import (
	"context"
	"time"

	"github.com/credgate/credgate/internal/cache"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
)

// metricsStore defines the database operations needed by CacheWrapper.
// This interface allows for easier testing without requiring a full store.Store.
type metricsStore interface {
	CountCredentialsByStatus(status models.CredentialStatus) (int64, error)
	CountActiveGrants() (int64, error)
}

// CacheWrapper provides a read-through cache for gauge counts.
// It queries the database on cache miss and updates the cache for
// subsequent requests, so periodic gauge updates across replicas
// don't all hit the database.
type CacheWrapper struct {
	store metricsStore
	cache cache.Cache[int64]
}

// NewCacheWrapper creates a new cache wrapper for metrics.
func NewCacheWrapper(store *store.Store, cache cache.Cache[int64]) *CacheWrapper {
	return &CacheWrapper{
		store: store,
		cache: cache,
	}
}

// GetCredentialsCount retrieves the count of credentials in the given status.
func (m *CacheWrapper) GetCredentialsCount(
	ctx context.Context,
	status models.CredentialStatus,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(
		ctx,
		"credentials:"+string(status),
		ttl,
		func() (int64, error) {
			return m.store.CountCredentialsByStatus(status)
		},
	)
}

// GetActiveGrantsCount retrieves the count of active permission grants.
func (m *CacheWrapper) GetActiveGrantsCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(
		ctx,
		"grants:active",
		ttl,
		m.store.CountActiveGrants,
	)
}

// getCountWithCache retrieves a count using the cache-aside pattern.
func (m *CacheWrapper) getCountWithCache(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func() (int64, error),
) (int64, error) {
	return cache.GetWithFetch(
		ctx,
		m.cache,
		key,
		ttl,
		func(ctx context.Context, key string) (int64, error) {
			return fetchFunc()
		},
	)
}
