package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/cache"
)

// CacheDedupStore keeps dedup entries in a cache.Service (memory or redis).
// The cache TTL only reclaims space; expiry is decided on ExpiresAt.
type CacheDedupStore struct {
	cache cache.Service
	grace time.Duration
}

func NewCacheDedupStore(c cache.Service, grace time.Duration) *CacheDedupStore {
	return &CacheDedupStore{cache: c, grace: grace}
}

func (s *CacheDedupStore) Lookup(ctx context.Context, key string) (models.DedupEntry, bool, error) {
	var e models.DedupEntry
	if err := s.cache.Get(ctx, key, &e); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.DedupEntry{}, false, nil
		}
		return models.DedupEntry{}, false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	return e, true, nil
}

func (s *CacheDedupStore) Record(ctx context.Context, e models.DedupEntry) error {
	ttl := e.ExpiresAt.Sub(e.FiredAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	if err := s.cache.Set(ctx, e.Key, e, ttl); err != nil {
		return fmt.Errorf("dedup record %s: %w", e.Key, err)
	}
	return nil
}

func (s *CacheDedupStore) Evict(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("dedup evict %s: %w", key, err)
	}
	return nil
}

func (s *CacheDedupStore) Close() error {
	return s.cache.Close()
}

var _ domrepo.DedupStore = (*CacheDedupStore)(nil)
