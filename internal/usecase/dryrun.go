package usecase

import (
	"context"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
)

// dryRunDedup reads through to the real store but keeps writes local, so a
// dry run reports what would fire without starting cooldowns.
type dryRunDedup struct {
	base    domrepo.DedupStore
	local   map[string]models.DedupEntry
	evicted map[string]bool
}

func newDryRunDedup(base domrepo.DedupStore) *dryRunDedup {
	return &dryRunDedup{base: base, local: map[string]models.DedupEntry{}, evicted: map[string]bool{}}
}

func (d *dryRunDedup) Lookup(ctx context.Context, key string) (models.DedupEntry, bool, error) {
	if e, ok := d.local[key]; ok {
		return e, true, nil
	}
	if d.evicted[key] {
		return models.DedupEntry{}, false, nil
	}
	return d.base.Lookup(ctx, key)
}

func (d *dryRunDedup) Record(_ context.Context, e models.DedupEntry) error {
	d.local[e.Key] = e
	return nil
}

func (d *dryRunDedup) Evict(_ context.Context, key string) error {
	delete(d.local, key)
	d.evicted[key] = true
	return nil
}
