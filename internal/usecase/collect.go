package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/domain/service"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/service/source"
	applogger "FinPulse/pkg/logger"
)

const defaultFetchTimeout = 10 * time.Second

// SourceSpec binds a source to its fetch budget.
type SourceSpec struct {
	Source      service.Source
	Timeout     time.Duration
	MinInterval time.Duration
	Group       string // stocks, crypto or news
}

// Collector fans fetches out over a bounded pool and joins them into one
// ObservationSet.
type Collector struct {
	specs   []SourceSpec
	workers int
	metrics domrepo.Metrics
	log     *applogger.Logger
}

// NewCollector keeps specs in configured order. workers <= 0 means one slot per source.
func NewCollector(specs []SourceSpec, workers int, m domrepo.Metrics, log *applogger.Logger) *Collector {
	guarded := make([]SourceSpec, len(specs))
	for i, sp := range specs {
		sp.Source = source.Guard(sp.Source)
		guarded[i] = sp
	}
	specs = guarded
	if workers <= 0 || workers > len(specs) {
		workers = len(specs)
	}
	if workers == 0 {
		workers = 1
	}
	return &Collector{specs: specs, workers: workers, metrics: m, log: log}
}

func (c *Collector) Sources() []SourceSpec {
	return append([]SourceSpec(nil), c.specs...)
}

// Groups maps source id to market group.
func (c *Collector) Groups() map[string]string {
	out := make(map[string]string, len(c.specs))
	for _, sp := range c.specs {
		out[sp.Source.ID()] = sp.Group
	}
	return out
}

// Collect fetches every source once. It never fails: each source either
// contributes records or a manifest entry. When ctx ends first, sources still
// in flight are recorded with the context error and their late results dropped.
func (c *Collector) Collect(ctx context.Context, tickID string, at time.Time, limiter *ratelimit.Limiter) *models.ObservationSet {
	results := make([]models.FetchResult, len(c.specs))
	var (
		mu     sync.Mutex
		filled = make([]bool, len(c.specs))
		closed bool
		wg     sync.WaitGroup
	)
	store := func(i int, r models.FetchResult) {
		mu.Lock()
		defer mu.Unlock()
		if closed || filled[i] {
			return
		}
		results[i] = r
		filled[i] = true
	}

	sem := semaphore.NewWeighted(int64(c.workers))
	for i, sp := range c.specs {
		id := sp.Source.ID()
		if sp.MinInterval > 0 && limiter != nil && !limiter.AllowEvery(id, sp.MinInterval) {
			store(i, models.FetchResult{SourceID: id, Err: &models.FetchError{SourceID: id, Reason: "rate limited"}})
			continue
		}
		wg.Add(1)
		go func(i int, sp SourceSpec) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				store(i, models.FetchResult{SourceID: id, Err: models.NewFetchError(id, err)})
				return
			}
			defer sem.Release(1)

			timeout := sp.Timeout
			if timeout <= 0 {
				timeout = defaultFetchTimeout
			}
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			recs, err := sp.Source.Fetch(fctx)
			store(i, models.FetchResult{SourceID: id, Records: recs, Err: err})
		}(i, sp)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	for i, ok := range filled {
		if !ok {
			id := c.specs[i].Source.ID()
			results[i] = models.FetchResult{SourceID: id, Err: models.NewFetchError(id, ctx.Err())}
		}
	}
	out := append([]models.FetchResult(nil), results...)
	mu.Unlock()

	obs := Aggregate(tickID, at, out)
	for _, f := range obs.Failures() {
		c.metrics.RecordSourceFailure(f.SourceID)
		c.log.Warn("source fetch failed",
			applogger.String("tick_id", tickID),
			applogger.String("stage", string(models.PhaseCollecting)),
			applogger.String("source", f.SourceID),
			applogger.String("reason", f.Reason),
		)
	}
	return obs
}

// Aggregate folds fetch results into an ObservationSet. Records come only from
// successful results; failures keep the order of results.
func Aggregate(tickID string, at time.Time, results []models.FetchResult) *models.ObservationSet {
	var (
		records  []models.SourceRecord
		failures []models.SourceFailure
	)
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, models.SourceFailure{SourceID: r.SourceID, Reason: reason(r.Err)})
			continue
		}
		records = append(records, r.Records...)
	}
	return models.NewObservationSet(tickID, at, records, failures)
}

func reason(err error) string {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return err.Error()
}
