package repository

import (
	"context"
	"time"

	"FinPulse/internal/domain/models"
)

// DedupStore keeps the last firing of every dedup key.
type DedupStore interface {
	Lookup(ctx context.Context, key string) (models.DedupEntry, bool, error)
	Record(ctx context.Context, e models.DedupEntry) error
	Evict(ctx context.Context, key string) error
}

// Archive persists tick reports for run-to-run diffing and dashboards.
type Archive interface {
	SaveTick(ctx context.Context, r *models.TickReport) error
	Close() error
}

type Metrics interface {
	RecordTick(trigger, outcome string)
	RecordStage(stage string, d time.Duration)
	RecordSourceFailure(source string)
	RecordAssessment(result string, attempts int)
	RecordAlert(rule, result string)
	RecordDispatch(channel string, ok bool)
	RecordTriggerDropped(trigger string)
	RecordError(kind string)
}
