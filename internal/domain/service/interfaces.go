package service

import (
	"context"

	"FinPulse/internal/domain/models"
)

// Source fetches one batch of normalized records. Errors are *models.FetchError.
type Source interface {
	ID() string
	Kind() models.Kind
	Fetch(ctx context.Context) ([]models.SourceRecord, error)
}

// Reasoner sends one prompt to the external reasoning service and returns the raw reply.
type Reasoner interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Channel delivers a text payload to one notification target.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}
