package notify

import (
	"context"
	"fmt"
	"time"

	"FinPulse/internal/domain/models"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// textMessage carries digest and test messages on the structured channels.
type textMessage struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Kafka publishes one JSON message per alert, keyed by dedup key.
type Kafka struct {
	p     publisher
	topic string
	now   func() time.Time
}

func NewKafka(p publisher, topic string) *Kafka {
	return &Kafka{p: p, topic: topic, now: time.Now}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) SendAlerts(ctx context.Context, alerts []models.Alert) error {
	for _, a := range alerts {
		if err := k.p.Publish(ctx, k.topic, []byte(a.DedupKey), a); err != nil {
			return fmt.Errorf("kafka publish %s: %w", a.DedupKey, err)
		}
	}
	return nil
}

func (k *Kafka) Send(ctx context.Context, text string) error {
	if err := k.p.Publish(ctx, k.topic, []byte("message"), textMessage{Text: text, SentAt: k.now()}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Queue pushes alerts onto the redis list consumed by downstream workers.
type Queue struct {
	q   enqueuer
	now func() time.Time
}

func NewQueue(q enqueuer) *Queue {
	return &Queue{q: q, now: time.Now}
}

func (q *Queue) Name() string { return "redis_queue" }

func (q *Queue) SendAlerts(ctx context.Context, alerts []models.Alert) error {
	for _, a := range alerts {
		if err := q.q.Enqueue(ctx, "alert", a); err != nil {
			return fmt.Errorf("enqueue %s: %w", a.DedupKey, err)
		}
	}
	return nil
}

func (q *Queue) Send(ctx context.Context, text string) error {
	if err := q.q.Enqueue(ctx, "message", textMessage{Text: text, SentAt: q.now()}); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}
