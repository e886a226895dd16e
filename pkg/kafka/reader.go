package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader a Reader uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Received is one consumed record.
type Received struct {
	Key    []byte
	Value  []byte
	Time   time.Time
	Offset int64
}

// Reader drains a topic in bounded batches instead of running a consume loop.
type Reader struct {
	r MessageReader
}

// NewReader creates a group reader for topic.
func NewReader(topic string, opts ...ReaderOption) (*Reader, error) {
	cfg := &ReaderConfig{
		Topic:    topic,
		GroupID:  "finpulse",
		MinBytes: 1,
		MaxBytes: 10 << 20,
		MaxWait:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
	return &Reader{r: r}, nil
}

// NewReaderFrom wraps an existing reader; used by tests.
func NewReaderFrom(r MessageReader) *Reader {
	return &Reader{r: r}
}

// Drain reads until max messages, until no message arrives within idle,
// or until ctx ends. Ending on a deadline is not an error when something
// was read.
func (r *Reader) Drain(ctx context.Context, max int, idle time.Duration) ([]Received, error) {
	var out []Received
	for max <= 0 || len(out) < max {
		rctx, cancel := context.WithTimeout(ctx, idle)
		m, err := r.r.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				if len(out) > 0 {
					return out, nil
				}
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return out, nil
			}
			return out, fmt.Errorf("kafka read: %w", err)
		}
		out = append(out, Received{Key: m.Key, Value: m.Value, Time: m.Time, Offset: m.Offset})
	}
	return out, nil
}

func (r *Reader) Close() error {
	return r.r.Close()
}
