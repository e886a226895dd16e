package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a producer-only Redis list queue.
type RedisQueue struct {
	logger    *logger.Logger
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) {
		r.now = now
	}
}

// NewRedisPublisher creates a publisher-only queue.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	rq := &RedisQueue{
		logger:    lgr,
		client:    client,
		keyPrefix: "finpulse:queue",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: r.now(),
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.QueueKey(), msgData).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	r.logger.Debug("queue message published",
		logger.String("type", msgType),
		logger.String("id", msg.ID),
	)
	return nil
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// QueueKey is the list consumers read from.
func (r *RedisQueue) QueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}
