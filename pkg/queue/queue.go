package queue

import (
	"context"
	"time"
)

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Message is the envelope pushed onto the list; downstream workers BRPOP it.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}
