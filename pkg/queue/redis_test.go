package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisQueue_EnqueuePushesEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewRedisPublisher(nil, client, WithKeyPrefix("finpulse:alerts"))
	require.NoError(t, q.PublishMessage(context.Background(), "alert", map[string]string{"rule_id": "crash"}))

	items, err := mr.List("finpulse:alerts:messages")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(items[0]), &msg))
	assert.Equal(t, "alert", msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, map[string]interface{}{"rule_id": "crash"}, msg.Payload)
}
