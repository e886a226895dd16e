package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducer_PublishMarshalsValue(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)

	err := p.Publish(context.Background(), "finpulse.alerts", []byte("crash:BTCUSDT"), map[string]string{"rule_id": "crash"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "finpulse.alerts", w.msgs[0].Topic)
	assert.JSONEq(t, `{"rule_id":"crash"}`, string(w.msgs[0].Value))
}

func TestProducer_PublishError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("broker down")})
	require.Error(t, p.Publish(context.Background(), "t", nil, "x"))
}

func TestReader_DrainStopsWhenIdle(t *testing.T) {
	r := NewReaderFrom(&fakeReader{msgs: []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}}})
	got, err := r.Drain(context.Background(), 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReader_DrainRespectsMax(t *testing.T) {
	r := NewReaderFrom(&fakeReader{msgs: []kafka.Message{{}, {}, {}}})
	got, err := r.Drain(context.Background(), 2, time.Second)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReader_DrainEmptyOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReaderFrom(&fakeReader{}).Drain(ctx, 0, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
