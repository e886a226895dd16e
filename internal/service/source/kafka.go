package source

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	pkgkafka "FinPulse/pkg/kafka"
)

const (
	// kafkaIdle ends a drain when the topic goes quiet.
	kafkaIdle        = 500 * time.Millisecond
	kafkaMaxMessages = 5000
)

type drainer interface {
	Drain(ctx context.Context, max int, idle time.Duration) ([]pkgkafka.Received, error)
}

// KafkaQuotes drains quote ticks published by an upstream feed. The newest
// tick per symbol wins.
type KafkaQuotes struct {
	id      string
	reader  drainer
	symbols map[string]bool
	max     int
	now     func() time.Time
}

// tickMessage is the JSON value of one topic message.
type tickMessage struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Volume    float64   `json:"volume"`
	TS        time.Time `json:"ts"`
}

func NewKafkaQuotes(id string, reader drainer, symbols []string, max int, now func() time.Time) *KafkaQuotes {
	var filter map[string]bool
	if len(symbols) > 0 {
		filter = make(map[string]bool, len(symbols))
		for _, s := range upper(symbols) {
			filter[s] = true
		}
	}
	return &KafkaQuotes{id: id, reader: reader, symbols: filter, max: max, now: now}
}

func (k *KafkaQuotes) ID() string        { return k.id }
func (k *KafkaQuotes) Kind() models.Kind { return models.KindQuote }

func (k *KafkaQuotes) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	msgs, err := k.reader.Drain(ctx, k.max, kafkaIdle)
	if err != nil && len(msgs) == 0 {
		return nil, &models.FetchError{SourceID: k.id, Reason: "drain: " + err.Error(), Err: err}
	}

	type tick struct {
		q  models.Quote
		at time.Time
	}
	newest := map[string]tick{}
	var order []string
	for _, m := range msgs {
		var t tickMessage
		if json.Unmarshal(m.Value, &t) != nil {
			continue
		}
		t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if t.Symbol == "" && len(m.Key) > 0 {
			t.Symbol = strings.ToUpper(string(m.Key))
		}
		if k.symbols != nil && !k.symbols[t.Symbol] {
			continue
		}
		at := t.TS
		if at.IsZero() {
			at = m.Time
		}
		prev, ok := newest[t.Symbol]
		if !ok {
			order = append(order, t.Symbol)
		} else if at.Before(prev.at) {
			continue
		}
		newest[t.Symbol] = tick{
			q:  models.Quote{Symbol: t.Symbol, Price: t.Price, ChangePct: t.ChangePct, Volume: t.Volume},
			at: at,
		}
	}

	recs := make([]models.SourceRecord, 0, len(order))
	for _, sym := range order {
		t := newest[sym]
		at := t.at
		if at.IsZero() {
			at = k.now()
		}
		rec, err := models.NewQuoteRecord(k.id, at, t.q)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
