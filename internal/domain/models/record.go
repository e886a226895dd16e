package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind tags the payload carried by a SourceRecord.
type Kind string

const (
	KindQuote Kind = "quote"
	KindNews  Kind = "news"
)

// Quote is the payload of a quote record.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    float64 `json:"volume"`
}

// News is the payload of a news or policy record.
type News struct {
	Title       string    `json:"title"`
	BodySummary string    `json:"body_summary"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
}

// SourceRecord is one normalized data point. Exactly one payload is set and it
// matches Kind. Records are built through NewQuoteRecord / NewNewsRecord and
// never change afterwards.
type SourceRecord struct {
	sourceID   string
	kind       Kind
	capturedAt time.Time
	quote      Quote
	news       News
}

// NewQuoteRecord validates q and wraps it in a record.
func NewQuoteRecord(sourceID string, capturedAt time.Time, q Quote) (SourceRecord, error) {
	q.Symbol = strings.TrimSpace(q.Symbol)
	switch {
	case sourceID == "":
		return SourceRecord{}, fmt.Errorf("quote record: source id is empty")
	case q.Symbol == "":
		return SourceRecord{}, fmt.Errorf("quote record: symbol is empty")
	case !finite(q.Price) || q.Price < 0:
		return SourceRecord{}, fmt.Errorf("quote record %s: invalid price %v", q.Symbol, q.Price)
	case !finite(q.ChangePct):
		return SourceRecord{}, fmt.Errorf("quote record %s: invalid change_pct %v", q.Symbol, q.ChangePct)
	case !finite(q.Volume) || q.Volume < 0:
		return SourceRecord{}, fmt.Errorf("quote record %s: invalid volume %v", q.Symbol, q.Volume)
	}
	return SourceRecord{sourceID: sourceID, kind: KindQuote, capturedAt: capturedAt, quote: q}, nil
}

// NewNewsRecord validates n and wraps it in a record.
func NewNewsRecord(sourceID string, capturedAt time.Time, n News) (SourceRecord, error) {
	n.Title = strings.TrimSpace(n.Title)
	if sourceID == "" {
		return SourceRecord{}, fmt.Errorf("news record: source id is empty")
	}
	if n.Title == "" {
		return SourceRecord{}, fmt.Errorf("news record: title is empty")
	}
	return SourceRecord{sourceID: sourceID, kind: KindNews, capturedAt: capturedAt, news: n}, nil
}

func (r SourceRecord) SourceID() string      { return r.sourceID }
func (r SourceRecord) Kind() Kind            { return r.kind }
func (r SourceRecord) CapturedAt() time.Time { return r.capturedAt }

// Quote returns the quote payload; ok is false for news records.
func (r SourceRecord) Quote() (Quote, bool) {
	return r.quote, r.kind == KindQuote
}

// News returns the news payload; ok is false for quote records.
func (r SourceRecord) News() (News, bool) {
	return r.news, r.kind == KindNews
}

type recordJSON struct {
	SourceID   string    `json:"source_id"`
	Kind       Kind      `json:"kind"`
	CapturedAt time.Time `json:"captured_at"`
	Quote      *Quote    `json:"quote,omitempty"`
	News       *News     `json:"news,omitempty"`
}

func (r SourceRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{SourceID: r.sourceID, Kind: r.kind, CapturedAt: r.capturedAt}
	switch r.kind {
	case KindQuote:
		q := r.quote
		out.Quote = &q
	case KindNews:
		n := r.news
		out.News = &n
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a record and runs the same validation as the constructors.
func (r *SourceRecord) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var (
		rec SourceRecord
		err error
	)
	switch {
	case in.Kind == KindQuote && in.Quote != nil:
		rec, err = NewQuoteRecord(in.SourceID, in.CapturedAt, *in.Quote)
	case in.Kind == KindNews && in.News != nil:
		rec, err = NewNewsRecord(in.SourceID, in.CapturedAt, *in.News)
	default:
		err = fmt.Errorf("record: kind %q without matching payload", in.Kind)
	}
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
