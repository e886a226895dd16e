package models

import "time"

// FetchResult is the outcome of one source fetch: records on success, Err otherwise.
type FetchResult struct {
	SourceID string
	Records  []SourceRecord
	Err      error
}

// SourceFailure is one manifest entry.
type SourceFailure struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// ObservationSet holds the records gathered in one tick plus the failure
// manifest. It is assembled once by the aggregator and read-only afterwards;
// accessors hand out copies.
type ObservationSet struct {
	tickID      string
	collectedAt time.Time
	records     []SourceRecord
	failures    []SourceFailure
}

// NewObservationSet copies records and failures into a new set.
func NewObservationSet(tickID string, collectedAt time.Time, records []SourceRecord, failures []SourceFailure) *ObservationSet {
	return &ObservationSet{
		tickID:      tickID,
		collectedAt: collectedAt,
		records:     append([]SourceRecord(nil), records...),
		failures:    append([]SourceFailure(nil), failures...),
	}
}

func (o *ObservationSet) TickID() string         { return o.tickID }
func (o *ObservationSet) CollectedAt() time.Time { return o.collectedAt }
func (o *ObservationSet) Len() int               { return len(o.records) }
func (o *ObservationSet) Empty() bool            { return len(o.records) == 0 }

func (o *ObservationSet) Records() []SourceRecord {
	return append([]SourceRecord(nil), o.records...)
}

func (o *ObservationSet) Failures() []SourceFailure {
	return append([]SourceFailure(nil), o.failures...)
}

// Quotes returns the quote payloads in record order.
func (o *ObservationSet) Quotes() []Quote {
	var out []Quote
	for _, r := range o.records {
		if q, ok := r.Quote(); ok {
			out = append(out, q)
		}
	}
	return out
}

// News returns the news payloads in record order.
func (o *ObservationSet) News() []News {
	var out []News
	for _, r := range o.records {
		if n, ok := r.News(); ok {
			out = append(out, n)
		}
	}
	return out
}

// QuoteRecords returns quote records only, keeping source ids.
func (o *ObservationSet) QuoteRecords() []SourceRecord {
	var out []SourceRecord
	for _, r := range o.records {
		if r.Kind() == KindQuote {
			out = append(out, r)
		}
	}
	return out
}

// Failed reports whether the source is in the manifest.
func (o *ObservationSet) Failed(sourceID string) bool {
	for _, f := range o.failures {
		if f.SourceID == sourceID {
			return true
		}
	}
	return false
}
