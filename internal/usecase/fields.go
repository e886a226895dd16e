package usecase

import (
	"fmt"
	"math"
	"strings"

	"FinPulse/internal/domain/models"
)

// Scope says which tick input a field reads and what its subject is.
type Scope string

const (
	ScopeQuote       Scope = "quote"
	ScopeVerdict     Scope = "verdict"
	ScopeObservation Scope = "observation"
)

// Subjects for fields that are not per symbol.
const (
	SubjectMarket  = "market"
	SubjectNews    = "news"
	SubjectSources = "sources"
)

// FieldValue is one resolved value with the subject it belongs to.
type FieldValue struct {
	Subject string
	Value   float64
}

// Field is an entry of the accessor table.
type Field struct {
	Name  string
	Scope Scope

	quote   func(models.Quote) float64
	verdict func(*models.Verdict) (float64, bool)
	obs     func(*models.ObservationSet) float64
	subject string
}

var fieldTable = buildFieldTable(
	Field{Name: "change_pct", Scope: ScopeQuote, quote: quoteChange},
	Field{Name: "abs_change_pct", Scope: ScopeQuote, quote: quoteAbsChange},
	Field{Name: "price", Scope: ScopeQuote, quote: quotePrice},
	Field{Name: "volume", Scope: ScopeQuote, quote: quoteVolume},
	Field{Name: "sentiment_score", Scope: ScopeVerdict, subject: SubjectMarket, verdict: verdictSentiment},
	Field{Name: "volatility_level", Scope: ScopeVerdict, subject: SubjectMarket, verdict: verdictLevel},
	Field{Name: "volatility_confidence", Scope: ScopeVerdict, subject: SubjectMarket, verdict: verdictConfidence},
	Field{Name: "news_count", Scope: ScopeObservation, subject: SubjectNews, obs: newsCount},
	Field{Name: "failed_sources", Scope: ScopeObservation, subject: SubjectSources, obs: failedSources},
)

func buildFieldTable(fields ...Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}

func quoteChange(q models.Quote) float64    { return q.ChangePct }
func quoteAbsChange(q models.Quote) float64 { return math.Abs(q.ChangePct) }
func quotePrice(q models.Quote) float64     { return q.Price }
func quoteVolume(q models.Quote) float64    { return q.Volume }

func verdictSentiment(v *models.Verdict) (float64, bool) { return v.SentimentScore, true }
func verdictLevel(v *models.Verdict) (float64, bool)     { return v.Volatility.Level.Ordinal() }

func verdictConfidence(v *models.Verdict) (float64, bool) {
	if v.Volatility.Confidence == nil {
		return 0, false
	}
	return *v.Volatility.Confidence, true
}

func newsCount(o *models.ObservationSet) float64     { return float64(len(o.News())) }
func failedSources(o *models.ObservationSet) float64 { return float64(len(o.Failures())) }

// LookupField resolves a rule field path. "quote.", "verdict." and "observation."
// prefixes are accepted when they match the field's scope.
func LookupField(path string) (Field, error) {
	name := strings.TrimSpace(path)
	scope := Scope("")
	if i := strings.IndexByte(name, '.'); i >= 0 {
		scope, name = Scope(name[:i]), name[i+1:]
	}
	f, ok := fieldTable[name]
	if !ok {
		return Field{}, fmt.Errorf("unknown field %q", path)
	}
	if scope != "" && scope != f.Scope {
		return Field{}, fmt.Errorf("field %q is not in scope %s", name, scope)
	}
	return f, nil
}

// FieldNames lists the accepted field names.
func FieldNames() []string {
	names := make([]string, 0, len(fieldTable))
	for n := range fieldTable {
		names = append(names, n)
	}
	return names
}

// Resolve reads the field from the tick inputs. A missing input yields no
// values. symbols, when set, restricts quote fields to those symbols.
func (f Field) Resolve(obs *models.ObservationSet, v *models.Verdict, symbols []string) []FieldValue {
	switch f.Scope {
	case ScopeQuote:
		if obs == nil {
			return nil
		}
		var out []FieldValue
		for _, q := range obs.Quotes() {
			if len(symbols) > 0 && !containsFold(symbols, q.Symbol) {
				continue
			}
			out = append(out, FieldValue{Subject: q.Symbol, Value: f.quote(q)})
		}
		return out
	case ScopeVerdict:
		if v == nil {
			return nil
		}
		val, ok := f.verdict(v)
		if !ok {
			return nil
		}
		return []FieldValue{{Subject: f.subject, Value: val}}
	case ScopeObservation:
		if obs == nil {
			return nil
		}
		return []FieldValue{{Subject: f.subject, Value: f.obs(obs)}}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
