package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/domain/service"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	pkgkafka "FinPulse/pkg/kafka"
	applogger "FinPulse/pkg/logger"
)

// BrowserUA is sent to providers that reject non-browser clients.
const BrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Deps are shared by the adapters Build creates.
type Deps struct {
	HTTP   *xhttp.Client
	Logger *applogger.Logger
	Now    func() time.Time
	Kafka  config.KafkaConfig
}

func (d *Deps) fill() {
	if d.HTTP == nil {
		d.HTTP = xhttp.NewClient(xhttp.WithUserAgent(BrowserUA))
	}
	if d.Logger == nil {
		d.Logger = applogger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Kind reports the record kind a source type produces.
func Kind(sourceType string) models.Kind {
	switch sourceType {
	case "rss", "policy":
		return models.KindNews
	default:
		return models.KindQuote
	}
}

// Validate checks per-type requirements and id uniqueness.
func Validate(cfgs []config.SourceConfig) error {
	seen := make(map[string]int, len(cfgs))
	var errs []error
	for i, c := range cfgs {
		path := fmt.Sprintf("sources[%d]", i)
		if j, dup := seen[c.ID]; dup {
			errs = append(errs, config.Invalid(path+".id", "duplicates sources[%d].id %q", j, c.ID))
		}
		seen[c.ID] = i
		switch c.Type {
		case "binance", "stock", "stream":
			if len(c.Symbols) == 0 {
				errs = append(errs, config.Invalid(path+".symbols", "at least one symbol is required for type %s", c.Type))
			}
		case "rss", "policy":
			if c.URL == "" {
				errs = append(errs, config.Invalid(path+".url", "is required for type %s", c.Type))
			}
		case "kafka":
			if c.Topic == "" {
				errs = append(errs, config.Invalid(path+".topic", "is required for type kafka"))
			}
		}
	}
	return errors.Join(errs...)
}

// Build creates the guarded adapter for one source config.
func Build(c config.SourceConfig, deps Deps) (service.Source, error) {
	deps.fill()
	log := deps.Logger.With(applogger.String("source", c.ID))
	var s service.Source
	switch c.Type {
	case "binance":
		s = NewBinance(c.ID, c.BaseURL, c.Symbols, deps.HTTP, deps.Now, log)
	case "stock":
		s = NewStock(c.ID, c.BaseURL, c.Symbols, deps.HTTP, deps.Now, log)
	case "rss":
		s = NewRSS(c.ID, c.URL, c.MaxItems, c.MaxAge, deps.HTTP.HTTPClient(), deps.Now)
	case "policy":
		s = NewPolicy(c.ID, c.URL, c.Selectors, c.MaxItems, c.MaxAge, deps.HTTP, deps.Now)
	case "stream":
		s = NewStream(c.ID, c.URL, c.Symbols, deps.Now, log)
	case "kafka":
		r, err := pkgkafka.NewReader(c.Topic,
			pkgkafka.WithReaderBrokers(deps.Kafka.Brokers),
			pkgkafka.WithGroup(deps.Kafka.Consumer.GroupID),
			pkgkafka.WithFetchBytes(deps.Kafka.Consumer.MinBytes, deps.Kafka.Consumer.MaxBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", c.ID, err)
		}
		s = NewKafkaQuotes(c.ID, r, c.Symbols, kafkaMaxMessages, deps.Now)
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", c.ID, c.Type)
	}
	return Guard(s), nil
}

// Guard converts panics and untyped errors from s into *models.FetchError.
func Guard(s service.Source) service.Source {
	if _, ok := s.(guarded); ok {
		return s
	}
	return guarded{s}
}

type guarded struct {
	service.Source
}

func (g guarded) Fetch(ctx context.Context) (recs []models.SourceRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			recs = nil
			err = &models.FetchError{SourceID: g.ID(), Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	recs, err = g.Source.Fetch(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.FetchError{SourceID: g.ID(), Reason: "timeout", Err: err}
		}
		return nil, models.NewFetchError(g.ID(), err)
	}
	return recs, nil
}

// symbolFailures collects per-symbol errors of a quote adapter.
type symbolFailures map[string]string

func (f symbolFailures) add(symbol string, err error) {
	f[symbol] = err.Error()
}

func (f symbolFailures) String() string {
	parts := make([]string, 0, len(f))
	for sym, reason := range f {
		parts = append(parts, sym+": "+reason)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// finishQuotes applies the partial failure rule: some records win, none is an error.
func finishQuotes(id string, recs []models.SourceRecord, failed symbolFailures, log *applogger.Logger) ([]models.SourceRecord, error) {
	if len(failed) == 0 {
		return recs, nil
	}
	if len(recs) == 0 {
		return nil, &models.FetchError{SourceID: id, Reason: "all symbols failed: " + failed.String()}
	}
	log.Warn("some symbols failed",
		applogger.Int("ok", len(recs)),
		applogger.Int("failed", len(failed)),
		applogger.String("details", failed.String()),
	)
	return recs, nil
}
