// Package notify formats alerts and fans them out to the enabled channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/domain/service"
	applogger "FinPulse/pkg/logger"
	"FinPulse/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

// AlertChannel is implemented by channels that carry structured alerts
// instead of the rendered text.
type AlertChannel interface {
	service.Channel
	SendAlerts(ctx context.Context, alerts []models.Alert) error
}

// Sink delivers to every channel concurrently. Channel order has no effect
// on delivery; the report keeps configuration order.
type Sink struct {
	channels []service.Channel
	timeout  time.Duration
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewSink(channels []service.Channel, timeout time.Duration, m domrepo.Metrics, log *applogger.Logger) *Sink {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &Sink{channels: channels, timeout: timeout, metrics: m, log: log.With(applogger.String("component", "notify"))}
}

// Channels returns the channel names in configuration order.
func (s *Sink) Channels() []string {
	names := make([]string, len(s.channels))
	for i, ch := range s.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch sends one message for all alerts. No alerts means no calls.
func (s *Sink) Dispatch(ctx context.Context, alerts []models.Alert) models.DispatchReport {
	if len(alerts) == 0 {
		return models.DispatchReport{}
	}
	text := FormatAlerts(alerts)
	return s.deliver(ctx, func(ctx context.Context, ch service.Channel) error {
		if ac, ok := ch.(AlertChannel); ok {
			return ac.SendAlerts(ctx, alerts)
		}
		return ch.Send(ctx, text)
	})
}

// Send delivers free-form text such as the digest or a test message.
func (s *Sink) Send(ctx context.Context, text string) models.DispatchReport {
	return s.deliver(ctx, func(ctx context.Context, ch service.Channel) error {
		return ch.Send(ctx, text)
	})
}

func (s *Sink) deliver(ctx context.Context, send func(context.Context, service.Channel) error) models.DispatchReport {
	results := make([]models.ChannelResult, len(s.channels))
	var wg sync.WaitGroup
	for i, ch := range s.channels {
		i, ch := i, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.deliverOne(ctx, ch, send)
		}()
	}
	wg.Wait()
	return models.DispatchReport{Results: results}
}

func (s *Sink) deliverOne(ctx context.Context, ch service.Channel, send func(context.Context, service.Channel) error) (res models.ChannelResult) {
	name := ch.Name()
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return send(cctx, ch)
	}()
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
	}

	res = models.ChannelResult{Channel: name, OK: err == nil, Duration: time.Since(start)}
	s.metrics.RecordDispatch(name, res.OK)
	if err != nil {
		de := &models.DispatchError{Channel: name, Err: err}
		res.Err = de
		res.Error = err.Error()
		s.log.Warn("channel delivery failed",
			applogger.String("channel", name),
			applogger.Duration("duration_ms", res.Duration),
			applogger.Error(de),
		)
	}
	return res
}

var severityOrder = []models.Severity{models.SeverityCritical, models.SeverityWarning, models.SeverityInfo}

// FormatAlerts renders alerts as Markdown grouped by severity, most severe first.
func FormatAlerts(alerts []models.Alert) string {
	return formatAlerts(alerts, nil)
}

// formatAlerts applies esc, when set, to each alert message.
func formatAlerts(alerts []models.Alert, esc func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*FinPulse alerts* (%d)\n", len(alerts))
	for _, sev := range severityOrder {
		var group []models.Alert
		for _, a := range alerts {
			if a.Severity == sev {
				group = append(group, a)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(string(sev)))
		for _, a := range group {
			msg := a.Message
			if esc != nil {
				msg = esc(msg)
			}
			fmt.Fprintf(&b, "• %s\n", msg)
		}
	}
	if len(alerts) > 0 {
		fmt.Fprintf(&b, "\n_%s_", alerts[0].FiredAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}
