package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks          *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	sourceFailures *prometheus.CounterVec
	assessments    *prometheus.CounterVec
	attempts       prometheus.Histogram
	alerts         *prometheus.CounterVec
	dispatch       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// Default returns the process-wide recorder, registering it on first use.
var Default = sync.OnceValue(New)

// NewWithRegistry registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_ticks_total",
				Help: "Pipeline ticks by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finpulse_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		sourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_source_failures_total",
				Help: "Failed source fetches",
			},
			[]string{"source"},
		),
		assessments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_assessment_attempts_total",
				Help: "Reasoning service calls by final result",
			},
			[]string{"result"},
		),
		attempts: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finpulse_assessment_attempts",
				Help:    "Attempts used per assessment",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_alerts_total",
				Help: "Rule matches by result (fired or suppressed)",
			},
			[]string{"rule", "result"},
		),
		dispatch: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_dispatch_total",
				Help: "Channel deliveries by result",
			},
			[]string{"channel", "result"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_triggers_dropped_total",
				Help: "Triggers dropped because a tick was in progress",
			},
			[]string{"trigger"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordTick(trigger, outcome string) {
	r.ticks.WithLabelValues(trigger, outcome).Inc()
}

func (r *Recorder) RecordStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) RecordSourceFailure(source string) {
	r.sourceFailures.WithLabelValues(source).Inc()
}

// RecordAssessment counts one assessment; attempts may be zero when skipped.
func (r *Recorder) RecordAssessment(result string, attempts int) {
	r.assessments.WithLabelValues(result).Add(float64(attempts))
	r.attempts.Observe(float64(attempts))
}

func (r *Recorder) RecordAlert(rule, result string) {
	r.alerts.WithLabelValues(rule, result).Inc()
}

func (r *Recorder) RecordDispatch(channel string, ok bool) {
	r.dispatch.WithLabelValues(channel, result(ok)).Inc()
}

func (r *Recorder) RecordTriggerDropped(trigger string) {
	r.dropped.WithLabelValues(trigger).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Nop satisfies the same interface and records nothing.
type Nop struct{}

func (Nop) RecordTick(string, string)         {}
func (Nop) RecordStage(string, time.Duration) {}
func (Nop) RecordSourceFailure(string)        {}
func (Nop) RecordAssessment(string, int)      {}
func (Nop) RecordAlert(string, string)        {}
func (Nop) RecordDispatch(string, bool)       {}
func (Nop) RecordTriggerDropped(string)       {}
func (Nop) RecordError(string)                {}

