package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/services/assessment"
	applogger "FinPulse/pkg/logger"
)

// State survives between ticks. Ticks never overlap, so it is not locked.
type State struct {
	Dedup   domrepo.DedupStore
	Limiter *ratelimit.Limiter
	History *assessment.History
}

// Notifier delivers alerts and free-form messages to every channel.
type Notifier interface {
	Dispatch(ctx context.Context, alerts []models.Alert) models.DispatchReport
	Send(ctx context.Context, text string) models.DispatchReport
}

// Pipeline runs one tick: collect, assess, evaluate, dispatch.
type Pipeline struct {
	collector *Collector
	engine    *assessment.Engine
	rules     *RuleEngine
	notifier  Notifier
	archive   domrepo.Archive
	keywords  []string
	dryRun    bool
	now       func() time.Time
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

type PipelineOption func(*Pipeline)

// WithAssessment enables the reasoning stage; without it verdict rules never fire.
func WithAssessment(e *assessment.Engine) PipelineOption {
	return func(p *Pipeline) { p.engine = e }
}

func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

func WithArchive(a domrepo.Archive) PipelineOption {
	return func(p *Pipeline) { p.archive = a }
}

func WithKeywords(kw []string) PipelineOption {
	return func(p *Pipeline) { p.keywords = kw }
}

// WithDryRun evaluates rules but sends nothing.
func WithDryRun(dry bool) PipelineOption {
	return func(p *Pipeline) { p.dryRun = dry }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(c *Collector, rules *RuleEngine, m domrepo.Metrics, log *applogger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{collector: c, rules: rules, now: time.Now, metrics: m, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one tick. Stage faults end up in the report's warnings; the
// error is reserved for invariant violations, which stop the run loop.
func (p *Pipeline) Run(ctx context.Context, tick models.TickInfo, state *State, onPhase func(models.Phase)) (*models.TickReport, error) {
	if onPhase == nil {
		onPhase = func(models.Phase) {}
	}
	defer onPhase(models.PhaseIdle)
	if state == nil {
		return nil, &models.InvariantError{Stage: "pipeline", Detail: "nil tick state"}
	}
	log := p.log.With(applogger.String("tick_id", tick.ID), applogger.String("trigger", tick.Trigger))
	report := &models.TickReport{Tick: tick, StartedAt: p.now()}

	onPhase(models.PhaseCollecting)
	start := p.now()
	obs := p.collector.Collect(ctx, tick.ID, tick.At, state.Limiter)
	p.metrics.RecordStage("collect", p.now().Sub(start))
	if obs == nil {
		return nil, &models.InvariantError{Stage: string(models.PhaseCollecting), Detail: "collector returned nil observation set"}
	}
	report.Observation = obs
	report.Records = obs.Len()
	report.Quotes = len(obs.Quotes())
	report.News = len(obs.News())
	report.Failures = obs.Failures()
	for _, f := range report.Failures {
		report.Warn(fmt.Sprintf("source %s unavailable: %s", f.SourceID, f.Reason))
	}

	if p.cancelled(ctx, report, log, models.PhaseCollecting) {
		return report, nil
	}

	onPhase(models.PhaseAssessing)
	var verdict *models.Verdict
	if p.engine != nil {
		start = p.now()
		var history []*models.ObservationSet
		if state.History != nil {
			history = state.History.Snapshot()
		}
		out := p.engine.Assess(ctx, obs, history)
		p.metrics.RecordStage("assess", p.now().Sub(start))
		report.Attempts = out.Attempts
		switch {
		case out.Skipped:
			report.Warn("assessment skipped: no observations")
		case out.Err != nil:
			report.Warn("assessment failed: " + out.Err.Error())
			log.Error("assessment failed", applogger.String("stage", string(models.PhaseAssessing)), applogger.Error(out.Err))
		default:
			verdict = out.Verdict
			report.Verdict = verdict
		}
	}
	if p.cancelled(ctx, report, log, models.PhaseAssessing) {
		return report, nil
	}
	if state.History != nil {
		state.History.Push(obs)
	}

	onPhase(models.PhaseEvaluating)
	start = p.now()
	dedup := state.Dedup
	if p.dryRun && dedup != nil {
		dedup = newDryRunDedup(dedup)
	}
	alerts := p.rules.Evaluate(ctx, dedup, obs, verdict, p.now())
	p.metrics.RecordStage("evaluate", p.now().Sub(start))
	report.Alerts = alerts
	report.Summary = Summary(obs, verdict, p.collector.Groups(), p.keywords)

	onPhase(models.PhaseDispatching)
	if !p.dryRun && p.notifier != nil {
		start = p.now()
		if len(alerts) > 0 {
			rep := p.notifier.Dispatch(ctx, alerts)
			report.Dispatch = &rep
			p.warnDispatch(report, log, rep)
		}
		if tick.Digest {
			rep := p.notifier.Send(ctx, DigestText(report))
			report.Digest = &rep
			p.warnDispatch(report, log, rep)
		}
		p.metrics.RecordStage("dispatch", p.now().Sub(start))
	}
	report.FinishedAt = p.now()

	if p.archive != nil {
		if err := p.archive.SaveTick(ctx, report); err != nil {
			report.Warn("archive: " + err.Error())
			p.metrics.RecordError("archive")
			log.Error("archive failed", applogger.String("stage", "archive"), applogger.Error(err))
		}
	}

	p.metrics.RecordTick(tick.Trigger, outcome(report))
	log.Info("tick finished",
		applogger.Int("records", report.Records),
		applogger.Int("failures", len(report.Failures)),
		applogger.Int("alerts", len(report.Alerts)),
		applogger.Bool("verdict", report.Verdict != nil),
		applogger.Duration("duration_ms", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// cancelled ends the tick before rules run, so a shutdown never starts
// cooldowns for alerts it could not deliver.
func (p *Pipeline) cancelled(ctx context.Context, report *models.TickReport, log *applogger.Logger, stage models.Phase) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	report.Warn(fmt.Sprintf("tick cancelled during %s: %v", stage, err))
	report.FinishedAt = p.now()
	p.metrics.RecordTick(report.Tick.Trigger, "cancelled")
	log.Warn("tick cancelled", applogger.String("stage", string(stage)), applogger.Error(err))
	return true
}

func (p *Pipeline) warnDispatch(report *models.TickReport, log *applogger.Logger, rep models.DispatchReport) {
	for _, res := range rep.Failed() {
		report.Warn(fmt.Sprintf("channel %s failed: %s", res.Channel, res.Error))
		log.Warn("dispatch failed",
			applogger.String("stage", string(models.PhaseDispatching)),
			applogger.String("channel", res.Channel),
			applogger.String("error", res.Error),
		)
	}
}

func outcome(r *models.TickReport) string {
	switch {
	case !r.Produced():
		return "empty"
	case len(r.Warnings) > 0:
		return "degraded"
	}
	return "ok"
}
