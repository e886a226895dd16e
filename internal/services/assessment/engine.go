package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/domain/service"
	"FinPulse/pkg/config"
	applogger "FinPulse/pkg/logger"
)

// Outcome is the result of one Assess call.
type Outcome struct {
	Verdict  *models.Verdict
	Attempts int
	Skipped  bool
	Err      error
}

// Sleeper waits d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Engine turns an ObservationSet into a Verdict through the reasoning service.
type Engine struct {
	reasoner    service.Reasoner
	prompt      PromptBuilder
	maxAttempts int
	timeout     time.Duration
	newBackOff  func() backoff.BackOff
	sleep       Sleeper
	now         func() time.Time
	metrics     domrepo.Metrics
	log         *applogger.Logger
}

type Option func(*Engine)

func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithBackOff(f func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = f }
}

// DefaultBackOff is the retry delay schedule: 500ms doubling to 10s, 50% jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func NewEngine(r service.Reasoner, cfg config.LLMConfig, m domrepo.Metrics, log *applogger.Logger, opts ...Option) *Engine {
	e := &Engine{
		reasoner:    r,
		prompt:      PromptBuilder{Keywords: cfg.Keywords, MaxChars: cfg.MaxPromptChars},
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
		newBackOff:  DefaultBackOff,
		sleep:       sleepCtx,
		now:         time.Now,
		metrics:     m,
		log:         log,
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = 1
	}
	if e.timeout <= 0 {
		e.timeout = 60 * time.Second
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess asks for a verdict on obs with history as context. Transient
// failures are retried up to the attempt budget; malformed replies and
// rejections are not. An empty set is skipped without any call.
func (e *Engine) Assess(ctx context.Context, obs *models.ObservationSet, history []*models.ObservationSet) Outcome {
	if obs == nil || obs.Empty() {
		e.metrics.RecordAssessment("skipped", 0)
		return Outcome{Skipped: true, Err: models.ErrNoObservations}
	}
	system, user := e.prompt.Build(obs, history)
	log := e.log.With(applogger.String("tick_id", obs.TickID()), applogger.String("stage", string(models.PhaseAssessing)))

	bo := e.newBackOff()
	bo.Reset()
	var lastErr error
	attempt := 0
	for attempt < e.maxAttempts {
		attempt++
		actx, cancel := context.WithTimeout(ctx, e.timeout)
		reply, err := e.reasoner.Complete(actx, system, user)
		cancel()

		if err == nil {
			v, perr := ParseVerdict(reply, e.now(), e.reasoner.Model())
			if perr == nil {
				e.metrics.RecordAssessment("ok", attempt)
				return Outcome{Verdict: v, Attempts: attempt}
			}
			log.Warn("malformed reasoning reply", applogger.Int("attempt", attempt), applogger.Error(perr))
			return e.fail("malformed", attempt, perr)
		}

		if ctx.Err() != nil {
			return e.fail("canceled", attempt, ctx.Err())
		}
		if models.IsMalformed(err) {
			log.Warn("malformed reasoning reply", applogger.Int("attempt", attempt), applogger.Error(err))
			return e.fail("malformed", attempt, err)
		}
		if errors.Is(err, context.DeadlineExceeded) && !models.IsTransient(err) {
			err = &models.TransientError{Err: err}
		}
		if !models.IsTransient(err) {
			log.Error("reasoning call rejected", applogger.Int("attempt", attempt), applogger.Error(err))
			return e.fail("rejected", attempt, err)
		}
		lastErr = err
		if attempt == e.maxAttempts {
			break
		}
		d := bo.NextBackOff()
		if d == backoff.Stop {
			break
		}
		log.Warn("reasoning call failed, retrying",
			applogger.Int("attempt", attempt),
			applogger.Duration("delay_ms", d),
			applogger.Error(err),
		)
		if err := e.sleep(ctx, d); err != nil {
			return e.fail("canceled", attempt, err)
		}
	}
	log.Error("reasoning attempts exhausted", applogger.Int("attempts", attempt), applogger.Error(lastErr))
	return e.fail("exhausted", attempt, lastErr)
}

func (e *Engine) fail(result string, attempts int, err error) Outcome {
	e.metrics.RecordAssessment(result, attempts)
	return Outcome{Attempts: attempts, Err: &models.AssessmentError{Attempts: attempts, Err: err}}
}
