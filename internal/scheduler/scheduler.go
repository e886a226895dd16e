// Package scheduler drives ticks from triggers. At most one tick runs at a
// time; a trigger that fires while a tick is running is dropped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/usecase"
	applogger "FinPulse/pkg/logger"
	"FinPulse/pkg/metrics"
)

const (
	defaultPoll  = 5 * time.Second
	recentAlerts = 200
)

var (
	ErrBusy       = errors.New("a tick is already running")
	ErrNotRunning = errors.New("scheduler is not running")
)

// Runner executes one tick; *usecase.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, tick models.TickInfo, state *usecase.State, onPhase func(models.Phase)) (*models.TickReport, error)
}

// TriggerStatus is a read-only view for the status API.
type TriggerStatus struct {
	Name   string    `json:"name"`
	Next   time.Time `json:"next"`
	Digest bool      `json:"digest"`
}

type Option func(*Scheduler)

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithIDs(gen func() string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

type Scheduler struct {
	runner   Runner
	state    *usecase.State
	triggers []Trigger
	poll     time.Duration
	now      func() time.Time
	newID    func() string
	metrics  domrepo.Metrics
	log      *applogger.Logger

	mu     sync.Mutex
	runCtx context.Context
	busy   bool
	phase  models.Phase
	last   *models.TickReport
	alerts []models.Alert

	fatal chan error
	wg    sync.WaitGroup
}

func New(runner Runner, state *usecase.State, triggers []Trigger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		state:    state,
		triggers: triggers,
		poll:     defaultPoll,
		now:      time.Now,
		newID:    uuid.NewString,
		metrics:  metrics.Nop{},
		log:      applogger.Nop(),
		phase:    models.PhaseIdle,
		fatal:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(applogger.String("component", "scheduler"))
	return s
}

// Run polls the triggers until ctx is cancelled or a tick reports an
// invariant violation. It waits for the in-flight tick before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.runCtx = ctx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runCtx = nil
		s.mu.Unlock()
		s.wg.Wait()
	}()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.log.Info("scheduler started", applogger.Int("triggers", len(s.triggers)), applogger.Duration("poll_ms", s.poll))
	s.pollTriggers(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return nil
		case err := <-s.fatal:
			s.log.Error("scheduler stopped on invariant violation", applogger.Error(err))
			return err
		case <-ticker.C:
			s.pollTriggers(ctx, s.now())
		}
	}
}

func (s *Scheduler) pollTriggers(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []Trigger
	for _, t := range s.triggers {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		_, _ = s.start(ctx, t.Name(), t.Digest(), now)
	}
}

// Trigger starts a tick out of schedule, for the status API. It follows the
// same drop rule as scheduled triggers.
func (s *Scheduler) Trigger(name string) (string, error) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return "", ErrNotRunning
	}
	if name == "" {
		name = "manual"
	}
	return s.start(ctx, name, false, s.now())
}

// RunOnce runs a single tick synchronously.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string, digest bool) (*models.TickReport, error) {
	if !s.acquire(trigger) {
		return nil, ErrBusy
	}
	return s.runTick(ctx, models.TickInfo{ID: s.newID(), Trigger: trigger, At: s.now(), Digest: digest})
}

func (s *Scheduler) acquire(trigger string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireLocked(trigger)
}

func (s *Scheduler) acquireLocked(trigger string) bool {
	if s.busy {
		s.metrics.RecordTriggerDropped(trigger)
		s.log.Debug("trigger dropped: tick in progress", applogger.String("trigger", trigger))
		return false
	}
	s.busy = true
	return true
}

// start launches a background tick bound to ctx. The run check, the busy
// flag and wg.Add share one critical section so Run cannot return between them.
func (s *Scheduler) start(ctx context.Context, trigger string, digest bool, at time.Time) (string, error) {
	s.mu.Lock()
	if s.runCtx != ctx || ctx.Err() != nil {
		s.mu.Unlock()
		return "", ErrNotRunning
	}
	if !s.acquireLocked(trigger) {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.wg.Add(1)
	s.mu.Unlock()
	tick := models.TickInfo{ID: s.newID(), Trigger: trigger, At: at, Digest: digest}
	go func() {
		defer s.wg.Done()
		if _, err := s.runTick(ctx, tick); err != nil {
			var ie *models.InvariantError
			if errors.As(err, &ie) {
				select {
				case s.fatal <- err:
				default:
				}
			}
		}
	}()
	return tick.ID, nil
}

func (s *Scheduler) runTick(ctx context.Context, tick models.TickInfo) (report *models.TickReport, err error) {
	log := s.log.With(applogger.String("tick_id", tick.ID), applogger.String("trigger", tick.Trigger))
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("panic")
			log.Error("tick panicked", applogger.String("stage", string(s.Phase())), applogger.Any("panic", r))
			report, err = nil, fmt.Errorf("tick %s panicked: %v", tick.ID, r)
		}
		s.mu.Lock()
		s.busy = false
		s.phase = models.PhaseIdle
		if report != nil {
			s.last = report
			s.alerts = append(s.alerts, report.Alerts...)
			if n := len(s.alerts); n > recentAlerts {
				s.alerts = append([]models.Alert(nil), s.alerts[n-recentAlerts:]...)
			}
		}
		s.mu.Unlock()
	}()

	log.Debug("tick starting")
	report, err = s.runner.Run(ctx, tick, s.state, s.setPhase)
	if err != nil {
		log.Error("tick aborted", applogger.Error(err))
	}
	return report, err
}

func (s *Scheduler) setPhase(p models.Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// LastReport returns the most recent finished tick, or nil.
func (s *Scheduler) LastReport() *models.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Scheduler) RecentAlerts(limit int) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	out := make([]models.Alert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.alerts[i])
	}
	return out
}

func (s *Scheduler) Triggers() []TriggerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TriggerStatus, len(s.triggers))
	for i, t := range s.triggers {
		out[i] = TriggerStatus{Name: t.Name(), Next: t.Next(), Digest: t.Digest()}
	}
	return out
}
