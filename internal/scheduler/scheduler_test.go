package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/config"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestIntervalTrigger(t *testing.T) {
	tr := NewIntervalTrigger("hourly", time.Hour, start, false, false)
	assert.False(t, tr.Due(start))
	assert.False(t, tr.Due(start.Add(59*time.Minute)))
	assert.True(t, tr.Due(start.Add(time.Hour)))
	assert.False(t, tr.Due(start.Add(time.Hour)))
	assert.Equal(t, start.Add(2*time.Hour), tr.Next())

	// missed fires collapse into one
	assert.True(t, tr.Due(start.Add(5*time.Hour+time.Minute)))
	assert.Equal(t, start.Add(6*time.Hour), tr.Next())
}

func TestIntervalTrigger_RunOnStart(t *testing.T) {
	tr := NewIntervalTrigger("boot", time.Minute, start, true, true)
	assert.True(t, tr.Due(start))
	assert.True(t, tr.Digest())
	assert.Equal(t, start.Add(time.Minute), tr.Next())
}

func TestCronTrigger_Timezone(t *testing.T) {
	sh, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	// 09:00 UTC is 17:00 in Shanghai, so the next 08:00 is tomorrow 00:00 UTC.
	tr, err := NewCronTrigger("morning", "0 8 * * *", sh, start, false, true)
	require.NoError(t, err)
	want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	assert.True(t, tr.Next().Equal(want), tr.Next().String())
	assert.False(t, tr.Due(want.Add(-time.Second)))
	assert.True(t, tr.Due(want))
	assert.True(t, tr.Next().Equal(want.Add(24*time.Hour)))
}

func TestBuildTriggers_Errors(t *testing.T) {
	_, err := BuildTriggers([]config.TriggerConfig{
		{Name: "a", Every: time.Minute},
		{Name: "a", Every: time.Minute},
		{Name: "b"},
		{Name: "c", Every: time.Minute, Cron: "* * * * *"},
		{Name: "d", Cron: "not a cron"},
		{Name: "e", Cron: "0 8 * * *", Timezone: "Mars/Olympus"},
	}, start)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "scheduler.triggers[1].name")
	assert.Contains(t, msg, "scheduler.triggers[2]: one of every or cron is required")
	assert.Contains(t, msg, "scheduler.triggers[3]: set either every or cron")
	assert.Contains(t, msg, "scheduler.triggers[4].cron")
	assert.Contains(t, msg, "scheduler.triggers[5].timezone")

	trs, err := BuildTriggers([]config.TriggerConfig{
		{Name: "fast", Every: time.Minute},
		{Name: "daily", Cron: "0 8 * * *", Timezone: "UTC", Digest: true},
	}, start)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "daily", trs[1].Name())
	assert.True(t, trs[1].Digest())
}

// blockingRunner holds every tick until released.
type blockingRunner struct {
	started chan models.TickInfo
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan models.TickInfo, 10), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, tick models.TickInfo, _ *usecase.State, onPhase func(models.Phase)) (*models.TickReport, error) {
	r.calls.Add(1)
	onPhase(models.PhaseCollecting)
	r.started <- tick
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	onPhase(models.PhaseIdle)
	if r.err != nil {
		return nil, r.err
	}
	return &models.TickReport{Tick: tick, Alerts: []models.Alert{{RuleID: "r", TickID: tick.ID}}}, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func (m *countingMetrics) RecordTick(string, string)         {}
func (m *countingMetrics) RecordStage(string, time.Duration) {}
func (m *countingMetrics) RecordSourceFailure(string)        {}
func (m *countingMetrics) RecordAssessment(string, int)      {}
func (m *countingMetrics) RecordAlert(string, string)        {}
func (m *countingMetrics) RecordDispatch(string, bool)       {}
func (m *countingMetrics) RecordError(string)                {}

func (m *countingMetrics) RecordTriggerDropped(trigger string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = map[string]int{}
	}
	m.dropped[trigger]++
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("t%d", n.Add(1)) }
}

func TestScheduler_DropsTriggerWhileBusy(t *testing.T) {
	runner := newBlockingRunner()
	m := &countingMetrics{}
	s := New(runner, &usecase.State{}, nil, WithMetrics(m), WithIDs(sequentialIDs()), WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := s.Trigger("manual")
		return !errors.Is(err, ErrNotRunning)
	}, time.Second, 5*time.Millisecond)
	tick := <-runner.started
	assert.Equal(t, "t1", tick.ID)
	assert.Equal(t, models.PhaseCollecting, s.Phase())

	_, err := s.Trigger("manual")
	assert.ErrorIs(t, err, ErrBusy)
	m.mu.Lock()
	assert.Equal(t, 1, m.dropped["manual"])
	m.mu.Unlock()

	close(runner.release)
	require.Eventually(t, func() bool { return !s.Busy() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.PhaseIdle, s.Phase())
	require.NotNil(t, s.LastReport())
	assert.Equal(t, "t1", s.LastReport().Tick.ID)
	assert.Len(t, s.RecentAlerts(10), 1)

	cancel()
	assert.NoError(t, <-done)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestScheduler_PollFiresDueTriggers(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	trs := []Trigger{NewIntervalTrigger("boot", time.Hour, start, true, true)}
	s := New(runner, &usecase.State{}, trs, WithClock(func() time.Time { return start }), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	tick := <-runner.started
	assert.Equal(t, "boot", tick.Trigger)
	assert.True(t, tick.Digest)
	assert.True(t, tick.At.Equal(start))

	// the clock is frozen, so the hourly trigger must not fire again
	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Equal(t, []TriggerStatus{{Name: "boot", Next: start.Add(time.Hour), Digest: true}}, s.Triggers())
}

func TestScheduler_InvariantErrorStopsRun(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	runner.err = &models.InvariantError{Stage: "collecting", Detail: "nil set"}
	trs := []Trigger{NewIntervalTrigger("boot", time.Hour, start, true, false)}
	s := New(runner, &usecase.State{}, trs, WithClock(func() time.Time { return start }), WithPollInterval(5*time.Millisecond))

	err := s.Run(context.Background())
	var ie *models.InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "collecting", ie.Stage)
}

func TestScheduler_OtherErrorsKeepRunning(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	runner.err = errors.New("boom")
	trs := []Trigger{NewIntervalTrigger("boot", time.Hour, start, true, false)}
	s := New(runner, &usecase.State{}, trs, WithClock(func() time.Time { return start }), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Nil(t, s.LastReport())
}

func TestScheduler_CancelWaitsForInflightTick(t *testing.T) {
	runner := newBlockingRunner()
	trs := []Trigger{NewIntervalTrigger("boot", time.Hour, start, true, false)}
	s := New(runner, &usecase.State{}, trs, WithClock(func() time.Time { return start }), WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-runner.started
	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
}

func TestScheduler_TriggerAfterStopIsRejected(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s := New(runner, &usecase.State{}, nil, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool {
		_, err := s.Trigger("manual")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	<-runner.started
	cancel()
	require.NoError(t, <-done)

	_, err := s.Trigger("manual")
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.False(t, s.Busy())
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestScheduler_StartRejectsStaleContext(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, &usecase.State{}, nil)

	live, stop := context.WithCancel(context.Background())
	s.mu.Lock()
	s.runCtx = live
	s.mu.Unlock()

	// a context captured from an earlier Run
	_, err := s.start(context.Background(), "manual", false, start)
	assert.ErrorIs(t, err, ErrNotRunning)

	// the current Run is shutting down
	stop()
	_, err = s.start(live, "manual", false, start)
	assert.ErrorIs(t, err, ErrNotRunning)

	assert.False(t, s.Busy())
	s.wg.Wait()
	assert.Zero(t, runner.calls.Load())
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, models.TickInfo, *usecase.State, func(models.Phase)) (*models.TickReport, error) {
	panic("kaboom")
}

func TestScheduler_RunOnceRecoversPanic(t *testing.T) {
	s := New(panicRunner{}, &usecase.State{}, nil)
	_, err := s.RunOnce(context.Background(), "once", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, s.Busy())
	assert.Equal(t, models.PhaseIdle, s.Phase())
}

func TestScheduler_RecentAlertsNewestFirst(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s := New(runner, &usecase.State{}, nil, WithIDs(sequentialIDs()))
	for i := 0; i < 3; i++ {
		_, err := s.RunOnce(context.Background(), "once", false)
		require.NoError(t, err)
		<-runner.started
	}
	got := s.RecentAlerts(2)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].TickID)
	assert.Equal(t, "t2", got[1].TickID)
}
