package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinPulse/pkg/config"
)

// Trigger is a predicate polled by the scheduler. Due advances the trigger
// past now when it returns true, so missed fires are coalesced into one.
type Trigger interface {
	Name() string
	Due(now time.Time) bool
	Next() time.Time
	Digest() bool
}

type IntervalTrigger struct {
	name   string
	every  time.Duration
	digest bool
	next   time.Time
}

// NewIntervalTrigger is first due at start when runOnStart is set, else at
// start+every.
func NewIntervalTrigger(name string, every time.Duration, start time.Time, runOnStart, digest bool) *IntervalTrigger {
	next := start.Add(every)
	if runOnStart {
		next = start
	}
	return &IntervalTrigger{name: name, every: every, digest: digest, next: next}
}

func (t *IntervalTrigger) Name() string    { return t.name }
func (t *IntervalTrigger) Next() time.Time { return t.next }
func (t *IntervalTrigger) Digest() bool    { return t.digest }

func (t *IntervalTrigger) Due(now time.Time) bool {
	if now.Before(t.next) {
		return false
	}
	for !t.next.After(now) {
		t.next = t.next.Add(t.every)
	}
	return true
}

// CronTrigger fires on a standard five-field cron spec in its location.
type CronTrigger struct {
	name     string
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	digest   bool
	next     time.Time
}

func NewCronTrigger(name, spec string, loc *time.Location, start time.Time, runOnStart, digest bool) (*CronTrigger, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	t := &CronTrigger{name: name, spec: spec, schedule: sched, loc: loc, digest: digest}
	t.next = sched.Next(start.In(loc))
	if runOnStart {
		t.next = start
	}
	return t, nil
}

func (t *CronTrigger) Name() string    { return t.name }
func (t *CronTrigger) Next() time.Time { return t.next }
func (t *CronTrigger) Digest() bool    { return t.digest }
func (t *CronTrigger) Spec() string    { return t.spec }

func (t *CronTrigger) Due(now time.Time) bool {
	if now.Before(t.next) {
		return false
	}
	t.next = t.schedule.Next(now.In(t.loc))
	return true
}

// BuildTriggers validates and constructs the configured triggers.
func BuildTriggers(cfgs []config.TriggerConfig, start time.Time) ([]Trigger, error) {
	var (
		out  []Trigger
		errs []error
	)
	seen := map[string]bool{}
	for i, c := range cfgs {
		path := fmt.Sprintf("scheduler.triggers[%d]", i)
		if seen[c.Name] {
			errs = append(errs, config.Invalid(path+".name", "duplicate trigger %q", c.Name))
			continue
		}
		seen[c.Name] = true

		switch {
		case c.Every > 0 && c.Cron != "":
			errs = append(errs, config.Invalid(path, "set either every or cron, not both"))
		case c.Every > 0:
			out = append(out, NewIntervalTrigger(c.Name, c.Every, start, c.RunOnStart, c.Digest))
		case c.Cron != "":
			loc := time.Local
			if c.Timezone != "" {
				l, err := time.LoadLocation(c.Timezone)
				if err != nil {
					errs = append(errs, config.Invalid(path+".timezone", "unknown timezone %q", c.Timezone))
					continue
				}
				loc = l
			}
			t, err := NewCronTrigger(c.Name, c.Cron, loc, start, c.RunOnStart, c.Digest)
			if err != nil {
				errs = append(errs, config.Invalid(path+".cron", "%v", err))
				continue
			}
			out = append(out, t)
		default:
			errs = append(errs, config.Invalid(path, "one of every or cron is required"))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
