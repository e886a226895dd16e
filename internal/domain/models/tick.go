package models

import "time"

// Phase is the tick state machine position.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCollecting  Phase = "collecting"
	PhaseAssessing   Phase = "assessing"
	PhaseEvaluating  Phase = "evaluating"
	PhaseDispatching Phase = "dispatching"
)

// TickInfo identifies one tick.
type TickInfo struct {
	ID      string    `json:"id"`
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at"`
	Digest  bool      `json:"digest"`
}

// TickReport summarizes one pipeline run.
type TickReport struct {
	Tick        TickInfo        `json:"tick"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Records     int             `json:"records"`
	Quotes      int             `json:"quotes"`
	News        int             `json:"news"`
	Failures    []SourceFailure `json:"failures,omitempty"`
	Verdict     *Verdict        `json:"verdict,omitempty"`
	Attempts    int             `json:"assessment_attempts"`
	Alerts      []Alert         `json:"alerts,omitempty"`
	Dispatch    *DispatchReport `json:"dispatch,omitempty"`
	Digest      *DispatchReport `json:"digest,omitempty"`
	Summary     string          `json:"summary"`
	Warnings    []string        `json:"warnings,omitempty"`
	Observation *ObservationSet `json:"-"`
}

// Produced reports whether the tick yielded any usable output.
func (r *TickReport) Produced() bool {
	return r != nil && (r.Records > 0 || r.Verdict != nil)
}

func (r *TickReport) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
