package models

import (
	"fmt"
	"time"
)

// Operator is a rule comparison.
type Operator string

const (
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// ParseOperator accepts the symbolic forms and their lt/le/gt/ge/eq/ne names.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "<", "lt":
		return OpLT, nil
	case "<=", "le", "lte":
		return OpLE, nil
	case ">", "gt":
		return OpGT, nil
	case ">=", "ge", "gte":
		return OpGE, nil
	case "==", "=", "eq":
		return OpEQ, nil
	case "!=", "ne":
		return OpNE, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Compare applies the operator as value <op> threshold.
func (op Operator) Compare(value, threshold float64) bool {
	switch op {
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case "":
		return SeverityWarning, nil
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// AlertRule is a compiled rule; read-only at run time.
type AlertRule struct {
	ID        string
	Field     string
	Op        Operator
	Threshold float64
	Cooldown  time.Duration
	Severity  Severity
	Symbols   []string // optional filter for quote fields
	Message   string   // optional prefix for the alert text
}

// Alert is one fired rule for one subject.
type Alert struct {
	RuleID   string    `json:"rule_id"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	FiredAt  time.Time `json:"fired_at"`
	DedupKey string    `json:"dedup_key"`
	Subject  string    `json:"subject"`
	Field    string    `json:"field"`
	Value    float64   `json:"value"`
	TickID   string    `json:"tick_id"`
}

// DedupKey joins a rule id with the affected subject.
func DedupKey(ruleID, subject string) string {
	return ruleID + ":" + subject
}

// DedupEntry suppresses repeats of Key until ExpiresAt.
type DedupEntry struct {
	Key       string    `json:"key"`
	RuleID    string    `json:"rule_id"`
	FiredAt   time.Time `json:"fired_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the entry no longer suppresses at now.
// The entry stops suppressing exactly at ExpiresAt.
func (e DedupEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ChannelResult is the delivery outcome for one channel.
type ChannelResult struct {
	Channel  string        `json:"channel"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

type DispatchReport struct {
	Results []ChannelResult `json:"results"`
}

// Result returns the outcome for a channel by name.
func (r DispatchReport) Result(channel string) (ChannelResult, bool) {
	for _, res := range r.Results {
		if res.Channel == channel {
			return res, true
		}
	}
	return ChannelResult{}, false
}

func (r DispatchReport) Failed() []ChannelResult {
	var out []ChannelResult
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

func (r DispatchReport) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}
