package models

import (
	"fmt"
	"time"
)

type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityMedium VolatilityLevel = "medium"
	VolatilityHigh   VolatilityLevel = "high"
)

// Ordinal maps the level onto 0..2 so rules can compare it numerically.
func (l VolatilityLevel) Ordinal() (float64, bool) {
	switch l {
	case VolatilityLow:
		return 0, true
	case VolatilityMedium:
		return 1, true
	case VolatilityHigh:
		return 2, true
	default:
		return 0, false
	}
}

// ParseVolatilityLevel accepts low, medium and high.
func ParseVolatilityLevel(s string) (VolatilityLevel, error) {
	l := VolatilityLevel(s)
	if _, ok := l.Ordinal(); !ok {
		return "", fmt.Errorf("unknown volatility level %q", s)
	}
	return l, nil
}

type VolatilityForecast struct {
	Level      VolatilityLevel `json:"level"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// Verdict is the reasoning service's validated judgment for one tick.
type Verdict struct {
	SentimentScore float64            `json:"sentiment_score"` // -1..1
	Volatility     VolatilityForecast `json:"volatility_forecast"`
	Rationale      string             `json:"rationale"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Model          string             `json:"model,omitempty"`
}
