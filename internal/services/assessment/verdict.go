package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"FinPulse/internal/domain/models"
)

var validate = validator.New()

type replyVerdict struct {
	SentimentScore *float64         `json:"sentiment_score" validate:"required,gte=-1,lte=1"`
	Volatility     *replyVolatility `json:"volatility_forecast" validate:"required"`
	Confidence     *float64         `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Rationale      string           `json:"rationale" validate:"required"`
}

type replyVolatility struct {
	Level      string   `json:"level" validate:"required,oneof=low medium high"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// UnmarshalJSON also accepts the bare level string form.
func (v *replyVolatility) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &v.Level)
	}
	type plain replyVolatility
	return json.Unmarshal(b, (*plain)(v))
}

// ParseVerdict extracts and validates the JSON verdict in reply. Any failure
// is a *models.MalformedResponseError.
func ParseVerdict(reply string, at time.Time, model string) (*models.Verdict, error) {
	body := extractJSON(reply)
	if body == "" {
		return nil, &models.MalformedResponseError{Reason: "no JSON object in reply", Body: reply}
	}
	var rv replyVerdict
	if err := json.Unmarshal([]byte(body), &rv); err != nil {
		return nil, &models.MalformedResponseError{Reason: "decode: " + err.Error(), Body: reply}
	}
	if rv.Volatility != nil {
		rv.Volatility.Level = strings.ToLower(strings.TrimSpace(rv.Volatility.Level))
	}
	rv.Rationale = strings.TrimSpace(rv.Rationale)
	if err := validate.Struct(rv); err != nil {
		return nil, &models.MalformedResponseError{Reason: describe(err), Body: reply}
	}

	conf := rv.Volatility.Confidence
	if conf == nil {
		conf = rv.Confidence
	}
	return &models.Verdict{
		SentimentScore: *rv.SentimentScore,
		Volatility: models.VolatilityForecast{
			Level:      models.VolatilityLevel(rv.Volatility.Level),
			Confidence: conf,
		},
		Rationale:   rv.Rationale,
		GeneratedAt: at,
		Model:       model,
	}, nil
}

// extractJSON strips code fences and returns the outermost {...} span.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
