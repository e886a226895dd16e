package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/config"
	applogger "FinPulse/pkg/logger"
	"FinPulse/pkg/metrics"
)

var at = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func observation(t *testing.T) *models.ObservationSet {
	t.Helper()
	q, err := models.NewQuoteRecord("binance", at, models.Quote{Symbol: "BTCUSDT", Price: 60000, ChangePct: -6.2, Volume: 10})
	require.NoError(t, err)
	n1, err := models.NewNewsRecord("rss", at, models.News{Title: "美联储 signals rate cut", PublishedAt: at.Add(-time.Hour)})
	require.NoError(t, err)
	n2, err := models.NewNewsRecord("pbc", at, models.News{Title: "央行 cuts RRR", BodySummary: "降息 expected", PublishedAt: at})
	require.NoError(t, err)
	dup, err := models.NewNewsRecord("rss2", at, models.News{Title: "央行 cuts RRR", PublishedAt: at.Add(-2 * time.Hour)})
	require.NoError(t, err)
	return models.NewObservationSet("t1", at, []models.SourceRecord{q, n1, n2, dup}, nil)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantErr   bool
		wantLevel models.VolatilityLevel
		wantConf  *float64
	}{
		{
			name:      "fenced with confidence",
			reply:     "```json\n{\"sentiment_score\":-0.4,\"volatility_forecast\":{\"level\":\"High\",\"confidence\":0.7},\"rationale\":\"Rate path\"}\n```",
			wantLevel: models.VolatilityHigh,
			wantConf:  ptr(0.7),
		},
		{
			name:      "prose around json, bare level, top-level confidence",
			reply:     `Here you go: {"sentiment_score":0.1,"volatility_forecast":"low","confidence":0.2,"rationale":"calm"} thanks`,
			wantLevel: models.VolatilityLow,
			wantConf:  ptr(0.2),
		},
		{
			name:      "confidence omitted",
			reply:     `{"sentiment_score":0,"volatility_forecast":{"level":"medium"},"rationale":"mixed"}`,
			wantLevel: models.VolatilityMedium,
		},
		{name: "missing volatility", reply: `{"sentiment_score":0.5,"rationale":"x"}`, wantErr: true},
		{name: "score out of range", reply: `{"sentiment_score":1.5,"volatility_forecast":"low","rationale":"x"}`, wantErr: true},
		{name: "unknown level", reply: `{"sentiment_score":0,"volatility_forecast":"extreme","rationale":"x"}`, wantErr: true},
		{name: "confidence out of range", reply: `{"sentiment_score":0,"volatility_forecast":{"level":"low","confidence":2},"rationale":"x"}`, wantErr: true},
		{name: "missing score", reply: `{"volatility_forecast":"low","rationale":"x"}`, wantErr: true},
		{name: "empty rationale", reply: `{"sentiment_score":0,"volatility_forecast":"low","rationale":"  "}`, wantErr: true},
		{name: "not json", reply: "The market looks bullish.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.reply, at, "m")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsMalformed(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, v.Volatility.Level)
			assert.Equal(t, tt.wantConf, v.Volatility.Confidence)
			assert.Equal(t, at, v.GeneratedAt)
			assert.Equal(t, "m", v.Model)
		})
	}
}

func ptr(f float64) *float64 { return &f }

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestHistory_DropsOldest(t *testing.T) {
	h := NewHistory(2)
	for _, id := range []string{"a", "b", "c"} {
		h.Push(models.NewObservationSet(id, at, nil, nil))
	}
	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].TickID())
	assert.Equal(t, "c", snap[1].TickID())

	zero := NewHistory(0)
	zero.Push(models.NewObservationSet("x", at, nil, nil))
	assert.Equal(t, 0, zero.Len())
}

func TestKeywordTrends(t *testing.T) {
	got := KeywordTrends(observation(t).News(), nil)
	require.NotEmpty(t, got)
	assert.Equal(t, KeywordCount{Keyword: "央行", Count: 2}, got[0])
	assert.Contains(t, got, KeywordCount{Keyword: "降息", Count: 1})
	assert.Contains(t, got, KeywordCount{Keyword: "rate cut", Count: 1})
}

func TestPromptBuilder_Sections(t *testing.T) {
	prev, _ := models.NewQuoteRecord("binance", at.Add(-time.Hour), models.Quote{Symbol: "BTCUSDT", Price: 1, ChangePct: 1.5})
	history := []*models.ObservationSet{models.NewObservationSet("t0", at.Add(-time.Hour), []models.SourceRecord{prev}, nil)}

	system, user := PromptBuilder{}.Build(observation(t), history)
	assert.Contains(t, system, "volatility_forecast")
	assert.Contains(t, user, "[binance] BTCUSDT: 60000.00 -6.20%")
	assert.Contains(t, user, "## Keyword trends")
	assert.Contains(t, user, "BTCUSDT +1.50%")
	assert.Equal(t, 1, strings.Count(user, "央行 cuts RRR"))
	// newest headline first
	assert.Less(t, strings.Index(user, "央行 cuts RRR"), strings.Index(user, "美联储 signals"))
}

func TestPromptBuilder_CapTrimsHistoryFirst(t *testing.T) {
	var history []*models.ObservationSet
	for i := 0; i < 40; i++ {
		q, _ := models.NewQuoteRecord("binance", at, models.Quote{Symbol: "BTCUSDT", Price: 1, ChangePct: float64(i)})
		history = append(history, models.NewObservationSet("h", at, []models.SourceRecord{q}, nil))
	}
	obs := observation(t)
	_, full := PromptBuilder{MaxChars: 100000}.Build(obs, history)
	_, capped := PromptBuilder{MaxChars: len([]rune(full)) - 200}.Build(obs, history)

	assert.Less(t, len([]rune(capped)), len([]rune(full)))
	assert.Contains(t, capped, "央行 cuts RRR")
	assert.NotContains(t, capped, "BTCUSDT +0.00%")
}

type fakeReasoner struct {
	mu      sync.Mutex
	replies []result
	calls   int
}

type result struct {
	reply string
	err   error
}

func (f *fakeReasoner) Model() string { return "fake" }

func (f *fakeReasoner) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.replies[f.calls]
	f.calls++
	return r.reply, r.err
}

const goodReply = `{"sentiment_score":-0.6,"volatility_forecast":{"level":"high","confidence":0.8},"rationale":"sell-off"}`

func newTestEngine(r *fakeReasoner, attempts int, sleeps *[]time.Duration) *Engine {
	cfg := config.LLMConfig{MaxAttempts: attempts, Timeout: time.Second}
	return NewEngine(r, cfg, metrics.Nop{}, applogger.Nop(),
		WithClock(func() time.Time { return at }),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		}),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }),
	)
}

func TestEngine_RetriesTransientThenSucceeds(t *testing.T) {
	r := &fakeReasoner{replies: []result{
		{err: &models.TransientError{Err: errors.New("502")}},
		{err: &models.TransientError{Err: errors.New("429")}},
		{reply: goodReply},
	}}
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(context.Background(), observation(t), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, sleeps, 2)
	assert.Equal(t, models.VolatilityHigh, out.Verdict.Volatility.Level)
	assert.Equal(t, "fake", out.Verdict.Model)
}

func TestEngine_ExhaustsAttempts(t *testing.T) {
	e := &models.TransientError{Err: errors.New("503")}
	r := &fakeReasoner{replies: []result{{err: e}, {err: e}, {err: e}}}
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(context.Background(), observation(t), nil)

	var ae *models.AssessmentError
	require.True(t, errors.As(out.Err, &ae))
	assert.Equal(t, 3, ae.Attempts)
	assert.True(t, models.IsTransient(out.Err))
	assert.Len(t, sleeps, 2)
	assert.Nil(t, out.Verdict)
}

func TestEngine_MalformedIsNotRetried(t *testing.T) {
	r := &fakeReasoner{replies: []result{{reply: `{"sentiment_score":0.1}`}, {reply: goodReply}}}
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(context.Background(), observation(t), nil)
	assert.True(t, models.IsMalformed(out.Err))
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, r.calls)
}

func TestEngine_RejectionIsNotRetried(t *testing.T) {
	r := &fakeReasoner{replies: []result{{err: errors.New("status 401")}, {reply: goodReply}}}
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(context.Background(), observation(t), nil)
	require.Error(t, out.Err)
	assert.False(t, models.IsTransient(out.Err))
	assert.Equal(t, 1, r.calls)
	assert.Empty(t, sleeps)
}

func TestEngine_EmptySetSkipsWithoutCalls(t *testing.T) {
	r := &fakeReasoner{}
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(context.Background(), models.NewObservationSet("t", at, nil, nil), nil)
	assert.True(t, out.Skipped)
	assert.ErrorIs(t, out.Err, models.ErrNoObservations)
	assert.Equal(t, 0, r.calls)
}

func TestEngine_ParentCancelStops(t *testing.T) {
	r := &fakeReasoner{replies: []result{{err: context.Canceled}, {reply: goodReply}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sleeps []time.Duration
	out := newTestEngine(r, 3, &sleeps).Assess(ctx, observation(t), nil)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, r.calls)
}

func TestOpenAIReasoner_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "deepseek-chat", req["model"])
		assert.InDelta(t, 0.3, req["temperature"], 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + jsonString(goodReply) + `}}]}`))
	}))
	defer srv.Close()

	r := NewOpenAIReasoner(config.LLMConfig{Provider: "deepseek", APIKey: "sk-test", BaseURL: srv.URL, Temperature: 0.3, MaxTokens: 100}, srv.Client())
	reply, err := r.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, goodReply, reply)
	assert.Equal(t, "deepseek-chat", r.Model())
}

func TestOpenAIReasoner_Classification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusRequestTimeout, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			}))
			defer srv.Close()

			r := NewOpenAIReasoner(config.LLMConfig{Provider: "compatible", Model: "m", BaseURL: srv.URL, MaxTokens: 10}, srv.Client())
			_, err := r.Complete(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Equal(t, tt.transient, models.IsTransient(err))
		})
	}
}

func TestAnthropicReasoner_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":` + jsonString(goodReply) + `}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	r := NewAnthropicReasoner(config.LLMConfig{Provider: "anthropic", APIKey: "ak-test", BaseURL: srv.URL, MaxTokens: 100}, srv.Client())
	reply, err := r.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, goodReply, reply)
	assert.Equal(t, "claude-sonnet-4-5", r.Model())
}

func TestAnthropicReasoner_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer srv.Close()

	r := NewAnthropicReasoner(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, MaxTokens: 10}, srv.Client())
	_, err := r.Complete(context.Background(), "s", "u")
	assert.True(t, models.IsTransient(err))
}
