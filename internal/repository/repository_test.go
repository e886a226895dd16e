package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/cache"
)

var fired = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func entry(key string, cooldown time.Duration) models.DedupEntry {
	return models.DedupEntry{Key: key, RuleID: "crash", FiredAt: fired, ExpiresAt: fired.Add(cooldown)}
}

// exerciseStore runs the shared DedupStore contract.
func exerciseStore(t *testing.T, s domrepo.DedupStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "crash:BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Record(ctx, entry("crash:BTCUSDT", time.Hour)))
	got, ok, err := s.Lookup(ctx, "crash:BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "crash", got.RuleID)
	assert.True(t, got.FiredAt.Equal(fired))
	assert.True(t, got.ExpiresAt.Equal(fired.Add(time.Hour)))

	require.NoError(t, s.Record(ctx, entry("crash:BTCUSDT", 2*time.Hour)))
	got, _, err = s.Lookup(ctx, "crash:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(fired.Add(2*time.Hour)))

	require.NoError(t, s.Evict(ctx, "crash:BTCUSDT"))
	_, ok, err = s.Lookup(ctx, "crash:BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheDedupStore_Memory(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	s := NewCacheDedupStore(mc, time.Minute)
	defer s.Close()
	exerciseStore(t, s)
}

func TestCacheDedupStore_RedisKeysAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewCacheDedupStore(cache.NewRedisCacheFromClient(client, "finpulse:dedup"), time.Minute)
	defer s.Close()
	exerciseStore(t, s)

	require.NoError(t, s.Record(context.Background(), entry("vol:market", time.Hour)))
	assert.True(t, mr.Exists("finpulse:dedup:vol:market"))
	assert.Equal(t, time.Hour+time.Minute, mr.TTL("finpulse:dedup:vol:market"))
}

type brokenCache struct{ cache.Service }

func (brokenCache) Get(context.Context, string, interface{}) error { return errors.New("conn reset") }

func TestCacheDedupStore_LookupErrorSurfaces(t *testing.T) {
	s := NewCacheDedupStore(brokenCache{}, 0)
	_, ok, err := s.Lookup(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestSQLiteDedupStore(t *testing.T) {
	s, err := OpenSQLiteDedupStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

var testArchiveSchema = []string{`CREATE TABLE ticks (tick_id TEXT, "trigger" TEXT, started_at TIMESTAMP, finished_at TIMESTAMP,
	records INTEGER, failures INTEGER, sentiment_score REAL, volatility TEXT,
	attempts INTEGER, alerts INTEGER, summary TEXT)`,
	`CREATE TABLE alerts (tick_id TEXT, rule_id TEXT, severity TEXT, subject TEXT, field TEXT,
	value REAL, message TEXT, fired_at TIMESTAMP)`,
}

func openArchiveDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	for _, stmt := range testArchiveSchema {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestArchive_SaveTickWithAlerts(t *testing.T) {
	db := openArchiveDB(t)
	a := NewSQLArchive(db, "", nil)
	defer a.Close()

	r := &models.TickReport{
		Tick:       models.TickInfo{ID: "t1", Trigger: "hourly"},
		StartedAt:  fired,
		FinishedAt: fired.Add(3 * time.Second),
		Records:    12,
		Failures:   []models.SourceFailure{{SourceID: "policy", Reason: "timeout"}},
		Verdict:    &models.Verdict{SentimentScore: -0.4, Volatility: models.VolatilityForecast{Level: models.VolatilityHigh}},
		Attempts:   2,
		Alerts: []models.Alert{
			{RuleID: "crash", Severity: models.SeverityCritical, Subject: "BTCUSDT", Field: "change_pct", Value: -7.5, Message: "m1", FiredAt: fired},
			{RuleID: "vol", Severity: models.SeverityWarning, Subject: "market", Field: "volatility", Value: 2, Message: "m2", FiredAt: fired},
		},
		Summary: "Market Snapshot",
	}
	require.NoError(t, a.SaveTick(context.Background(), r))

	var (
		records, failures int
		sentiment         float64
		level             string
	)
	require.NoError(t, db.QueryRow(`SELECT records, failures, sentiment_score, volatility FROM ticks WHERE tick_id = 't1'`).
		Scan(&records, &failures, &sentiment, &level))
	assert.Equal(t, 12, records)
	assert.Equal(t, 1, failures)
	assert.InDelta(t, -0.4, sentiment, 1e-9)
	assert.Equal(t, "high", level)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE tick_id = 't1'`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestArchive_SaveTickWithoutVerdictStoresNull(t *testing.T) {
	db := openArchiveDB(t)
	a := NewSQLArchive(db, "", nil)
	defer a.Close()

	require.NoError(t, a.SaveTick(context.Background(), &models.TickReport{Tick: models.TickInfo{ID: "t2"}}))

	var s sql.NullFloat64
	require.NoError(t, db.QueryRow(`SELECT sentiment_score FROM ticks WHERE tick_id = 't2'`).Scan(&s))
	assert.False(t, s.Valid)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n))
	assert.Zero(t, n)
}

func TestArchive_QualifiesTables(t *testing.T) {
	a := NewSQLArchive(nil, "finpulse", nil)
	assert.Equal(t, "finpulse.ticks", a.ticks)
	assert.Equal(t, "finpulse.alerts", a.alerts)
}
