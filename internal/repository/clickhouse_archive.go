package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	pkgch "FinPulse/pkg/clickhouse"
	applogger "FinPulse/pkg/logger"
)

// ClickHouseArchive appends tick summaries and fired alerts for dashboards.
type ClickHouseArchive struct {
	db     *sql.DB
	ticks  string
	alerts string
	l      *applogger.Logger
}

func NewClickHouseArchive(ch *pkgch.Client, database string, l *applogger.Logger) *ClickHouseArchive {
	return NewSQLArchive(ch.DB(), database, l)
}

// NewSQLArchive works on any database/sql handle with the archive tables.
// An empty database uses unqualified table names.
func NewSQLArchive(db *sql.DB, database string, l *applogger.Logger) *ClickHouseArchive {
	qualify := func(t string) string {
		if database == "" {
			return t
		}
		return database + "." + t
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseArchive{db: db, ticks: qualify("ticks"), alerts: qualify("alerts"), l: l}
}

func (a *ClickHouseArchive) SaveTick(ctx context.Context, r *models.TickReport) error {
	var (
		sentiment interface{}
		level     string
	)
	if r.Verdict != nil {
		sentiment = r.Verdict.SentimentScore
		level = string(r.Verdict.Volatility.Level)
	}
	q := fmt.Sprintf(`INSERT INTO %s (tick_id, "trigger", started_at, finished_at, records, failures, sentiment_score, volatility, attempts, alerts, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.ticks)
	_, err := a.db.ExecContext(ctx, q,
		r.Tick.ID,
		r.Tick.Trigger,
		r.StartedAt,
		r.FinishedAt,
		uint32(r.Records),
		uint32(len(r.Failures)),
		sentiment,
		level,
		uint8(r.Attempts),
		uint32(len(r.Alerts)),
		r.Summary,
	)
	if err != nil {
		a.l.Error("archive tick insert failed", applogger.String("tick_id", r.Tick.ID), applogger.Error(err))
		return fmt.Errorf("insert tick: %w", err)
	}
	if len(r.Alerts) == 0 {
		return nil
	}

	values := make([]string, 0, len(r.Alerts))
	args := make([]interface{}, 0, len(r.Alerts)*8)
	for _, al := range r.Alerts {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Tick.ID,
			al.RuleID,
			string(al.Severity),
			al.Subject,
			al.Field,
			al.Value,
			al.Message,
			al.FiredAt,
		)
	}
	q = fmt.Sprintf("INSERT INTO %s (tick_id, rule_id, severity, subject, field, value, message, fired_at) VALUES %s",
		a.alerts, strings.Join(values, ","))
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		a.l.Error("archive alert insert failed", applogger.String("tick_id", r.Tick.ID), applogger.Int("alerts", len(r.Alerts)), applogger.Error(err))
		return fmt.Errorf("insert alerts: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) Close() error {
	return a.db.Close()
}

var _ domrepo.Archive = (*ClickHouseArchive)(nil)
