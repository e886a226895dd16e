package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/config"
	applogger "FinPulse/pkg/logger"
)

// CompileRules validates raw rules and turns them into AlertRules. Errors name
// the offending path, for example rules[2].field.
func CompileRules(raw []config.Rule) ([]models.AlertRule, error) {
	var (
		out  = make([]models.AlertRule, 0, len(raw))
		errs []error
		ids  = make(map[string]int, len(raw))
	)
	for i, r := range raw {
		path := fmt.Sprintf("rules[%d]", i)
		id := strings.TrimSpace(r.ID)
		if id == "" {
			errs = append(errs, config.Invalid(path+".id", "is required"))
		} else if j, dup := ids[id]; dup {
			errs = append(errs, config.Invalid(path+".id", "duplicates rules[%d].id %q", j, id))
		} else {
			ids[id] = i
		}
		field, err := LookupField(r.Field)
		if err != nil {
			errs = append(errs, config.Invalid(path+".field", "%v", err))
		}
		op, err := models.ParseOperator(strings.TrimSpace(r.Op))
		if err != nil {
			errs = append(errs, config.Invalid(path+".op", "%v", err))
		}
		sev, err := models.ParseSeverity(r.Severity)
		if err != nil {
			errs = append(errs, config.Invalid(path+".severity", "%v", err))
		}
		if r.Cooldown <= 0 {
			errs = append(errs, config.Invalid(path+".cooldown", "must be greater than 0"))
		}
		if len(r.Symbols) > 0 && field.Scope != ScopeQuote && field.Name != "" {
			errs = append(errs, config.Invalid(path+".symbols", "only applies to quote fields"))
		}
		out = append(out, models.AlertRule{
			ID:        id,
			Field:     field.Name,
			Op:        op,
			Threshold: r.Threshold,
			Cooldown:  r.Cooldown,
			Severity:  sev,
			Symbols:   r.Symbols,
			Message:   r.Message,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// RuleEngine evaluates compiled rules against one tick's inputs and applies
// cooldown dedup.
type RuleEngine struct {
	rules   []models.AlertRule
	fields  []Field
	metrics domrepo.Metrics
	log     *applogger.Logger
}

// NewRuleEngine expects rules from CompileRules.
func NewRuleEngine(rules []models.AlertRule, m domrepo.Metrics, log *applogger.Logger) *RuleEngine {
	fields := make([]Field, len(rules))
	for i, r := range rules {
		fields[i], _ = LookupField(r.Field)
	}
	return &RuleEngine{rules: rules, fields: fields, metrics: m, log: log}
}

func (e *RuleEngine) Rules() []models.AlertRule {
	return append([]models.AlertRule(nil), e.rules...)
}

// Evaluate returns the alerts that fire at now. Every rule sees the same
// inputs; a missing input skips the rule. Dedup failures fail open.
func (e *RuleEngine) Evaluate(ctx context.Context, store domrepo.DedupStore, obs *models.ObservationSet, verdict *models.Verdict, now time.Time) []models.Alert {
	var alerts []models.Alert
	for i, rule := range e.rules {
		f := e.fields[i]
		if f.Name == "" {
			continue
		}
		for _, fv := range f.Resolve(obs, verdict, rule.Symbols) {
			if !rule.Op.Compare(fv.Value, rule.Threshold) {
				continue
			}
			key := models.DedupKey(rule.ID, fv.Subject)
			if e.suppressed(ctx, store, rule, key, now) {
				e.metrics.RecordAlert(rule.ID, "suppressed")
				continue
			}
			alert := models.Alert{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Message:  alertMessage(rule, fv),
				FiredAt:  now,
				DedupKey: key,
				Subject:  fv.Subject,
				Field:    rule.Field,
				Value:    fv.Value,
			}
			if obs != nil {
				alert.TickID = obs.TickID()
			}
			if store != nil {
				err := store.Record(ctx, models.DedupEntry{
					Key:       key,
					RuleID:    rule.ID,
					FiredAt:   now,
					ExpiresAt: now.Add(rule.Cooldown),
				})
				if err != nil {
					e.dedupFault(err, rule.ID, key, "record")
				}
			}
			e.metrics.RecordAlert(rule.ID, "fired")
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// suppressed reports whether a live entry holds key. Expired entries are
// evicted here.
func (e *RuleEngine) suppressed(ctx context.Context, store domrepo.DedupStore, rule models.AlertRule, key string, now time.Time) bool {
	if store == nil {
		return false
	}
	entry, found, err := store.Lookup(ctx, key)
	if err != nil {
		e.dedupFault(err, rule.ID, key, "lookup")
		return false
	}
	if !found {
		return false
	}
	if !entry.ExpiredAt(now) {
		return true
	}
	if err := store.Evict(ctx, key); err != nil {
		e.dedupFault(err, rule.ID, key, "evict")
	}
	return false
}

func (e *RuleEngine) dedupFault(err error, ruleID, key, op string) {
	e.metrics.RecordError("dedup")
	e.log.Error("dedup store failed",
		applogger.String("stage", string(models.PhaseEvaluating)),
		applogger.String("rule", ruleID),
		applogger.String("key", key),
		applogger.String("op", op),
		applogger.Error(err),
	)
}

func alertMessage(rule models.AlertRule, fv FieldValue) string {
	prefix := rule.Message
	if prefix == "" {
		prefix = rule.ID
	}
	return fmt.Sprintf("%s: %s %s %.2f %s %.2f", prefix, fv.Subject, rule.Field, fv.Value, rule.Op, rule.Threshold)
}
