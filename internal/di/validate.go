package di

import (
	"errors"
	"time"

	"FinPulse/internal/scheduler"
	"FinPulse/internal/service/source"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/config"
)

// ValidateConfig runs the domain checks that struct tags cannot express:
// per-type source requirements, rule compilation and trigger parsing.
// Structural validation already happened in config.Load.
func ValidateConfig(cfg *config.Config) error {
	var errs []error
	if err := source.Validate(cfg.Sources); err != nil {
		errs = append(errs, err)
	}
	if len(cfg.EnabledSources()) == 0 {
		errs = append(errs, config.Invalid("sources", "at least one enabled source is required"))
	}
	if _, err := usecase.CompileRules(cfg.Rules); err != nil {
		errs = append(errs, err)
	}
	if _, err := scheduler.BuildTriggers(cfg.Scheduler.Triggers, time.Now()); err != nil {
		errs = append(errs, err)
	}
	if !cfg.LLM.Disabled {
		if cfg.LLM.APIKey == "" {
			errs = append(errs, config.Invalid("llm.api_key", "is required unless llm.disabled is set"))
		}
		if cfg.LLM.Provider == "compatible" && cfg.LLM.BaseURL == "" {
			errs = append(errs, config.Invalid("llm.base_url", "is required for the compatible provider"))
		}
	}
	if cfg.Notifications.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		errs = append(errs, config.Invalid("kafka.brokers", "is required when notifications.kafka is enabled"))
	}
	for i, s := range cfg.Sources {
		if s.Type == "kafka" && len(cfg.Kafka.Brokers) == 0 {
			errs = append(errs, config.Invalid("kafka.brokers", "is required by sources[%d]", i))
		}
	}
	return errors.Join(errs...)
}
