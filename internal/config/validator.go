package config

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct {
	cronParser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		// Gemini keys have no stable prefix across key types
	default:
		return fmt.Errorf("unknown provider %s (must be: anthropic, openai, gemini)", provider)
	}

	return nil
}

// ValidateDriver validates the database driver name
func (v *Validator) ValidateDriver(driver string) error {
	switch driver {
	case "sqlite3", "sqlite":
		return nil
	}
	return fmt.Errorf("invalid database driver: %s (must be one of: sqlite3, sqlite)", driver)
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateEmail validates a single email address
func (v *Validator) ValidateEmail(address string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return fmt.Errorf("invalid email address %q: %w", address, err)
	}
	return nil
}

// ValidateSchedule validates a cron schedule or descriptor such as @daily
func (v *Validator) ValidateSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("archive schedule cannot be empty")
	}
	if _, err := v.cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation, collecting every problem
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Agent.Validate(); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if cfg.Models.Default == "" {
		errors = append(errors, fmt.Errorf("models.default is required"))
	}

	for provider, key := range cfg.Providers.Keys() {
		if err := v.ValidateAPIKey(key, provider); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateDriver(cfg.Database.Driver); err != nil {
		errors = append(errors, err)
	}

	for _, sender := range cfg.Email.AllowedSenders {
		if err := v.ValidateEmail(sender); err != nil {
			errors = append(errors, fmt.Errorf("email.allowed_senders: %w", err))
		}
	}
	if cfg.Email.SendRetries < 0 {
		errors = append(errors, fmt.Errorf("email.send_retries must be >= 0"))
	}
	if cfg.Email.SendsPerSecond <= 0 {
		errors = append(errors, fmt.Errorf("email.sends_per_second must be positive"))
	}

	if cfg.Archive.Enabled {
		if err := v.ValidateSchedule(cfg.Archive.Schedule); err != nil {
			errors = append(errors, err)
		}
		if cfg.Archive.IdleDays <= 0 {
			errors = append(errors, fmt.Errorf("archive.idle_days must be positive, got %d", cfg.Archive.IdleDays))
		}
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.RateLimitPerMinute <= 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit_per_minute must be positive, got %d", cfg.Server.RateLimitPerMinute))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
