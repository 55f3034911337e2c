package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alexdong/quinn/internal/logger"
	"github.com/alexdong/quinn/pkg/models"
)

// Config represents the main Quinn configuration
type Config struct {
	// Agent defaults applied to every response generation
	Agent models.AgentConfig `json:"agent" mapstructure:"agent"`

	// Models
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Provider API keys
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// System prompts
	Prompts PromptsConfig `json:"prompts" mapstructure:"prompts"`

	// Postmark email channel
	Email EmailConfig `json:"email" mapstructure:"email"`

	// Webhook / JSON API server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Conversation archiving
	Archive ArchiveConfig `json:"archive" mapstructure:"archive"`

	// Response cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Logging
	Logging logger.Config `json:"logging" mapstructure:"logging"`

	// Editor used for CLI input
	Editor string `json:"editor" mapstructure:"editor"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ModelsConfig holds model selection
type ModelsConfig struct {
	Default string `json:"default" mapstructure:"default"`
}

// ProvidersConfig holds LLM provider credentials
type ProvidersConfig struct {
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
	GeminiAPIKey    string `json:"gemini_api_key" mapstructure:"gemini_api_key"`
}

// Keys returns the configured keys by provider name
func (p ProvidersConfig) Keys() map[string]string {
	keys := make(map[string]string)
	if p.AnthropicAPIKey != "" {
		keys["anthropic"] = p.AnthropicAPIKey
	}
	if p.OpenAIAPIKey != "" {
		keys["openai"] = p.OpenAIAPIKey
	}
	if p.GeminiAPIKey != "" {
		keys["gemini"] = p.GeminiAPIKey
	}
	return keys
}

// DatabaseConfig selects the SQLite driver and file
type DatabaseConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `json:"path" mapstructure:"path"`
}

// PromptsConfig locates versioned system prompts
type PromptsConfig struct {
	Dir     string `json:"dir" mapstructure:"dir"`
	Version string `json:"version" mapstructure:"version"`
	Watch   bool   `json:"watch" mapstructure:"watch"`
}

// EmailConfig holds Postmark settings
type EmailConfig struct {
	FromAddress    string   `json:"from_address" mapstructure:"from_address"`
	InboundToken   string   `json:"inbound_token" mapstructure:"inbound_token"`
	ServerToken    string   `json:"server_token" mapstructure:"server_token"`
	AllowedSenders []string `json:"allowed_senders" mapstructure:"allowed_senders"`
	APIEndpoint    string   `json:"api_endpoint" mapstructure:"api_endpoint"`
	SendRetries    int      `json:"send_retries" mapstructure:"send_retries"`
	SendsPerSecond float64  `json:"sends_per_second" mapstructure:"sends_per_second"`
}

// ServerConfig holds webhook server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	HandlerTimeout     int    `json:"handler_timeout" mapstructure:"handler_timeout"` // seconds
	// AllowAPIReset enables POST /api/reset for loopback clients
	AllowAPIReset bool `json:"allow_api_reset" mapstructure:"allow_api_reset"`
	// TrustProxyHeaders makes the rate limiter key on X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool `json:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ArchiveConfig controls the idle conversation archiver
type ArchiveConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
	IdleDays int    `json:"idle_days" mapstructure:"idle_days"`
}

// CacheConfig toggles the in-memory response cache
type CacheConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: models.DefaultAgentConfig(),
		Models: ModelsConfig{
			Default: "claude-sonnet-4",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
		},
		Prompts: PromptsConfig{
			Version: "latest",
			Watch:   true,
		},
		Email: EmailConfig{
			FromAddress:    "quinn@quinn.email",
			APIEndpoint:    "https://api.postmarkapp.com/email",
			SendRetries:    3,
			SendsPerSecond: 5,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RateLimitPerMinute: 60,
			HandlerTimeout:     120,
		},
		Archive: ArchiveConfig{
			Enabled:  true,
			Schedule: "@daily",
			IdleDays: 30,
		},
		Cache: CacheConfig{
			Enabled: false,
		},
		Logging: logger.DefaultConfig(),
		Editor:  "vim",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
