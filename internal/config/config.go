// Package config loads and validates the voxbridge configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for voxbridge.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	AI       AIConfig       `yaml:"ai"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Email    EmailConfig    `yaml:"email"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TwilioConfig holds telephony provider settings. WebhookBaseURL is the
// publicly reachable base used inside generated TwiML action URLs.
type TwilioConfig struct {
	AuthToken        string `yaml:"auth_token"`
	WebhookBaseURL   string `yaml:"webhook_base_url"`
	Voice            string `yaml:"voice"`
	Language         string `yaml:"language"`
	VerifySignatures bool   `yaml:"verify_signatures"`
}

// AIConfig selects and configures the hosted language model gateway.
type AIConfig struct {
	// Provider is "openrouter" (default) or "anthropic".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	AppName  string `yaml:"app_name"`
	SiteURL  string `yaml:"site_url"`
}

// SessionConfig controls call session lifecycle.
type SessionConfig struct {
	// IdleTimeoutMinutes is the inactivity threshold after which a session
	// is reclaimed by the background sweep.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`

	// SweepIntervalSeconds is how often the expiry sweep runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// ConfidenceThreshold is the minimum speech recognition confidence
	// accepted before a transcript is forwarded to the AI gateway.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// IdleTimeout returns the session inactivity threshold as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweep cadence as a duration.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" is accepted for tests.
	Path string `yaml:"path"`
}

type EmailConfig struct {
	AutoReply       bool   `yaml:"auto_reply"`
	ReplyFrom       string `yaml:"reply_from"`
	ReplySubjectTag string `yaml:"reply_subject_tag"`
}

// Load reads a YAML config file, expanding ${VAR} environment references,
// and applies defaults and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Twilio.WebhookBaseURL == "" {
		c.Twilio.WebhookBaseURL = "http://localhost:3000"
	}
	if c.Twilio.Voice == "" {
		c.Twilio.Voice = "Polly.Joanna"
	}
	if c.Twilio.Language == "" {
		c.Twilio.Language = "en-US"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openrouter"
	}
	if c.Session.IdleTimeoutMinutes == 0 {
		c.Session.IdleTimeoutMinutes = 30
	}
	if c.Session.SweepIntervalSeconds == 0 {
		c.Session.SweepIntervalSeconds = 60
	}
	if c.Session.ConfidenceThreshold == 0 {
		c.Session.ConfidenceThreshold = 0.5
	}
	if c.Database.Path == "" {
		c.Database.Path = "voxbridge.db"
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	switch c.AI.Provider {
	case "openrouter", "anthropic":
	default:
		return fmt.Errorf("config: unknown ai provider %q", c.AI.Provider)
	}
	if c.Session.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("config: idle_timeout_minutes must not be negative")
	}
	if c.Session.ConfidenceThreshold < 0 || c.Session.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence_threshold must be within [0, 1]")
	}
	if c.Twilio.VerifySignatures && c.Twilio.AuthToken == "" {
		return fmt.Errorf("config: verify_signatures requires twilio auth_token")
	}
	return nil
}
