package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models oppline.yml.
type Config struct {
	Validation ValidationConfig `yaml:"validation"`
	Auth       AuthSettings     `yaml:"auth"`
	Webhooks   []WebhookConfig  `yaml:"webhooks"`
}

// ValidationConfig carries the tunable business thresholds.
type ValidationConfig struct {
	ProblemStatementMinLength int   `yaml:"problem_statement_min_length"`
	ReactivationWindowDays    int   `yaml:"reactivation_window_days"`
	MaxAttachmentBytes        int64 `yaml:"max_attachment_bytes"`
}

type AuthSettings struct {
	AllowActorHeader bool `yaml:"allow_actor_header"`
}

// WebhookConfig is one downstream consumer of lifecycle events, typically a
// matching or notification system.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	defaultProblemStatementMinLength = 100
	defaultReactivationWindowDays    = 90
	defaultMaxAttachmentBytes        = 20 << 20
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Validation: ValidationConfig{
			ProblemStatementMinLength: defaultProblemStatementMinLength,
			ReactivationWindowDays:    defaultReactivationWindowDays,
			MaxAttachmentBytes:        defaultMaxAttachmentBytes,
		},
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Validation.ProblemStatementMinLength < 0 {
		return fmt.Errorf("config.validation.problem_statement_min_length must not be negative")
	}
	if c.Validation.ReactivationWindowDays <= 0 {
		return fmt.Errorf("config.validation.reactivation_window_days must be positive")
	}
	if c.Validation.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("config.validation.max_attachment_bytes must be positive")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event filter entry", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "oppline.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Unset thresholds
// take the built-in defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Validation = ValidationConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Validation.ProblemStatementMinLength == 0 {
		cfg.Validation.ProblemStatementMinLength = defaultProblemStatementMinLength
	}
	if cfg.Validation.ReactivationWindowDays == 0 {
		cfg.Validation.ReactivationWindowDays = defaultReactivationWindowDays
	}
	if cfg.Validation.MaxAttachmentBytes == 0 {
		cfg.Validation.MaxAttachmentBytes = defaultMaxAttachmentBytes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns commented default config YAML for opp config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `validation:
  # Minimum problem statement description length required at submission.
  problem_statement_min_length: 100
  # Days after cancellation during which an opportunity can be reactivated.
  reactivation_window_days: 90
  # Largest accepted attachment, in bytes.
  max_attachment_bytes: 20971520

auth:
  # Accept the X-Actor-Id header without credentials. Development only.
  allow_actor_header: false

webhooks: []
  # - url: https://matching.internal/hooks/oppline
  #   secret: change-me
  #   events: [opportunity.submitted, opportunity.status.changed]
  #   timeout_seconds: 5
`
