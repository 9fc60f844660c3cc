package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Service struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"service"`
	Supervisor struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		Concurrency     int `yaml:"concurrency"`
	} `yaml:"supervisor"`
	Retry struct {
		MaxAttempts int            `yaml:"max_attempts"`
		BaseDelayMS map[string]int `yaml:"base_delay_ms"`
	} `yaml:"retry"`
	Review        ReviewConfig       `yaml:"review"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// ReviewConfig holds the pass criteria applied to soft-launch results.
type ReviewConfig struct {
	MinQualityScore       float64 `yaml:"min_quality_score"`
	MinAvgResponseSeconds float64 `yaml:"min_avg_response_seconds"`
	SpeederSeconds        float64 `yaml:"speeder_seconds"`
	MaxSpeederRatio       float64 `yaml:"max_speeder_ratio"`
	MaxFlaggedRatio       float64 `yaml:"max_flagged_ratio"`
}

type NotificationConfig struct {
	RateLimitPerMinute int             `yaml:"rate_limit_per_minute"`
	Banner             ChannelToggle   `yaml:"banner"`
	Desktop            ChannelToggle   `yaml:"desktop"`
	Email              EmailConfig     `yaml:"email"`
	Webhooks           []WebhookConfig `yaml:"webhooks"`
}

type ChannelToggle struct {
	Enabled bool `yaml:"enabled"`
}

type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPAddr string   `yaml:"smtp_addr"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Operations that accept a retry base delay.
var Operations = []string{"start", "progress", "monitor", "pause", "results", "promote"}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.BaseURL != "" {
		u, err := url.Parse(c.Service.BaseURL)
		if err != nil {
			return fmt.Errorf("service.base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("service.base_url must use http or https")
		}
	}
	if c.Service.TimeoutSeconds < 0 {
		return fmt.Errorf("service.timeout_seconds must not be negative")
	}
	if c.Supervisor.IntervalSeconds < 0 {
		return fmt.Errorf("supervisor.interval_seconds must not be negative")
	}
	if c.Supervisor.Concurrency < 0 {
		return fmt.Errorf("supervisor.concurrency must not be negative")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10 (0 keeps the default)")
	}
	for op, ms := range c.Retry.BaseDelayMS {
		if !knownOperation(op) {
			return fmt.Errorf("retry.base_delay_ms has unknown operation %s", op)
		}
		if ms < 0 {
			return fmt.Errorf("retry.base_delay_ms.%s must not be negative", op)
		}
	}
	if c.Review.MinQualityScore < 0 || c.Review.MinQualityScore > 100 {
		return fmt.Errorf("review.min_quality_score must be between 0 and 100")
	}
	for name, ratio := range map[string]float64{
		"max_speeder_ratio": c.Review.MaxSpeederRatio,
		"max_flagged_ratio": c.Review.MaxFlaggedRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("review.%s must be between 0 and 1", name)
		}
	}
	if c.Notifications.RateLimitPerMinute < 0 {
		return fmt.Errorf("notifications.rate_limit_per_minute must not be negative")
	}
	if e := c.Notifications.Email; e.Enabled {
		if e.SMTPAddr == "" {
			return fmt.Errorf("notifications.email.smtp_addr is required when email is enabled")
		}
		if e.From == "" || len(e.To) == 0 {
			return fmt.Errorf("notifications.email requires from and to")
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("notifications.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			switch evt {
			case "started", "paused", "promoted", "error":
			default:
				return fmt.Errorf("notifications.webhooks[%d] has unknown event %s", i, evt)
			}
		}
	}
	return nil
}

func knownOperation(op string) bool {
	for _, known := range Operations {
		if op == known {
			return true
		}
	}
	return false
}

// Interval returns the supervisor polling interval.
func (c *Config) Interval() time.Duration {
	if c.Supervisor.IntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Supervisor.IntervalSeconds) * time.Second
}

// BaseDelay returns the retry base delay for op, or fallback when unset.
func (c *Config) BaseDelay(op string, fallback time.Duration) time.Duration {
	if ms, ok := c.Retry.BaseDelayMS[op]; ok {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// Timeout returns the HTTP timeout for the project service.
func (c *Config) Timeout() time.Duration {
	if c.Service.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("http://127.0.0.1:8080/v0"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
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

const defaultTemplate = `service:
  base_url: %s
  timeout_seconds: 10

supervisor:
  interval_seconds: 10
  concurrency: 8

retry:
  max_attempts: 3
  base_delay_ms:
    start: 300
    progress: 200
    monitor: 200
    pause: 150
    results: 250
    promote: 200

review:
  min_quality_score: 70
  min_avg_response_seconds: 60
  speeder_seconds: 30
  max_speeder_ratio: 0.1
  max_flagged_ratio: 0.05

notifications:
  rate_limit_per_minute: 30
  banner:
    enabled: true
  desktop:
    enabled: false
  email:
    enabled: false
  webhooks: []
`
