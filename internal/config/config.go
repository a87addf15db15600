// Package config loads service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the newsletter service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     EmailConfig     `yaml:"email"`
	Links     LinksConfig     `yaml:"links"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the rate-limiter backend settings. Leaving Addr empty
// disables rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EmailConfig holds the outbound transport settings.
type EmailConfig struct {
	// Transport selects the sender implementation: "api" or "ses".
	Transport string `yaml:"transport"`

	// API transport: JSON POST endpoint and its bearer key.
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`

	// SES transport.
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`

	From            string `yaml:"from"`
	ConfirmSubject  string `yaml:"confirm_subject"`
	FeedbackSubject string `yaml:"feedback_subject"`
}

// LinksConfig holds the redemption URL templates. The confirm and
// unsubscribe templates carry a literal [THUMBPRINT] placeholder.
type LinksConfig struct {
	ConfirmURL     string `yaml:"confirm_url"`
	UnsubscribeURL string `yaml:"unsubscribe_url"`
	SurveyURL      string `yaml:"survey_url"`
	HomepageURL    string `yaml:"homepage_url"`
}

// BroadcastConfig holds the operator-facing settings.
type BroadcastConfig struct {
	// APIToken authorizes the broadcast endpoint.
	APIToken string `yaml:"api_token"`

	// RatePerMinute limits public subscribe/confirm/unsubscribe calls per
	// client IP. Zero falls back to the default.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// Load reads and validates the YAML file at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 30
	}
	if cfg.Email.Transport == "" {
		cfg.Email.Transport = "api"
	}
	if cfg.Email.SESRegion == "" {
		cfg.Email.SESRegion = "us-west-2"
	}
	if cfg.Email.ConfirmSubject == "" {
		cfg.Email.ConfirmSubject = "Please confirm your subscription"
	}
	if cfg.Email.FeedbackSubject == "" {
		cfg.Email.FeedbackSubject = "Sorry to see you go"
	}
	if cfg.Broadcast.RatePerMinute == 0 {
		cfg.Broadcast.RatePerMinute = 10
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML file and layers environment overrides on top.
// A .env file is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EMAIL_API_URL"); v != "" {
		cfg.Email.APIURL = v
	}
	if v := os.Getenv("EMAIL_API_KEY"); v != "" {
		cfg.Email.APIKey = v
	}
	if v := os.Getenv("EMAIL_API_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.SESRegion = v
	}
	if v := os.Getenv("NEWSLETTER_CONFIRM_URL"); v != "" {
		cfg.Links.ConfirmURL = v
	}
	if v := os.Getenv("NEWSLETTER_UNSUBSCRIBE_URL"); v != "" {
		cfg.Links.UnsubscribeURL = v
	}
	if v := os.Getenv("UNSUBSCRIBE_FEEDBACK_URL"); v != "" {
		cfg.Links.SurveyURL = v
	}
	if v := os.Getenv("HOMEPAGE_URL"); v != "" {
		cfg.Links.HomepageURL = v
	}
	if v := os.Getenv("BROADCAST_API_TOKEN"); v != "" {
		cfg.Broadcast.APIToken = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the missing required settings, all at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Email.From == "" {
		missing = append(missing, "email.from")
	}
	if c.Links.ConfirmURL == "" {
		missing = append(missing, "links.confirm_url")
	}
	if c.Links.UnsubscribeURL == "" {
		missing = append(missing, "links.unsubscribe_url")
	}
	switch c.Email.Transport {
	case "api":
		if c.Email.APIURL == "" {
			missing = append(missing, "email.api_url")
		}
	case "ses":
		if c.Email.SESAccessKey == "" {
			missing = append(missing, "email.ses_access_key")
		}
		if c.Email.SESSecretKey == "" {
			missing = append(missing, "email.ses_secret_key")
		}
	default:
		return fmt.Errorf("unknown email transport %q", c.Email.Transport)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
