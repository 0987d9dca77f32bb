package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env        string `yaml:"env" env:"FOCUSROOM_ENV"`
	LogLevel   string `yaml:"log_level" env:"FOCUSROOM_LOG_LEVEL"`
	APIBaseURL string `yaml:"api_base_url" env:"FOCUSROOM_API_BASE_URL"`
	WSURL      string `yaml:"ws_url" env:"FOCUSROOM_WS_URL"`
	Token      string `yaml:"token" env:"FOCUSROOM_TOKEN"`

	// TokenTransport is "header" or "query".
	TokenTransport       string        `yaml:"token_transport" env:"FOCUSROOM_TOKEN_TRANSPORT"`
	RequestTimeout       time.Duration `yaml:"request_timeout" env:"FOCUSROOM_REQUEST_TIMEOUT"`
	PingInterval         time.Duration `yaml:"ping_interval" env:"FOCUSROOM_PING_INTERVAL"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" env:"FOCUSROOM_CONNECT_TIMEOUT"`
	BackoffBase          time.Duration `yaml:"backoff_base" env:"FOCUSROOM_BACKOFF_BASE"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"FOCUSROOM_MAX_RECONNECT_ATTEMPTS"`
	TickInterval         time.Duration `yaml:"tick_interval" env:"FOCUSROOM_TICK_INTERVAL"`

	NATSURL             string `yaml:"nats_url" env:"FOCUSROOM_NATS_URL"`
	NotificationSubject string `yaml:"notification_subject" env:"FOCUSROOM_NOTIFICATION_SUBJECT"`
	StatusAddr          string `yaml:"status_addr" env:"FOCUSROOM_STATUS_ADDR"`
}

func Default() *Config {
	return &Config{
		Env:                  "production",
		LogLevel:             "info",
		APIBaseURL:           "https://api.monitus.io",
		WSURL:                "wss://api.monitus.io/ws",
		TokenTransport:       "header",
		RequestTimeout:       30 * time.Second,
		PingInterval:         54 * time.Second,
		ConnectTimeout:       10 * time.Second,
		BackoffBase:          time.Second,
		MaxReconnectAttempts: 5,
		TickInterval:         time.Second,
		NotificationSubject:  "focusroom.notifications",
	}
}

// Load layers defaults, the optional YAML file at path and the environment,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := checkURL(c.APIBaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("api_base_url: %w", err))
	}
	if err := checkURL(c.WSURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("ws_url: %w", err))
	}
	if c.TokenTransport != "header" && c.TokenTransport != "query" {
		errs = append(errs, fmt.Errorf("token_transport must be header or query, got %q", c.TokenTransport))
	}
	for name, d := range map[string]time.Duration{
		"request_timeout": c.RequestTimeout,
		"ping_interval":   c.PingInterval,
		"connect_timeout": c.ConnectTimeout,
		"backoff_base":    c.BackoffBase,
		"tick_interval":   c.TickInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("max_reconnect_attempts must not be negative"))
	}
	if c.NATSURL != "" && c.NotificationSubject == "" {
		errs = append(errs, errors.New("notification_subject is required with nats_url"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %v URL", raw, schemes)
}
