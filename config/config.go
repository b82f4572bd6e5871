// Package config loads the pubmux server configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/pubmux/broker"
)

// TopicPlaceholder in a route's forward topic is replaced by the topic of
// the publish being forwarded.
const TopicPlaceholder = "{topic}"

// Config is the top-level server configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	Broker        BrokerConfig  `yaml:"broker"`
	Subscriptions []string      `yaml:"subscriptions"`
	Routes        []Route       `yaml:"routes"`
	Logging       LoggingConfig `yaml:"logging"`
	Auth          AuthConfig    `yaml:"auth"`
	Session       SessionConfig `yaml:"session"`
}

// BrokerConfig selects a registered broker plugin and configures it.
type BrokerConfig struct {
	Name          string `yaml:"name"`
	broker.Config `yaml:",inline"`
}

// Route forwards publishes whose topic matches Pattern to the broker.
// Forward is the destination topic; empty keeps the original topic.
type Route struct {
	Pattern string `yaml:"pattern"`
	Forward string `yaml:"forward"`
}

// Mapper returns the topic rewrite for this route.
func (r Route) Mapper() func(string) string {
	switch {
	case r.Forward == "":
		return func(t string) string { return t }
	case strings.Contains(r.Forward, TopicPlaceholder):
		return func(t string) string { return strings.ReplaceAll(r.Forward, TopicPlaceholder, t) }
	default:
		fixed := r.Forward
		return func(string) string { return fixed }
	}
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// AuthConfig enables token checks on client connects when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// SessionConfig tunes per-session dispatch.
type SessionConfig struct {
	ReadyInterval time.Duration `yaml:"ready_interval"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	MaxInFlight   int           `yaml:"max_in_flight"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen: ":1883",
		Broker: BrokerConfig{
			Name: "nats",
			Config: broker.Config{
				Brokers: []string{"nats://localhost:4222"},
				Group:   "pubmux",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			ReadyInterval: 5 * time.Millisecond,
			ReadyTimeout:  5 * time.Second,
			MaxInFlight:   16,
		},
	}
}

// Load reads configuration from path, if given, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("pubmux/config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("pubmux/config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pubmux/config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PUBMUX_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PUBMUX_BROKER"); v != "" {
		cfg.Broker.Name = v
	}
	if v := os.Getenv("PUBMUX_BROKERS"); v != "" {
		cfg.Broker.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PUBMUX_GROUP"); v != "" {
		cfg.Broker.Group = v
	}
	if v := os.Getenv("PUBMUX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PUBMUX_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PUBMUX_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PUBMUX_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxInFlight = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.Broker.Name == "" {
		return fmt.Errorf("broker name cannot be empty")
	}
	for i, r := range c.Routes {
		if r.Pattern == "" {
			return fmt.Errorf("route %d: pattern cannot be empty", i)
		}
	}
	if c.Session.MaxInFlight < 1 {
		return fmt.Errorf("session max_in_flight must be at least 1")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return nil
}

// NewLogger builds a slog.Logger writing to w as configured.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level: %s", s)
	}
	return level, nil
}

// String returns a summary of the configuration for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Listen: %s, Broker: %s, Routes: %d, Subscriptions: %d, LogLevel: %s}",
		c.Listen, c.Broker.Name, len(c.Routes), len(c.Subscriptions), c.Logging.Level)
}
