package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pubmux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":1883", cfg.Listen)
	assert.Equal(t, "nats", cfg.Broker.Name)
	assert.Equal(t, 16, cfg.Session.MaxInFlight)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
listen: ":9000"
broker:
  name: kafka
  brokers: ["k1:9092", "k2:9092"]
  group: ingest
  extra:
    start_offset: first
subscriptions: ["commands/#"]
routes:
  - pattern: "sensors/{id}/temp"
    forward: "telemetry.{topic}"
  - pattern: "#"
logging:
  level: debug
  format: json
session:
  ready_interval: 2ms
  ready_timeout: 1s
  max_in_flight: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "kafka", cfg.Broker.Name)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "ingest", cfg.Broker.Group)
	assert.Equal(t, "first", cfg.Broker.Extra["start_offset"])
	assert.Equal(t, []string{"commands/#"}, cfg.Subscriptions)
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, "sensors/{id}/temp", cfg.Routes[0].Pattern)
	assert.Equal(t, 2*time.Millisecond, cfg.Session.ReadyInterval)
	assert.Equal(t, time.Second, cfg.Session.ReadyTimeout)
	assert.Equal(t, 4, cfg.Session.MaxInFlight)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PUBMUX_LISTEN", ":7000")
	t.Setenv("PUBMUX_BROKER", "rabbitmq")
	t.Setenv("PUBMUX_BROKERS", "amqp://a,amqp://b")
	t.Setenv("PUBMUX_LOG_LEVEL", "warn")
	t.Setenv("PUBMUX_MAX_IN_FLIGHT", "32")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "rabbitmq", cfg.Broker.Name)
	assert.Equal(t, []string{"amqp://a", "amqp://b"}, cfg.Broker.Brokers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 32, cfg.Session.MaxInFlight)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "listen: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "invalid log level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"empty broker", func(c *Config) { c.Broker.Name = "" }},
		{"empty route pattern", func(c *Config) { c.Routes = []Route{{Forward: "x"}} }},
		{"zero in flight", func(c *Config) { c.Session.MaxInFlight = 0 }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestRoute_Mapper(t *testing.T) {
	assert.Equal(t, "a/b", Route{Pattern: "#"}.Mapper()("a/b"))
	assert.Equal(t, "ingest.a/b", Route{Pattern: "#", Forward: "ingest.{topic}"}.Mapper()("a/b"))
	assert.Equal(t, "fixed", Route{Pattern: "#", Forward: "fixed"}.Mapper()("a/b"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestConfigString(t *testing.T) {
	assert.Contains(t, Default().String(), "Broker: nats")
}
