package broker

import (
	"fmt"
	"time"
)

// Config holds broker-agnostic configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// Brokers is a list of broker addresses (e.g., "localhost:9092").
	Brokers []string `yaml:"brokers"`

	// Group is the consumer group ID.
	Group string `yaml:"group"`

	// Prefix namespaces every topic on the wire. Empty means none.
	Prefix string `yaml:"prefix"`

	// Extra holds plugin-specific configuration.
	Extra map[string]any `yaml:"extra"`
}

// String returns Extra[key] if it is a string.
func (c Config) String(key string) (string, bool) {
	v, ok := c.Extra[key].(string)
	return v, ok
}

// Bool returns Extra[key] if it is a bool.
func (c Config) Bool(key string) (bool, bool) {
	v, ok := c.Extra[key].(bool)
	return v, ok
}

// Int returns Extra[key] as an int. YAML and JSON decoders disagree on
// number types, so every integral kind is accepted.
func (c Config) Int(key string) (int, bool) {
	switch v := c.Extra[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// Duration returns Extra[key] parsed as a duration such as "30s".
func (c Config) Duration(key string) (time.Duration, bool, error) {
	raw, ok := c.Extra[key]
	if !ok {
		return 0, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, false, fmt.Errorf("pubmux: %s: want duration string, got %T", key, raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("pubmux: %s: %w", key, err)
	}
	return d, true, nil
}
