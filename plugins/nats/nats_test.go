package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/pubmux/broker"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "PUBMUX_sensors_STAR_ALL", streamName("sensors.*.>"))
	assert.Equal(t, "PUBMUX_plain", streamName("plain"))
}

func TestOptsFromConfig(t *testing.T) {
	fns, err := optsFromConfig(broker.Config{
		Prefix: "prod",
		Extra: map[string]any{
			"max_deliver": 9,
			"replicas":    3,
			"client_name": "edge-1",
			"storage":     "memory",
			"ack_wait":    "10s",
			"nak_delay":   "500ms",
		},
	})
	require.NoError(t, err)

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	assert.Equal(t, "prod", opts.prefix)
	assert.Equal(t, 9, opts.maxDeliver)
	assert.Equal(t, 3, opts.replicas)
	assert.Equal(t, "edge-1", opts.clientName)
	assert.Equal(t, jetstream.MemoryStorage, opts.storage)
	assert.Equal(t, 10*time.Second, opts.ackWait)
	assert.Equal(t, 500*time.Millisecond, opts.nakDelay)
}

func TestOptsFromConfig_BadDuration(t *testing.T) {
	_, err := optsFromConfig(broker.Config{Extra: map[string]any{"ack_wait": "later"}})
	assert.Error(t, err)
}

func TestOptsFromConfig_Empty(t *testing.T) {
	fns, err := optsFromConfig(broker.Config{})
	require.NoError(t, err)
	assert.Empty(t, fns)
}
