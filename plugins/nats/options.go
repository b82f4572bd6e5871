package nats

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/pubmux/broker"
)

// Option configures the NATS broker.
type Option func(*options)

type options struct {
	prefix     string
	clientName string
	logger     *slog.Logger

	maxReconnects int
	reconnectWait time.Duration

	maxMsgs  int64
	maxAge   time.Duration
	replicas int
	storage  jetstream.StorageType

	ackWait    time.Duration
	maxDeliver int
	nakDelay   time.Duration
}

func defaults() options {
	return options{
		clientName:    "pubmux",
		logger:        slog.Default(),
		maxReconnects: -1, // forever
		reconnectWait: 2 * time.Second,
		maxMsgs:       -1,
		replicas:      1,
		storage:       jetstream.FileStorage,
		ackWait:       30 * time.Second,
		maxDeliver:    5,
	}
}

// WithPrefix namespaces every subject under prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithClientName sets the connection name reported to the NATS server.
func WithClientName(name string) Option {
	return func(o *options) { o.clientName = name }
}

// WithLogger sets the logger for connection state changes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReconnect sets how many times and how often the connection is
// re-established. A negative attempts retries forever.
func WithReconnect(attempts int, wait time.Duration) Option {
	return func(o *options) {
		o.maxReconnects = attempts
		o.reconnectWait = wait
	}
}

// WithMaxMessages caps the messages kept per subscription stream.
func WithMaxMessages(n int64) Option {
	return func(o *options) { o.maxMsgs = n }
}

// WithMaxAge drops stream messages older than d. Zero keeps them.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithReplicas sets the stream replication factor.
func WithReplicas(n int) Option {
	return func(o *options) { o.replicas = n }
}

// WithStorage sets the stream storage type (file or memory).
func WithStorage(s jetstream.StorageType) Option {
	return func(o *options) { o.storage = s }
}

// WithAckWait sets how long the server waits for an ack before redelivering.
func WithAckWait(d time.Duration) Option {
	return func(o *options) { o.ackWait = d }
}

// WithMaxDeliver sets the maximum number of delivery attempts.
func WithMaxDeliver(n int) Option {
	return func(o *options) { o.maxDeliver = n }
}

// WithNakDelay delays redelivery of nacked messages.
func WithNakDelay(d time.Duration) Option {
	return func(o *options) { o.nakDelay = d }
}

// optsFromConfig maps broker.Config onto options.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	var opts []Option
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	if v, ok := cfg.String("client_name"); ok {
		opts = append(opts, WithClientName(v))
	}
	if v, ok := cfg.Int("max_deliver"); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Int("replicas"); ok {
		opts = append(opts, WithReplicas(v))
	}
	if v, ok := cfg.Int("max_messages"); ok {
		opts = append(opts, WithMaxMessages(int64(v)))
	}
	if v, ok := cfg.String("storage"); ok && v == "memory" {
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	}
	for key, apply := range map[string]func(time.Duration) Option{
		"ack_wait":  WithAckWait,
		"max_age":   WithMaxAge,
		"nak_delay": WithNakDelay,
	} {
		d, ok, err := cfg.Duration(key)
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, apply(d))
		}
	}
	return opts, nil
}
