package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/pubmux/broker"
)

// Option configures the Kafka broker.
type Option func(*options)

type options struct {
	prefix string
	dialer *kafka.Dialer

	balancer     kafka.Balancer
	batchSize    int
	batchTimeout time.Duration
	compression  kafka.Compression
	async        bool

	maxBytes       int
	maxWait        time.Duration
	startOffset    int64
	commitInterval time.Duration
}

func defaults() options {
	return options{
		balancer:     &kafka.Hash{},
		batchSize:    100,
		batchTimeout: 10 * time.Millisecond,
		maxBytes:     10e6,
		maxWait:      500 * time.Millisecond,
		startOffset:  kafka.LastOffset,
	}
}

// WithPrefix namespaces every topic under prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithBalancer sets the partition balancer. The default hashes the record
// key so records with one key stay ordered.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatch sets how many records, or how long, the writer batches.
func WithBatch(size int, timeout time.Duration) Option {
	return func(o *options) {
		o.batchSize = size
		o.batchTimeout = timeout
	}
}

// WithCompression sets the codec for produced batches.
func WithCompression(c kafka.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithAsync makes Publish return before the write is acknowledged.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets where a reader without a group starts
// (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithCommitInterval enables periodic offset commits. Zero (the default)
// commits synchronously on every Ack.
func WithCommitInterval(d time.Duration) Option {
	return func(o *options) { o.commitInterval = d }
}

var compressions = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// optsFromConfig maps broker.Config onto options.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	var opts []Option
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	if v, ok := cfg.Bool("async"); ok && v {
		opts = append(opts, WithAsync(true))
	}
	if v, ok := cfg.Int("batch_size"); ok {
		opts = append(opts, func(o *options) { o.batchSize = v })
	}
	if v, ok := cfg.Int("max_bytes"); ok {
		opts = append(opts, func(o *options) { o.maxBytes = v })
	}
	if v, ok := cfg.String("start_offset"); ok && v == "first" {
		opts = append(opts, WithStartOffset(kafka.FirstOffset))
	}
	if v, ok := cfg.String("compression"); ok {
		c, known := compressions[v]
		if !known {
			return nil, fmt.Errorf("unknown compression %q", v)
		}
		opts = append(opts, WithCompression(c))
	}

	for key, apply := range map[string]func(time.Duration) Option{
		"max_wait":        WithMaxWait,
		"commit_interval": WithCommitInterval,
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
