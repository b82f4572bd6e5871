package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/core"
)

// ErrWildcardFilter is returned by Subscribe for filters with wildcard
// levels. Kafka topics are flat, so a subscription names exactly one topic.
var ErrWildcardFilter = errors.New("pubmux/kafka: wildcard filters are not supported")

func init() {
	broker.Register("kafka", func(cfg broker.Config) (broker.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pubmux/kafka: %w", err)
		}
		return New(cfg.Brokers, cfg.Group, opts...)
	})
}

// Broker implements broker.Broker for Apache Kafka using segmentio/kafka-go.
//
// A topic "a/b" is the Kafka topic "a.b" (under the configured prefix). One
// kafka.Writer serves every Publish; each Subscribe owns a kafka.Reader.
// Ack commits the offset, Nack leaves it uncommitted.
//
// Kafka commits are positional, so Nack is weaker than on NATS or RabbitMQ:
// once a later record from the same partition is acked, the commit moves
// past the nacked one and it is not redelivered. A nacked record comes back
// only if the reader restarts or rebalances before that happens.
type Broker struct {
	brokers []string
	group   string
	codec   broker.Codec
	opts    options
	writer  *kafka.Writer

	mu      sync.Mutex
	closed  bool
	readers []*kafka.Reader
}

// New creates a Kafka Broker.
func New(brokers []string, group string, fns ...Option) (*Broker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("pubmux/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		BatchTimeout: opts.batchTimeout,
		Compression:  opts.compression,
		Async:        opts.async,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{
			ClientID: opts.dialer.ClientID,
			TLS:      opts.dialer.TLS,
			SASL:     opts.dialer.SASLMechanism,
		}
	}

	return &Broker{
		brokers: brokers,
		group:   group,
		codec:   broker.Dotted(opts.prefix),
		opts:    opts,
		writer:  w,
	}, nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish writes msg to the topic derived from msg.Topic.
func (b *Broker) Publish(ctx context.Context, msg broker.Message) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	record := b.record(msg)
	if err := b.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("pubmux/kafka: publish to %q: %w", record.Topic, err)
	}
	return nil
}

// Subscribe reads the topic named by filter until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, filter string, deliver broker.Deliver) error {
	if broker.HasWildcard(filter) {
		return fmt.Errorf("%w: %q", ErrWildcardFilter, filter)
	}

	cfg := kafka.ReaderConfig{
		Brokers:        b.brokers,
		Topic:          b.codec.Encode(filter),
		GroupID:        b.group,
		Dialer:         b.opts.dialer,
		MaxBytes:       b.opts.maxBytes,
		MaxWait:        b.opts.maxWait,
		CommitInterval: b.opts.commitInterval,
	}
	if b.group == "" {
		cfg.StartOffset = b.opts.startOffset
	}
	r := kafka.NewReader(cfg)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		r.Close()
		return core.ErrBrokerClosed
	}
	b.readers = append(b.readers, r)
	b.mu.Unlock()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || b.isClosed() {
				return nil
			}
			return fmt.Errorf("pubmux/kafka: fetch %q: %w", cfg.Topic, err)
		}

		// An unacked record is read again after a rebalance or restart.
		_ = deliver(ctx, &delivery{raw: m, codec: b.codec, reader: r, ctx: ctx})
	}
}

// Close flushes the writer and closes all readers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	errs := []error{b.writer.Close()}
	for _, r := range b.readers {
		errs = append(errs, r.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pubmux/kafka: close: %w", err)
	}
	return nil
}

// record converts an outbound message. The KeyHeader header, if present,
// becomes the record key unless msg.Key is set.
func (b *Broker) record(msg broker.Message) kafka.Message {
	km := kafka.Message{
		Topic: b.codec.Encode(msg.Topic),
		Key:   msg.Key,
		Value: msg.Payload,
	}
	for k, v := range msg.Headers {
		if k == KeyHeader {
			if km.Key == nil {
				km.Key = []byte(v)
			}
			continue
		}
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}
