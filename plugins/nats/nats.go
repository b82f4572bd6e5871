package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (broker.Broker, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("pubmux/nats: at least one broker URL is required")
		}
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pubmux/nats: %w", err)
		}
		return New(strings.Join(cfg.Brokers, ","), cfg.Group, opts...)
	})
}

// Broker implements broker.Broker for NATS JetStream.
//
// Topics map to subjects by replacing "/" with "."; filters map "+" and
// "{name}" to "*" and "#" to ">".
//
// Every Subscribe call owns a stream covering its filter and a durable
// consumer named after the group. Deliveries are acked explicitly.
type Broker struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	group string
	codec broker.Codec
	opts  options

	mu     sync.Mutex
	closed bool
	subs   []jetstream.ConsumeContext
}

// New connects to url, a comma separated list of NATS server URLs.
func New(url, group string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	logger := opts.logger.With("broker", "nats")
	nc, err := nats.Connect(url,
		nats.Name(opts.clientName),
		nats.MaxReconnects(opts.maxReconnects),
		nats.ReconnectWait(opts.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pubmux/nats: connect to %q: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pubmux/nats: init jetstream: %w", err)
	}

	return &Broker{
		conn:  nc,
		js:    js,
		group: group,
		codec: broker.Dotted(opts.prefix),
		opts:  opts,
	}, nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish stores msg on the subject for msg.Topic. A non-empty msg.Key is
// used as the JetStream message ID, so the server drops duplicates.
func (b *Broker) Publish(ctx context.Context, msg broker.Message) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	subject := b.codec.Encode(msg.Topic)
	nm := nats.NewMsg(subject)
	nm.Data = msg.Payload
	for k, v := range msg.Headers {
		nm.Header.Set(k, v)
	}

	var popts []jetstream.PublishOpt
	if len(msg.Key) > 0 {
		popts = append(popts, jetstream.WithMsgID(string(msg.Key)))
	}
	if _, err := b.js.PublishMsg(ctx, nm, popts...); err != nil {
		return fmt.Errorf("pubmux/nats: publish to %q: %w", subject, err)
	}
	return nil
}

// Subscribe ensures a stream and durable consumer for filter, then delivers
// messages until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, filter string, deliver broker.Deliver) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	subject := b.codec.Filter(filter, "*", ">")
	name := streamName(subject)
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		MaxMsgs:  b.opts.maxMsgs,
		MaxAge:   b.opts.maxAge,
		Replicas: b.opts.replicas,
		Storage:  b.opts.storage,
	})
	if err != nil {
		return fmt.Errorf("pubmux/nats: ensure stream %q: %w", name, err)
	}

	durable := b.group
	if durable == "" {
		durable = "pubmux"
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.opts.ackWait,
		MaxDeliver:    b.opts.maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("pubmux/nats: ensure consumer %q on %q: %w", durable, name, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		// deliver acks or nacks; its error is already handled there.
		_ = deliver(ctx, &delivery{msg: m, codec: b.codec, nakDelay: b.opts.nakDelay})
	})
	if err != nil {
		return fmt.Errorf("pubmux/nats: consume %q: %w", durable, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close stops all consumers and drains the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, s := range b.subs {
		s.Stop()
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("pubmux/nats: drain: %w", err)
	}
	return nil
}

// streamName derives a valid stream name from a subject filter.
func streamName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "STAR", ">", "ALL")
	return "PUBMUX_" + r.Replace(subject)
}
