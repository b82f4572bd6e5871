package rabbitmq

import "github.com/miladsoleymani/pubmux/broker"

// Option configures the RabbitMQ broker.
type Option func(*options)

type options struct {
	exchange     string
	exchangeKind string
	prefix       string

	queuePrefix string
	transient   bool

	confirm    bool
	persistent bool

	prefetch int
	requeue  bool
}

func defaults() options {
	return options{
		exchange:     "amq.topic",
		exchangeKind: "topic",
		queuePrefix:  "pubmux.",
		persistent:   true,
		prefetch:     10,
		requeue:      true,
	}
}

// WithExchange publishes to and binds queues on the named exchange, declaring
// it with kind unless it is a built-in "amq." exchange.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeKind = kind
	}
}

// WithPrefix namespaces every routing key under prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithQueuePrefix sets the prefix of queue names declared by Subscribe.
// Brokers sharing a prefix share queues and split the deliveries.
func WithQueuePrefix(prefix string) Option {
	return func(o *options) { o.queuePrefix = prefix }
}

// WithTransientQueues declares non-durable queues that are deleted when
// their consumer goes away.
func WithTransientQueues() Option {
	return func(o *options) { o.transient = true }
}

// WithConfirms makes Publish wait for the broker to confirm each message.
func WithConfirms() Option {
	return func(o *options) { o.confirm = true }
}

// WithPersistent controls whether published messages survive a broker restart.
func WithPersistent(p bool) Option {
	return func(o *options) { o.persistent = p }
}

// WithPrefetch sets how many unacked messages a subscription may hold.
func WithPrefetch(n int) Option {
	return func(o *options) { o.prefetch = n }
}

// WithRequeueOnNack controls whether nacked messages are requeued or dropped
// (or dead-lettered, if the queue has a policy for it).
func WithRequeueOnNack(requeue bool) Option {
	return func(o *options) { o.requeue = requeue }
}

// optsFromConfig maps broker.Config onto options. Group becomes the queue
// prefix so that every instance in a group shares the same queues.
func optsFromConfig(cfg broker.Config) []Option {
	var opts []Option
	if cfg.Group != "" {
		opts = append(opts, WithQueuePrefix(cfg.Group+"."))
	}
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	if ex, ok := cfg.String("exchange"); ok {
		kind, ok := cfg.String("exchange_type")
		if !ok {
			kind = "topic"
		}
		opts = append(opts, WithExchange(ex, kind))
	}
	if n, ok := cfg.Int("prefetch"); ok {
		opts = append(opts, WithPrefetch(n))
	}
	if v, ok := cfg.Bool("requeue_on_nack"); ok {
		opts = append(opts, WithRequeueOnNack(v))
	}
	if v, ok := cfg.Bool("confirm"); ok && v {
		opts = append(opts, WithConfirms())
	}
	if v, ok := cfg.Bool("persistent"); ok {
		opts = append(opts, WithPersistent(v))
	}
	if v, ok := cfg.Bool("transient_queues"); ok && v {
		opts = append(opts, WithTransientQueues())
	}
	return opts
}
