package broker

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/miladsoleymani/pubmux/core"
)

// ForwardOption configures Forward.
type ForwardOption func(*forwardOptions)

type forwardOptions struct {
	topic       func(string) string
	maxInFlight int64
}

// WithTopicMapper rewrites the topic a publish is forwarded to.
func WithTopicMapper(fn func(topic string) string) ForwardOption {
	return func(o *forwardOptions) { o.topic = fn }
}

// WithMaxInFlight caps the publishes a session may have outstanding on the
// broker. The session's service reports NotReady while the cap is reached,
// and a Call past the cap waits for a slot. n <= 0 removes the cap.
func WithMaxInFlight(n int) ForwardOption {
	return func(o *forwardOptions) { o.maxInFlight = int64(n) }
}

// Forward returns a factory for services that republish every publish they
// receive to b. Each session gets its own in-flight budget.
//
//	app.Resource("telemetry/#", broker.Forward[*Session](kafkaBroker,
//	    broker.WithTopicMapper(func(t string) string { return "ingest." + t }),
//	    broker.WithMaxInFlight(64)))
func Forward[S any](b Broker, fns ...ForwardOption) core.ServiceFactory[S] {
	opts := forwardOptions{
		topic:       func(t string) string { return t },
		maxInFlight: 16,
	}
	for _, fn := range fns {
		fn(&opts)
	}
	return core.FactoryFunc[S](func(context.Context, S) (core.Service[S], error) {
		if b == nil {
			return nil, core.ErrNoBroker
		}
		fw := &forwarder[S]{broker: b, opts: opts}
		if opts.maxInFlight > 0 {
			fw.slots = semaphore.NewWeighted(opts.maxInFlight)
		}
		return fw, nil
	})
}

type forwarder[S any] struct {
	broker   Broker
	opts     forwardOptions
	slots    *semaphore.Weighted // nil when unlimited
	inFlight atomic.Int64
}

func (f *forwarder[S]) PollReady() (core.Readiness, error) {
	if f.slots != nil && f.inFlight.Load() >= f.opts.maxInFlight {
		return core.NotReady, nil
	}
	return core.Ready, nil
}

func (f *forwarder[S]) Call(ctx context.Context, p *core.Publish[S]) error {
	if f.slots != nil {
		if err := f.slots.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("pubmux: forward %q: %w", p.Topic(), err)
		}
		defer f.slots.Release(1)
	}
	f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	topic := f.opts.topic(p.Topic())
	err := f.broker.Publish(ctx, Message{
		Topic:   topic,
		Payload: p.Payload(),
		Headers: p.Headers(),
	})
	if err != nil {
		return fmt.Errorf("pubmux: forward %q to %q: %w", p.Topic(), topic, err)
	}
	return nil
}
