package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/core"
)

// Broker is a test double for broker.Broker.
type Broker struct {
	mu           sync.Mutex
	published    []broker.Message
	handlers     map[string]broker.Deliver
	subscribed   chan string
	SubscribeErr error
	PublishErr   error
	// Block, when set, is received from before Publish returns.
	Block  chan struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{
		handlers:   make(map[string]broker.Deliver),
		subscribed: make(chan string, 16),
	}
}

func (b *Broker) Publish(ctx context.Context, msg broker.Message) error {
	if b.Block != nil {
		select {
		case <-b.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrBrokerClosed
	}
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, filter string, deliver broker.Deliver) error {
	b.mu.Lock()
	if b.SubscribeErr != nil {
		err := b.SubscribeErr
		b.mu.Unlock()
		return err
	}
	b.handlers[filter] = deliver
	b.mu.Unlock()
	b.subscribed <- filter

	// Block until context is cancelled (simulates a real subscription loop)
	<-ctx.Done()
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Subscribed returns a channel that receives each filter once its
// subscription is registered.
func (b *Broker) Subscribed() <-chan string { return b.subscribed }

// Deliver simulates an incoming message on the subscription for filter.
func (b *Broker) Deliver(ctx context.Context, filter string, d broker.Delivery) error {
	b.mu.Lock()
	h, ok := b.handlers[filter]
	b.mu.Unlock()
	if !ok {
		return core.ErrNoRoute
	}
	return h(ctx, d)
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.Message, len(b.published))
	copy(out, b.published)
	return out
}

// IsClosed reports whether Close was called.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
