package broker

import "context"

// Message is an outbound publish handed to a Broker.
type Message struct {
	Topic   string
	Key     []byte
	Payload []byte
	Headers map[string]string
}

// Delivery is an inbound message received from a transport. Transports
// adapt their native message types to it.
type Delivery interface {
	Topic() string
	Payload() []byte
	Headers() map[string]string

	// Ack acknowledges the delivery (commits offset / removes from queue).
	Ack() error

	// Nack negatively acknowledges the delivery. Whether and when it is
	// redelivered depends on the broker.
	Nack() error
}

// Deliver receives deliveries from a subscription. Returning an error does
// not stop the subscription.
type Deliver func(ctx context.Context, d Delivery) error

// Broker defines the contract for message broker implementations.
// Each broker plugin must implement this interface.
type Broker interface {
	Publish(ctx context.Context, msg Message) error

	// Subscribe consumes messages matching filter and passes them to deliver
	// until ctx is cancelled.
	Subscribe(ctx context.Context, filter string, deliver Deliver) error

	Close() error
}
