package mock

import "sync"

// Delivery is a simple broker.Delivery implementation for testing.
type Delivery struct {
	T       string
	V       []byte
	H       map[string]string
	AckErr  error
	NackErr error

	mu     sync.Mutex
	acked  bool
	nacked bool
}

func (d *Delivery) Topic() string              { return d.T }
func (d *Delivery) Payload() []byte            { return d.V }
func (d *Delivery) Headers() map[string]string { return d.H }

func (d *Delivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked = true
	return d.AckErr
}

func (d *Delivery) Nack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nacked = true
	return d.NackErr
}

// Acked reports whether Ack was called.
func (d *Delivery) Acked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acked
}

// Nacked reports whether Nack was called.
func (d *Delivery) Nacked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nacked
}
