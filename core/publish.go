package core

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Publish is an inbound published message bound to the session it arrived on.
// It is built by a transport from already-decoded protocol data and handed to
// the dispatch service, which takes ownership of it.
type Publish[S any] struct {
	session  S
	path     Path
	payload  []byte
	headers  map[string]string
	qos      byte
	retain   bool
	dup      bool
	packetID uint16
	binder   Binder
}

// PublishOption sets optional publish metadata.
type PublishOption func(*publishOptions)

type publishOptions struct {
	headers  map[string]string
	qos      byte
	retain   bool
	dup      bool
	packetID uint16
	binder   Binder
}

// WithHeaders attaches headers (MQTT 5 user properties, broker headers).
func WithHeaders(h map[string]string) PublishOption {
	return func(o *publishOptions) { o.headers = h }
}

// WithQoS sets the delivery QoS level.
func WithQoS(qos byte) PublishOption {
	return func(o *publishOptions) { o.qos = qos }
}

// WithRetain marks the publish as retained.
func WithRetain(retain bool) PublishOption {
	return func(o *publishOptions) { o.retain = retain }
}

// WithDup marks the publish as a redelivery.
func WithDup(dup bool) PublishOption {
	return func(o *publishOptions) { o.dup = dup }
}

// WithPacketID sets the packet identifier of a QoS 1/2 publish.
func WithPacketID(id uint16) PublishOption {
	return func(o *publishOptions) { o.packetID = id }
}

// WithBinder replaces the Binder used by Bind. The default is JSONBinder.
func WithBinder(b Binder) PublishOption {
	return func(o *publishOptions) { o.binder = b }
}

// NewPublish creates a publish on topic for session.
func NewPublish[S any](session S, topic string, payload []byte, opts ...PublishOption) *Publish[S] {
	o := publishOptions{binder: JSONBinder{}}
	for _, fn := range opts {
		fn(&o)
	}
	return &Publish[S]{
		session:  session,
		path:     NewPath(topic),
		payload:  payload,
		headers:  o.headers,
		qos:      o.qos,
		retain:   o.retain,
		dup:      o.dup,
		packetID: o.packetID,
		binder:   o.binder,
	}
}

// Session returns the per-connection state the publish arrived on.
func (p *Publish[S]) Session() S { return p.session }

// Topic returns the topic the publish was sent to.
func (p *Publish[S]) Topic() string { return p.path.Topic() }

// Path returns the mutable routing path. Matchers record captures on it.
func (p *Publish[S]) Path() *Path { return &p.path }

// Param is shorthand for Path().Get(name).
func (p *Publish[S]) Param(name string) (string, bool) { return p.path.Get(name) }

// Payload returns the raw message body.
func (p *Publish[S]) Payload() []byte { return p.payload }

// Header returns a single header value.
func (p *Publish[S]) Header(key string) string { return p.headers[key] }

// Headers returns all headers. The map may be nil.
func (p *Publish[S]) Headers() map[string]string { return p.headers }

func (p *Publish[S]) QoS() byte        { return p.qos }
func (p *Publish[S]) Retain() bool     { return p.retain }
func (p *Publish[S]) Dup() bool        { return p.dup }
func (p *Publish[S]) PacketID() uint16 { return p.packetID }

// Get looks up a field of a JSON payload using gjson path syntax.
// The result does not exist when the payload is not JSON or lacks the field.
func (p *Publish[S]) Get(path string) gjson.Result {
	return gjson.GetBytes(p.payload, path)
}

// Bind deserializes the payload into v using the publish's Binder.
func (p *Publish[S]) Bind(v any) error {
	if p.binder == nil {
		return fmt.Errorf("pubmux: no binder configured")
	}
	if err := p.binder.Bind(p.payload, v); err != nil {
		return fmt.Errorf("pubmux: bind %q: %w", p.path.Topic(), err)
	}
	return nil
}
