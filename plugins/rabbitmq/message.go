package rabbitmq

import (
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/pubmux/broker"
)

// Headers mapped to and from AMQP message properties.
const (
	ContentTypeHeader = "content-type"
	RedeliveredHeader = "amqp-redelivered"
)

// delivery adapts an amqp.Delivery to broker.Delivery.
type delivery struct {
	d       amqp.Delivery
	codec   broker.Codec
	requeue bool
}

func (m *delivery) Topic() string   { return m.codec.Decode(m.d.RoutingKey) }
func (m *delivery) Payload() []byte { return m.d.Body }

// Headers returns the AMQP headers as strings plus the content type and the
// redelivery flag.
func (m *delivery) Headers() map[string]string {
	h := make(map[string]string, len(m.d.Headers)+2)
	for k, v := range m.d.Headers {
		switch v := v.(type) {
		case string:
			h[k] = v
		case []byte:
			h[k] = string(v)
		default:
			h[k] = fmt.Sprint(v)
		}
	}
	if m.d.ContentType != "" {
		h[ContentTypeHeader] = m.d.ContentType
	}
	h[RedeliveredHeader] = strconv.FormatBool(m.d.Redelivered)
	return h
}

func (m *delivery) Ack() error {
	if err := m.d.Ack(false); err != nil {
		return fmt.Errorf("pubmux/rabbitmq: ack: %w", err)
	}
	return nil
}

// Nack rejects the message, requeueing it if configured.
func (m *delivery) Nack() error {
	if err := m.d.Nack(false, m.requeue); err != nil {
		return fmt.Errorf("pubmux/rabbitmq: nack: %w", err)
	}
	return nil
}
