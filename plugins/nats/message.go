package nats

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/pubmux/broker"
)

// Metadata headers added to every delivery.
const (
	SequenceHeader  = "nats-sequence"
	DeliveredHeader = "nats-delivered"
)

// delivery adapts a JetStream message to broker.Delivery.
type delivery struct {
	msg      jetstream.Msg
	codec    broker.Codec
	nakDelay time.Duration
}

func (d *delivery) Topic() string   { return d.codec.Decode(d.msg.Subject()) }
func (d *delivery) Payload() []byte { return d.msg.Data() }

// Headers returns the first value of every message header plus the stream
// sequence and delivery count.
func (d *delivery) Headers() map[string]string {
	raw := d.msg.Headers()
	h := make(map[string]string, len(raw)+2)
	for k, v := range raw {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	if md, err := d.msg.Metadata(); err == nil {
		h[SequenceHeader] = strconv.FormatUint(md.Sequence.Stream, 10)
		h[DeliveredHeader] = strconv.FormatUint(md.NumDelivered, 10)
	}
	return h
}

func (d *delivery) Ack() error {
	if err := d.msg.Ack(); err != nil {
		return fmt.Errorf("pubmux/nats: ack: %w", err)
	}
	return nil
}

// Nack asks the server to redeliver, after the configured delay if any, up
// to the consumer's MaxDeliver.
func (d *delivery) Nack() error {
	var err error
	if d.nakDelay > 0 {
		err = d.msg.NakWithDelay(d.nakDelay)
	} else {
		err = d.msg.Nak()
	}
	if err != nil {
		return fmt.Errorf("pubmux/nats: nack: %w", err)
	}
	return nil
}
