package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/pubmux/broker"
)

// Headers carrying record metadata. KeyHeader also works outbound: Publish
// uses it as the record key.
const (
	KeyHeader       = "kafka-key"
	PartitionHeader = "kafka-partition"
	OffsetHeader    = "kafka-offset"
)

// delivery adapts a kafka.Message to broker.Delivery.
type delivery struct {
	raw    kafka.Message
	codec  broker.Codec
	reader *kafka.Reader
	ctx    context.Context
}

func (d *delivery) Topic() string   { return d.codec.Decode(d.raw.Topic) }
func (d *delivery) Payload() []byte { return d.raw.Value }

// Headers returns the record headers plus its key, partition and offset.
func (d *delivery) Headers() map[string]string {
	h := make(map[string]string, len(d.raw.Headers)+3)
	for _, kh := range d.raw.Headers {
		h[kh.Key] = string(kh.Value)
	}
	if len(d.raw.Key) > 0 {
		h[KeyHeader] = string(d.raw.Key)
	}
	h[PartitionHeader] = strconv.Itoa(d.raw.Partition)
	h[OffsetHeader] = strconv.FormatInt(d.raw.Offset, 10)
	return h
}

// Ack commits the record's offset.
func (d *delivery) Ack() error {
	if err := d.reader.CommitMessages(d.ctx, d.raw); err != nil {
		return fmt.Errorf("pubmux/kafka: commit offset %d: %w", d.raw.Offset, err)
	}
	return nil
}

// Nack leaves the offset uncommitted. A later Ack on the same partition
// commits past it, so the record is not redelivered after all.
func (d *delivery) Nack() error {
	return nil
}
