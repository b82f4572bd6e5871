package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/miladsoleymani/pubmux/broker"
)

func TestQueueName(t *testing.T) {
	assert.Equal(t, "pubmux.sensors._.temp", queueName("pubmux.", "sensors.*.temp"))
	assert.Equal(t, "g.logs._", queueName("g.", "logs.#"))
}

func TestIsBuiltinExchange(t *testing.T) {
	assert.True(t, isBuiltinExchange(""))
	assert.True(t, isBuiltinExchange("amq.topic"))
	assert.False(t, isBuiltinExchange("telemetry"))
}

func TestToPublishing(t *testing.T) {
	p := toPublishing(broker.Message{
		Topic:   "a/b",
		Key:     []byte("id-1"),
		Payload: []byte("x"),
		Headers: map[string]string{ContentTypeHeader: "application/json", "trace": "t"},
	}, true)

	assert.Equal(t, "id-1", p.MessageId)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Table{"trace": "t"}, p.Headers)

	transient := toPublishing(broker.Message{Topic: "a"}, false)
	assert.Equal(t, uint8(0), transient.DeliveryMode)
	assert.Nil(t, transient.Headers)
}

func TestDelivery(t *testing.T) {
	d := &delivery{
		codec: broker.Dotted("prod"),
		d: amqp.Delivery{
			RoutingKey:  "prod.sensors.t1",
			ContentType: "text/plain",
			Redelivered: true,
			Headers:     amqp.Table{"unit": "C", "seq": int32(4), "raw": []byte("b")},
		},
	}
	assert.Equal(t, "sensors/t1", d.Topic())
	assert.Equal(t, map[string]string{
		"unit":            "C",
		"seq":             "4",
		"raw":             "b",
		ContentTypeHeader: "text/plain",
		RedeliveredHeader: "true",
	}, d.Headers())
}

func TestOptsFromConfig(t *testing.T) {
	opts := defaults()
	for _, fn := range optsFromConfig(broker.Config{
		Group:  "edge",
		Prefix: "prod",
		Extra: map[string]any{
			"exchange":        "telemetry",
			"prefetch":        3,
			"requeue_on_nack": false,
			"confirm":         true,
		},
	}) {
		fn(&opts)
	}
	assert.Equal(t, "edge.", opts.queuePrefix)
	assert.Equal(t, "prod", opts.prefix)
	assert.Equal(t, "telemetry", opts.exchange)
	assert.Equal(t, "topic", opts.exchangeKind)
	assert.Equal(t, 3, opts.prefetch)
	assert.False(t, opts.requeue)
	assert.True(t, opts.confirm)
	assert.True(t, opts.persistent)
}
