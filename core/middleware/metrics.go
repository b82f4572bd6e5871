package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/miladsoleymani/pubmux/core"
)

// MetricsCollector receives one observation per publish a service handles.
type MetricsCollector interface {
	// PublishProcessed records the topic, the time spent in the wrapped
	// service and its result.
	PublishProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports every Call to collector.
func Metrics[S any](collector MetricsCollector) core.Middleware[S] {
	return func(next core.Service[S]) core.Service[S] {
		return &metrics[S]{next: next, collector: collector}
	}
}

type metrics[S any] struct {
	next      core.Service[S]
	collector MetricsCollector
}

func (m *metrics[S]) PollReady() (core.Readiness, error) { return m.next.PollReady() }

func (m *metrics[S]) Call(ctx context.Context, p *core.Publish[S]) error {
	start := time.Now()
	err := m.next.Call(ctx, p)
	m.collector.PublishProcessed(p.Topic(), time.Since(start), err)
	return err
}

// Counters is a MetricsCollector keeping process-wide totals. It is safe for
// concurrent use.
type Counters struct {
	handled atomic.Int64
	failed  atomic.Int64
	nanos   atomic.Int64
}

func (c *Counters) PublishProcessed(_ string, d time.Duration, err error) {
	c.handled.Add(1)
	c.nanos.Add(int64(d))
	if err != nil {
		c.failed.Add(1)
	}
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Handled int64         `json:"handled"`
	Failed  int64         `json:"failed"`
	Average time.Duration `json:"average_ns"`
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() CounterSnapshot {
	s := CounterSnapshot{Handled: c.handled.Load(), Failed: c.failed.Load()}
	if s.Handled > 0 {
		s.Average = time.Duration(c.nanos.Load() / s.Handled)
	}
	return s
}
