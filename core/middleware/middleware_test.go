package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/pubmux/core"
	"github.com/miladsoleymani/pubmux/core/middleware"
)

type session struct{}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func publish(topic string) *core.Publish[*session] {
	return core.NewPublish(&session{}, topic, []byte("v"))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	svc := middleware.Logging[*session](newLogger(&buf))(core.ServiceFunc[*session](
		func(context.Context, *core.Publish[*session]) error { return nil }))

	require.NoError(t, svc.Call(context.Background(), publish("test/topic")))

	assert.Contains(t, buf.String(), "publish handled")
	assert.Contains(t, buf.String(), "test/topic")
}

func TestLogging_Error(t *testing.T) {
	var buf bytes.Buffer
	errBoom := errors.New("boom")
	svc := middleware.Logging[*session](newLogger(&buf))(core.ServiceFunc[*session](
		func(context.Context, *core.Publish[*session]) error { return errBoom }))

	err := svc.Call(context.Background(), publish("t"))

	assert.Same(t, errBoom, err)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "boom")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	svc := middleware.Recovery[*session](newLogger(&buf))(core.ServiceFunc[*session](
		func(context.Context, *core.Publish[*session]) error { panic("test panic") }))

	err := svc.Call(context.Background(), publish("t"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
	assert.Contains(t, buf.String(), "test panic")
}

func TestRecovery_NoPanic(t *testing.T) {
	svc := middleware.Recovery[*session](nil)(core.ServiceFunc[*session](
		func(context.Context, *core.Publish[*session]) error { return nil }))

	assert.NoError(t, svc.Call(context.Background(), publish("t")))
}

type collector struct {
	topics []string
	errs   []error
}

func (c *collector) PublishProcessed(topic string, _ time.Duration, err error) {
	c.topics = append(c.topics, topic)
	c.errs = append(c.errs, err)
}

func TestMetrics(t *testing.T) {
	c := &collector{}
	errBoom := errors.New("boom")
	svc := middleware.Metrics[*session](c)(core.ServiceFunc[*session](
		func(_ context.Context, p *core.Publish[*session]) error {
			if p.Topic() == "bad" {
				return errBoom
			}
			return nil
		}))

	_ = svc.Call(context.Background(), publish("good"))
	_ = svc.Call(context.Background(), publish("bad"))

	assert.Equal(t, []string{"good", "bad"}, c.topics)
	assert.Equal(t, []error{nil, errBoom}, c.errs)
}

func TestLimit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	svc := middleware.Limit[*session](1)(core.ServiceFunc[*session](
		func(context.Context, *core.Publish[*session]) error {
			close(entered)
			<-release
			return nil
		}))

	r, err := svc.PollReady()
	require.NoError(t, err)
	assert.Equal(t, core.Ready, r)

	done := make(chan error, 1)
	go func() { done <- svc.Call(context.Background(), publish("t")) }()
	<-entered

	r, err = svc.PollReady()
	require.NoError(t, err)
	assert.Equal(t, core.NotReady, r)

	close(release)
	require.NoError(t, <-done)

	r, err = svc.PollReady()
	require.NoError(t, err)
	assert.Equal(t, core.Ready, r)
}

func TestLimit_PropagatesInnerReadiness(t *testing.T) {
	errDown := errors.New("down")
	inner := &stubReady{err: errDown}
	svc := middleware.Limit[*session](10)(inner)

	r, err := svc.PollReady()

	assert.Equal(t, core.NotReady, r)
	assert.Same(t, errDown, err)
}

func TestLimit_NonPositiveIsUnlimited(t *testing.T) {
	inner := core.ServiceFunc[*session](func(context.Context, *core.Publish[*session]) error { return nil })

	for _, n := range []int{0, -3} {
		svc := middleware.Limit[*session](n)(inner)
		r, err := svc.PollReady()
		require.NoError(t, err)
		assert.Equal(t, core.Ready, r)
		assert.NoError(t, svc.Call(context.Background(), publish("t")))
	}
}

type stubReady struct {
	err error
}

func (s *stubReady) PollReady() (core.Readiness, error) { return core.NotReady, s.err }

func (s *stubReady) Call(context.Context, *core.Publish[*session]) error { return nil }

func TestCounters(t *testing.T) {
	c := &middleware.Counters{}
	assert.Equal(t, middleware.CounterSnapshot{}, c.Snapshot())

	c.PublishProcessed("a", 2*time.Millisecond, nil)
	c.PublishProcessed("b", 4*time.Millisecond, errors.New("x"))

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Handled)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, 3*time.Millisecond, s.Average)
}
