package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/miladsoleymani/pubmux/core"
)

// Logging returns middleware that logs processing duration and errors of
// every publish the service handles. A nil logger uses slog.Default().
func Logging[S any](logger *slog.Logger) core.Middleware[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Service[S]) core.Service[S] {
		return &logging[S]{next: next, logger: logger}
	}
}

type logging[S any] struct {
	next   core.Service[S]
	logger *slog.Logger
}

func (l *logging[S]) PollReady() (core.Readiness, error) { return l.next.PollReady() }

func (l *logging[S]) Call(ctx context.Context, p *core.Publish[S]) error {
	start := time.Now()
	err := l.next.Call(ctx, p)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.ErrorContext(ctx, "publish failed",
			"topic", p.Topic(), "qos", p.QoS(), "elapsed", elapsed, "error", err)
	} else {
		l.logger.DebugContext(ctx, "publish handled",
			"topic", p.Topic(), "qos", p.QoS(), "elapsed", elapsed)
	}
	return err
}
