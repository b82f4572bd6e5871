package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/miladsoleymani/pubmux/core"
)

// Recovery returns middleware that recovers from panics in Call, logs the
// stack trace, and returns the panic as an error.
func Recovery[S any](logger *slog.Logger) core.Middleware[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Service[S]) core.Service[S] {
		return &recovery[S]{next: next, logger: logger}
	}
}

type recovery[S any] struct {
	next   core.Service[S]
	logger *slog.Logger
}

func (r *recovery[S]) PollReady() (core.Readiness, error) { return r.next.PollReady() }

func (r *recovery[S]) Call(ctx context.Context, p *core.Publish[S]) (err error) {
	defer func() {
		if v := recover(); v != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			r.logger.ErrorContext(ctx, "panic recovered",
				"topic", p.Topic(), "panic", v, "stack", string(buf[:n]))
			err = fmt.Errorf("pubmux: panic recovered: %v", v)
		}
	}()
	return r.next.Call(ctx, p)
}
