package server

import (
	"log/slog"
	"time"

	"github.com/miladsoleymani/pubmux/core"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	readyInterval time.Duration
	readyTimeout  time.Duration
	publishOpts   []core.PublishOption
}

func defaults() options {
	return options{
		logger:        slog.Default(),
		readyInterval: 5 * time.Millisecond,
	}
}

// WithLogger sets the logger for session lifecycle and dispatch failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReadyInterval sets how often a session re-polls a not-ready service.
func WithReadyInterval(d time.Duration) Option {
	return func(o *options) { o.readyInterval = d }
}

// WithReadyTimeout bounds how long a session waits for its service to become
// ready before failing a publish. Zero waits as long as the context allows.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) { o.readyTimeout = d }
}

// WithPublishOptions adds options applied to every publish built from a
// delivery, e.g. core.WithBinder.
func WithPublishOptions(opts ...core.PublishOption) Option {
	return func(o *options) { o.publishOpts = append(o.publishOpts, opts...) }
}
