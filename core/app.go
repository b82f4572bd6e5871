package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// NotFoundFunc handles a publish whose topic matched no resource. Its error
// is the outcome of the dispatch; a nil result is reported as ErrNoRoute.
type NotFoundFunc[S any] func(p *Publish[S]) error

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	matcher MatcherBuilder
	logger  *slog.Logger
}

// WithMatcher replaces the default RouteTable with another pattern matcher.
func WithMatcher(b MatcherBuilder) AppOption {
	return func(o *appOptions) { o.matcher = b }
}

// WithLogger sets the logger used for session construction events.
func WithLogger(l *slog.Logger) AppOption {
	return func(o *appOptions) { o.logger = l }
}

// App collects topic resources for the publish path of a server. It is
// mutated only during setup and compiled once with Build.
//
//	app := core.NewApp[*Session](notFound).
//	    Resource("devices/{id}/state", stateFactory).
//	    ResourceFunc("logs/#", writeLog)
//	factory, err := app.Build()
//
// App is not safe for concurrent use.
type App[S any] struct {
	opts      appOptions
	patterns  []string
	factories []ServiceFactory[S]
	notFound  NotFoundFunc[S]
}

// NewApp creates an App whose unmatched publishes go to notFound.
// A nil notFound reports ErrNoRoute for the topic.
func NewApp[S any](notFound NotFoundFunc[S], opts ...AppOption) *App[S] {
	o := appOptions{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if notFound == nil {
		notFound = func(p *Publish[S]) error {
			return fmt.Errorf("%w: %q", ErrNoRoute, p.Topic())
		}
	}
	return &App[S]{opts: o, notFound: notFound}
}

// Resource routes publishes matching pattern to services built by f. The
// pattern is registered at index len(resources), so earlier registrations
// take precedence when several patterns match. Construction errors from f
// are reported as *InitError.
func (a *App[S]) Resource(pattern string, f ServiceFactory[S]) *App[S] {
	a.factories = append(a.factories, initErrors(pattern, len(a.factories), f))
	a.patterns = append(a.patterns, pattern)
	return a
}

// ResourceFunc routes publishes matching pattern to fn, shared by all sessions.
func (a *App[S]) ResourceFunc(pattern string, fn func(ctx context.Context, p *Publish[S]) error) *App[S] {
	return a.Resource(pattern, Stateless[S](ServiceFunc[S](fn)))
}

// Build compiles the registered patterns and returns the factory for
// per-session dispatch services. It fails if any pattern does not compile.
func (a *App[S]) Build() (*AppFactory[S], error) {
	mb := a.opts.matcher
	if mb == nil {
		mb = NewRouteTable()
	}
	for i, pattern := range a.patterns {
		if err := mb.Add(pattern, i); err != nil {
			return nil, fmt.Errorf("pubmux: resource %d: %w", i, err)
		}
	}
	m, err := mb.Finish()
	if err != nil {
		return nil, fmt.Errorf("pubmux: compile routes: %w", err)
	}
	return &AppFactory[S]{
		matcher:   m,
		patterns:  a.patterns,
		factories: a.factories,
		notFound:  a.notFound,
		logger:    a.opts.logger,
	}, nil
}

func initErrors[S any](pattern string, index int, f ServiceFactory[S]) ServiceFactory[S] {
	return FactoryFunc[S](func(ctx context.Context, session S) (Service[S], error) {
		svc, err := f.NewService(ctx, session)
		if err != nil {
			return nil, &InitError{Pattern: pattern, Index: index, Err: err}
		}
		return svc, nil
	})
}

// AppFactory is a compiled App. It is immutable and shared by every session
// built from it. AppFactory is itself a ServiceFactory, so apps nest.
type AppFactory[S any] struct {
	matcher   Matcher
	patterns  []string
	factories []ServiceFactory[S]
	notFound  NotFoundFunc[S]
	logger    *slog.Logger
}

// Patterns returns the registered patterns in registration order.
func (f *AppFactory[S]) Patterns() []string { return f.patterns }

// NewService builds every resource's service for session concurrently and
// returns them as one dispatch service.
//
// If any factory fails, NewService returns the first failure to complete,
// cancels ctx for the factories still running, and closes services that were
// already built. No partial service is returned.
func (f *AppFactory[S]) NewService(ctx context.Context, session S) (Service[S], error) {
	return f.NewAppService(ctx, session)
}

// NewAppService is NewService with the concrete return type.
func (f *AppFactory[S]) NewAppService(ctx context.Context, session S) (*AppService[S], error) {
	handlers := make([]Service[S], len(f.factories))

	g, gctx := errgroup.WithContext(ctx)
	for i, factory := range f.factories {
		g.Go(func() error {
			svc, err := factory.NewService(gctx, session)
			if err != nil {
				return err
			}
			handlers[i] = svc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := closeAll(handlers); cerr != nil {
			f.logger.Warn("close partially built services", "error", cerr)
		}
		return nil, err
	}

	return &AppService[S]{
		matcher:  f.matcher,
		handlers: handlers,
		notFound: f.notFound,
	}, nil
}

// AppService is the per-session dispatch service. It owns one service per
// resource and shares the matcher and not-found handler of its AppFactory.
// Its owning session may poll and call it from several goroutines at once.
type AppService[S any] struct {
	matcher  Matcher
	handlers []Service[S]
	notFound NotFoundFunc[S]
}

// PollReady polls every resource service in registration order. It reports
// Ready only when all of them are ready, and fails with the first error any
// of them reports.
func (s *AppService[S]) PollReady() (Readiness, error) {
	notReady := false
	for _, h := range s.handlers {
		r, err := h.PollReady()
		if err != nil {
			return NotReady, err
		}
		if r == NotReady {
			notReady = true
		}
	}
	if notReady {
		return NotReady, nil
	}
	return Ready, nil
}

// Call routes p to the service of the first resource whose pattern matches
// its topic and returns that service's result unchanged. Unmatched publishes
// go to the not-found handler and always fail.
func (s *AppService[S]) Call(ctx context.Context, p *Publish[S]) error {
	if idx, ok := s.matcher.Recognize(p.Path()); ok {
		return s.handlers[idx].Call(ctx, p)
	}
	if err := s.notFound(p); err != nil {
		return err
	}
	return fmt.Errorf("%w: %q", ErrNoRoute, p.Topic())
}

// Close closes every resource service the session owns that implements
// io.Closer. Services from Stateless factories are left open.
func (s *AppService[S]) Close() error {
	return closeAll(s.handlers)
}

func closeAll[S any](svcs []Service[S]) error {
	var errs []error
	for _, svc := range svcs {
		if c, ok := svc.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
