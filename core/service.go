package core

import (
	"context"
	"time"
)

// Readiness is the result of polling a Service for capacity.
type Readiness int

const (
	// NotReady means the service cannot take another publish right now.
	NotReady Readiness = iota
	// Ready means the service can take a publish without blocking the caller.
	Ready
)

func (r Readiness) String() string {
	if r == Ready {
		return "ready"
	}
	return "not-ready"
}

// Service processes publishes for one session.
//
// PollReady must not block. A service that returns NotReady is expected to
// become ready on its own; callers re-poll rather than cache the answer.
// Call blocks until the publish is processed or ctx is done.
type Service[S any] interface {
	PollReady() (Readiness, error)
	Call(ctx context.Context, p *Publish[S]) error
}

// ServiceFactory builds a Service bound to one session. NewService blocks
// until the service is constructed or ctx is done.
type ServiceFactory[S any] interface {
	NewService(ctx context.Context, session S) (Service[S], error)
}

// ServiceFunc adapts a function into a Service that is always ready.
//
//	core.ServiceFunc[*Session](func(ctx context.Context, p *core.Publish[*Session]) error {
//	    return store.Save(ctx, p.Topic(), p.Payload())
//	})
type ServiceFunc[S any] func(ctx context.Context, p *Publish[S]) error

func (f ServiceFunc[S]) PollReady() (Readiness, error) { return Ready, nil }

func (f ServiceFunc[S]) Call(ctx context.Context, p *Publish[S]) error { return f(ctx, p) }

// FactoryFunc adapts a constructor function into a ServiceFactory.
type FactoryFunc[S any] func(ctx context.Context, session S) (Service[S], error)

func (f FactoryFunc[S]) NewService(ctx context.Context, session S) (Service[S], error) {
	return f(ctx, session)
}

// Stateless returns a factory that hands every session the same service.
// Use it for handlers that keep no per-session state. Sessions do not own
// the service, so closing a session never closes it.
func Stateless[S any](svc Service[S]) ServiceFactory[S] {
	return FactoryFunc[S](func(context.Context, S) (Service[S], error) {
		return shared[S]{svc}, nil
	})
}

// shared hides a Stateless service's Close from the sessions using it.
type shared[S any] struct {
	Service[S]
}

// Middleware decorates a Service.
type Middleware[S any] func(Service[S]) Service[S]

// Wrap returns a factory whose services are decorated by mws. Given [A, B]
// the call order is A -> B -> service.
func Wrap[S any](f ServiceFactory[S], mws ...Middleware[S]) ServiceFactory[S] {
	return FactoryFunc[S](func(ctx context.Context, session S) (Service[S], error) {
		svc, err := f.NewService(ctx, session)
		if err != nil {
			return nil, err
		}
		return applyMiddleware(svc, mws), nil
	})
}

// applyMiddleware wraps a service with middleware in reverse order.
func applyMiddleware[S any](svc Service[S], mws []Middleware[S]) Service[S] {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}

// WaitReady polls svc every interval until it reports Ready, fails, or ctx
// is done.
func WaitReady[S any](ctx context.Context, svc Service[S], interval time.Duration) error {
	r, err := svc.PollReady()
	if err != nil {
		return err
	}
	if r == Ready {
		return nil
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r, err := svc.PollReady()
			if err != nil {
				return err
			}
			if r == Ready {
				return nil
			}
		}
	}
}
