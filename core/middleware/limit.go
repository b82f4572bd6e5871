package middleware

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/miladsoleymani/pubmux/core"
)

// Limit returns middleware that reports NotReady while n calls are in
// flight, in addition to whatever the wrapped service reports. A call past
// the limit waits for a slot. n <= 0 disables the limit.
func Limit[S any](n int) core.Middleware[S] {
	return func(next core.Service[S]) core.Service[S] {
		if n <= 0 {
			return next
		}
		return &limit[S]{next: next, max: int64(n), slots: semaphore.NewWeighted(int64(n))}
	}
}

type limit[S any] struct {
	next     core.Service[S]
	max      int64
	slots    *semaphore.Weighted
	inFlight atomic.Int64
}

func (l *limit[S]) PollReady() (core.Readiness, error) {
	r, err := l.next.PollReady()
	if err != nil || r == core.NotReady {
		return core.NotReady, err
	}
	if l.inFlight.Load() >= l.max {
		return core.NotReady, nil
	}
	return core.Ready, nil
}

func (l *limit[S]) Call(ctx context.Context, p *core.Publish[S]) error {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.slots.Release(1)
	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	return l.next.Call(ctx, p)
}
