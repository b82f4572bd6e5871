package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/core"
)

// Server owns the publish path of a messaging server. It turns connections
// into sessions and gives each session its own dispatch service built from
// one shared factory.
type Server[S any] struct {
	connect ConnectFunc[S]
	factory core.ServiceFactory[S]
	opts    options
}

// New creates a Server. factory is usually a compiled *core.AppFactory.
func New[S any](connect ConnectFunc[S], factory core.ServiceFactory[S], fns ...Option) *Server[S] {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Server[S]{connect: connect, factory: factory, opts: opts}
}

// Session accepts conn and builds its dispatch service. The caller must
// Close the returned session when the connection ends.
func (s *Server[S]) Session(ctx context.Context, conn *Connect) (*Session[S], error) {
	state, err := s.connect(ctx, conn)
	if err != nil {
		return nil, &ConnectError{ClientID: conn.ClientID, Err: err}
	}

	svc, err := s.factory.NewService(ctx, state)
	if err != nil {
		s.opts.logger.WarnContext(ctx, "session setup failed", "client_id", conn.ClientID, "error", err)
		return nil, fmt.Errorf("pubmux: session %q: %w", conn.ClientID, err)
	}

	s.opts.logger.InfoContext(ctx, "session opened", "client_id", conn.ClientID)
	return &Session[S]{
		clientID: conn.ClientID,
		state:    state,
		svc:      svc,
		opts:     s.opts,
		logger:   s.opts.logger.With("client_id", conn.ClientID),
	}, nil
}

// Serve runs one session over a stream of deliveries until in is closed or
// ctx is done. Dispatch failures are logged and nacked; they do not end the
// session. A readiness failure does.
func (s *Server[S]) Serve(ctx context.Context, conn *Connect, in <-chan broker.Delivery) error {
	sess, err := s.Session(ctx, conn)
	if err != nil {
		return err
	}
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-in:
			if !ok {
				return nil
			}
			if err := sess.Handle(ctx, d); err != nil {
				var rerr *ReadyError
				if errors.As(err, &rerr) {
					return err
				}
			}
		}
	}
}

// Run subscribes to every filter on b and serves each subscription as its own
// session, named after the filter. It returns when ctx is cancelled or a
// subscription fails, and closes b on the way out.
func (s *Server[S]) Run(ctx context.Context, b broker.Broker, filters ...string) error {
	if b == nil {
		return core.ErrNoBroker
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, filter := range filters {
		g.Go(func() error {
			sess, err := s.Session(gctx, &Connect{ClientID: "subscription:" + filter, CleanSession: true})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := b.Subscribe(gctx, filter, sess.Handle); err != nil {
				return fmt.Errorf("pubmux: subscribe %q: %w", filter, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if cerr := b.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// ReadyError reports that a session's service failed its readiness check.
type ReadyError struct {
	ClientID string
	Err      error
}

func (e *ReadyError) Error() string {
	return fmt.Sprintf("pubmux: session %q not ready: %v", e.ClientID, e.Err)
}

func (e *ReadyError) Unwrap() error { return e.Err }

// Session is one accepted connection with its own dispatch service.
// Publish and Handle may be called from several goroutines; each call waits
// for the service to be ready before dispatching, so the service's
// readiness bounds how many publishes are outstanding.
type Session[S any] struct {
	clientID string
	state    S
	svc      core.Service[S]
	opts     options
	logger   *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// ClientID returns the client identifier from the handshake.
func (s *Session[S]) ClientID() string { return s.clientID }

// State returns the session state produced by the ConnectFunc.
func (s *Session[S]) State() S { return s.state }

// Publish builds a publish for this session and dispatches it once the
// service is ready. It returns the dispatch outcome.
func (s *Session[S]) Publish(ctx context.Context, topic string, payload []byte, opts ...core.PublishOption) error {
	all := append(append([]core.PublishOption{}, s.opts.publishOpts...), opts...)
	return s.dispatch(ctx, core.NewPublish(s.state, topic, payload, all...))
}

// Handle dispatches a delivery and acks it on success or nacks it on
// failure. Its signature matches broker.Deliver.
func (s *Session[S]) Handle(ctx context.Context, d broker.Delivery) error {
	opts := append([]core.PublishOption{core.WithHeaders(d.Headers())}, s.opts.publishOpts...)
	err := s.dispatch(ctx, core.NewPublish(s.state, d.Topic(), d.Payload(), opts...))
	if err != nil {
		s.logger.WarnContext(ctx, "publish failed", "topic", d.Topic(), "error", err)
		if nerr := d.Nack(); nerr != nil {
			return errors.Join(err, nerr)
		}
		return err
	}
	return d.Ack()
}

// WaitReady blocks until the session's service is ready, bounded by the
// server's ready timeout. A failed readiness check is a *ReadyError.
func (s *Session[S]) WaitReady(ctx context.Context) error {
	wctx := ctx
	if s.opts.readyTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, s.opts.readyTimeout)
		defer cancel()
	}
	if err := core.WaitReady(wctx, s.svc, s.opts.readyInterval); err != nil {
		if wctx.Err() != nil {
			return fmt.Errorf("pubmux: session %q: wait ready: %w", s.clientID, err)
		}
		return &ReadyError{ClientID: s.clientID, Err: err}
	}
	return nil
}

func (s *Session[S]) dispatch(ctx context.Context, p *core.Publish[S]) error {
	if !s.enter() {
		return fmt.Errorf("pubmux: session %q is closed", s.clientID)
	}
	defer s.pending.Done()

	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	return s.svc.Call(ctx, p)
}

func (s *Session[S]) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.pending.Add(1)
	return true
}

// Close rejects new publishes, waits for outstanding ones and drops the
// session's dispatch service.
func (s *Session[S]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pending.Wait()
	s.logger.Info("session closed")
	if c, ok := s.svc.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
