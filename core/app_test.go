package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/miladsoleymani/pubmux/core"
)

type session struct {
	clientID string
}

// fakeService records polls and calls and reports configurable readiness.
type fakeService struct {
	mu       sync.Mutex
	name     string
	session  *session
	ready    core.Readiness
	readyErr error
	callErr  error
	polls    int
	topics   []string
	closed   bool
}

func (f *fakeService) PollReady() (core.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.ready, f.readyErr
}

func (f *fakeService) Call(_ context.Context, p *core.Publish[*session]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, p.Topic())
	return f.callErr
}

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// recordingFactory builds one fakeService per session and remembers them.
type recordingFactory struct {
	mu    sync.Mutex
	name  string
	err   error
	built []*fakeService
}

func (r *recordingFactory) NewService(_ context.Context, s *session) (core.Service[*session], error) {
	if r.err != nil {
		return nil, r.err
	}
	svc := &fakeService{name: r.name, session: s, ready: core.Ready}
	r.mu.Lock()
	r.built = append(r.built, svc)
	r.mu.Unlock()
	return svc, nil
}

func (r *recordingFactory) last() *fakeService {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.built[len(r.built)-1]
}

type AppSuite struct {
	suite.Suite
	ctx     context.Context
	session *session
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	s.ctx = context.Background()
	s.session = &session{clientID: "client-1"}
}

func (s *AppSuite) build(app *core.App[*session]) *core.AppService[*session] {
	f, err := app.Build()
	s.Require().NoError(err)
	svc, err := f.NewAppService(s.ctx, s.session)
	s.Require().NoError(err)
	return svc
}

func (s *AppSuite) publish(topic string) *core.Publish[*session] {
	return core.NewPublish(s.session, topic, []byte(`{"v":1}`))
}

func (s *AppSuite) TestRoutesToResourceAtRegistrationIndex() {
	f0 := &recordingFactory{name: "f0"}
	f1 := &recordingFactory{name: "f1"}
	f2 := &recordingFactory{name: "f2"}
	svc := s.build(core.NewApp[*session](nil).
		Resource("p0", f0).
		Resource("p1", f1).
		Resource("p2", f2))

	s.Require().NoError(svc.Call(s.ctx, s.publish("p1")))

	s.Assert().Equal([]string{"p1"}, f1.last().topics)
	s.Assert().Empty(f0.last().topics)
	s.Assert().Empty(f2.last().topics)
}

func (s *AppSuite) TestFirstRegisteredPatternWins() {
	exact := &recordingFactory{name: "exact"}
	wild := &recordingFactory{name: "wild"}
	svc := s.build(core.NewApp[*session](nil).
		Resource("a/b", exact).
		Resource("a/+", wild))

	s.Require().NoError(svc.Call(s.ctx, s.publish("a/b")))
	s.Require().NoError(svc.Call(s.ctx, s.publish("a/c")))

	s.Assert().Equal([]string{"a/b"}, exact.last().topics)
	s.Assert().Equal([]string{"a/c"}, wild.last().topics)
}

func (s *AppSuite) TestUnmatchedGoesToNotFoundOnce() {
	errUnknown := errors.New("unknown topic")
	var calls int
	notFound := func(p *core.Publish[*session]) error {
		calls++
		return errUnknown
	}
	f := &recordingFactory{name: "f"}
	svc := s.build(core.NewApp[*session](notFound).Resource("known", f))

	p := s.publish("other")
	err := svc.Call(s.ctx, p)

	s.Assert().Equal(1, calls)
	s.Assert().Same(errUnknown, err)
	s.Assert().Empty(f.last().topics)
}

func (s *AppSuite) TestDefaultNotFoundReportsNoRoute() {
	svc := s.build(core.NewApp[*session](nil))

	err := svc.Call(s.ctx, s.publish("nowhere"))

	s.Assert().ErrorIs(err, core.ErrNoRoute)
	s.Assert().Contains(err.Error(), "nowhere")
}

func (s *AppSuite) TestHandlerErrorPassesThroughVerbatim() {
	errBoom := errors.New("boom")
	svc := s.build(core.NewApp[*session](nil).
		Resource("t", core.FactoryFunc[*session](func(context.Context, *session) (core.Service[*session], error) {
			return &fakeService{ready: core.Ready, callErr: errBoom}, nil
		})))

	s.Assert().Same(errBoom, svc.Call(s.ctx, s.publish("t")))
}

func (s *AppSuite) TestCapturesReachHandler() {
	var id string
	svc := s.build(core.NewApp[*session](nil).
		ResourceFunc("devices/{id}/state", func(_ context.Context, p *core.Publish[*session]) error {
			id, _ = p.Param("id")
			return nil
		}))

	s.Require().NoError(svc.Call(s.ctx, s.publish("devices/17/state")))
	s.Assert().Equal("17", id)
}

func (s *AppSuite) TestFactoriesReceiveSession() {
	f := &recordingFactory{name: "f"}
	s.build(core.NewApp[*session](nil).Resource("t", f))

	s.Assert().Same(s.session, f.last().session)
}

func (s *AppSuite) TestEachSessionOwnsItsServices() {
	f := &recordingFactory{name: "f"}
	factory, err := core.NewApp[*session](nil).Resource("t", f).Build()
	s.Require().NoError(err)

	a, err := factory.NewService(s.ctx, &session{clientID: "a"})
	s.Require().NoError(err)
	b, err := factory.NewService(s.ctx, &session{clientID: "b"})
	s.Require().NoError(err)

	s.Require().NoError(a.Call(s.ctx, s.publish("t")))

	s.Require().Len(f.built, 2)
	s.Assert().Len(f.built[0].topics, 1)
	s.Assert().Empty(f.built[1].topics)
	s.Assert().NotSame(a, b)
}

func (s *AppSuite) TestPollReady() {
	first := &fakeService{ready: core.Ready}
	second := &fakeService{ready: core.NotReady}
	third := &fakeService{ready: core.Ready}
	svc := s.build(core.NewApp[*session](nil).
		Resource("1", core.Stateless[*session](first)).
		Resource("2", core.Stateless[*session](second)).
		Resource("3", core.Stateless[*session](third)))

	r, err := svc.PollReady()
	s.Require().NoError(err)
	s.Assert().Equal(core.NotReady, r)
	s.Assert().Equal([]int{1, 1, 1}, []int{first.polls, second.polls, third.polls})

	second.ready = core.Ready
	r, err = svc.PollReady()
	s.Require().NoError(err)
	s.Assert().Equal(core.Ready, r)
	s.Assert().Equal([]int{2, 2, 2}, []int{first.polls, second.polls, third.polls})
}

func (s *AppSuite) TestPollReadyStopsAtFirstError() {
	errSaturated := errors.New("saturated")
	first := &fakeService{ready: core.NotReady}
	second := &fakeService{readyErr: errSaturated}
	third := &fakeService{ready: core.Ready}
	svc := s.build(core.NewApp[*session](nil).
		Resource("1", core.Stateless[*session](first)).
		Resource("2", core.Stateless[*session](second)).
		Resource("3", core.Stateless[*session](third)))

	r, err := svc.PollReady()

	s.Assert().Same(errSaturated, err)
	s.Assert().Equal(core.NotReady, r)
	s.Assert().Equal(1, first.polls)
	s.Assert().Equal(0, third.polls)
}

func (s *AppSuite) TestEmptyAppIsReady() {
	r, err := s.build(core.NewApp[*session](nil)).PollReady()
	s.Require().NoError(err)
	s.Assert().Equal(core.Ready, r)
}

func (s *AppSuite) TestConstructionFailureFailsWholeSession() {
	errDB := errors.New("db down")
	ok := &recordingFactory{name: "ok"}
	factory, err := core.NewApp[*session](nil).
		Resource("ok", ok).
		Resource("bad", &recordingFactory{err: errDB}).
		Build()
	s.Require().NoError(err)

	svc, err := factory.NewService(s.ctx, s.session)

	s.Assert().Nil(svc)
	s.Assert().ErrorIs(err, errDB)
	var initErr *core.InitError
	s.Require().ErrorAs(err, &initErr)
	s.Assert().Equal("bad", initErr.Pattern)
	s.Assert().Equal(1, initErr.Index)

	// The instance that was built is dropped with the failed session.
	s.Require().Len(ok.built, 1)
	s.Assert().True(ok.built[0].closed)
}

func (s *AppSuite) TestConstructionFailureCancelsSiblings() {
	errFirst := errors.New("first")
	var siblingErr error
	done := make(chan struct{})
	blocking := core.FactoryFunc[*session](func(ctx context.Context, _ *session) (core.Service[*session], error) {
		defer close(done)
		<-ctx.Done()
		siblingErr = ctx.Err()
		return nil, ctx.Err()
	})
	factory, err := core.NewApp[*session](nil).
		Resource("slow", blocking).
		Resource("fast", &recordingFactory{err: errFirst}).
		Build()
	s.Require().NoError(err)

	_, err = factory.NewService(s.ctx, s.session)

	<-done
	s.Assert().ErrorIs(err, errFirst)
	s.Assert().ErrorIs(siblingErr, context.Canceled)
}

func (s *AppSuite) TestBuildRejectsInvalidPattern() {
	_, err := core.NewApp[*session](nil).
		ResourceFunc("ok", func(context.Context, *core.Publish[*session]) error { return nil }).
		ResourceFunc("a/#/b", func(context.Context, *core.Publish[*session]) error { return nil }).
		Build()

	s.Assert().ErrorIs(err, core.ErrInvalidPattern)
}

func (s *AppSuite) TestNestedApps() {
	inner := &recordingFactory{name: "inner"}
	innerApp, err := core.NewApp[*session](nil).Resource("sensors/temp", inner).Build()
	s.Require().NoError(err)

	svc := s.build(core.NewApp[*session](nil).Resource("sensors/#", innerApp))

	s.Require().NoError(svc.Call(s.ctx, s.publish("sensors/temp")))
	s.Assert().ErrorIs(svc.Call(s.ctx, s.publish("sensors/humidity")), core.ErrNoRoute)
	s.Assert().Equal([]string{"sensors/temp"}, inner.last().topics)
}

func (s *AppSuite) TestCloseClosesOwnedServices() {
	f := &recordingFactory{name: "f"}
	svc := s.build(core.NewApp[*session](nil).Resource("t", f))

	s.Require().NoError(svc.Close())
	s.Assert().True(f.last().closed)
}

func (s *AppSuite) TestCloseLeavesSharedServicesOpen() {
	shared := &fakeService{ready: core.Ready}
	factory, err := core.NewApp[*session](nil).
		Resource("t", core.Stateless[*session](shared)).
		Build()
	s.Require().NoError(err)

	a, err := factory.NewAppService(s.ctx, &session{clientID: "a"})
	s.Require().NoError(err)
	b, err := factory.NewAppService(s.ctx, &session{clientID: "b"})
	s.Require().NoError(err)

	s.Require().NoError(a.Close())

	s.Assert().False(shared.closed)
	s.Require().NoError(b.Call(s.ctx, s.publish("t")))
	s.Assert().Equal([]string{"t"}, shared.topics)
}

func (s *AppSuite) TestFailedConstructionLeavesSharedServicesOpen() {
	shared := &fakeService{ready: core.Ready}
	factory, err := core.NewApp[*session](nil).
		Resource("shared", core.Stateless[*session](shared)).
		Resource("bad", &recordingFactory{err: errors.New("boom")}).
		Build()
	s.Require().NoError(err)

	_, err = factory.NewService(s.ctx, s.session)

	s.Require().Error(err)
	s.Assert().False(shared.closed)
}

func (s *AppSuite) TestNotFoundReturningNilStillFails() {
	calls := 0
	svc := s.build(core.NewApp[*session](func(*core.Publish[*session]) error {
		calls++
		return nil
	}))

	err := svc.Call(s.ctx, s.publish("nowhere"))

	s.Assert().ErrorIs(err, core.ErrNoRoute)
	s.Assert().Contains(err.Error(), "nowhere")
	s.Assert().Equal(1, calls)
}

func (s *AppSuite) TestWrapAppliesMiddlewareInOrder() {
	var order []string
	mw := func(name string) core.Middleware[*session] {
		return func(next core.Service[*session]) core.Service[*session] {
			return core.ServiceFunc[*session](func(ctx context.Context, p *core.Publish[*session]) error {
				order = append(order, name+":before")
				err := next.Call(ctx, p)
				order = append(order, name+":after")
				return err
			})
		}
	}
	handler := core.Stateless[*session](core.ServiceFunc[*session](func(context.Context, *core.Publish[*session]) error {
		order = append(order, "handler")
		return nil
	}))

	svc := s.build(core.NewApp[*session](nil).Resource("t", core.Wrap(handler, mw("A"), mw("B"))))
	s.Require().NoError(svc.Call(s.ctx, s.publish("t")))

	s.Assert().Equal([]string{"A:before", "B:before", "handler", "B:after", "A:after"}, order)
}

func (s *AppSuite) TestWaitReady() {
	svc := &flippingService{readyAfter: 3}

	err := core.WaitReady[*session](s.ctx, svc, time.Millisecond)

	s.Require().NoError(err)
	s.Assert().Equal(3, svc.polls)
}

func (s *AppSuite) TestWaitReadyHonoursContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := core.WaitReady[*session](ctx, &fakeService{ready: core.NotReady}, time.Millisecond)

	s.Assert().ErrorIs(err, context.Canceled)
}

type flippingService struct {
	readyAfter int
	polls      int
}

func (f *flippingService) PollReady() (core.Readiness, error) {
	f.polls++
	if f.polls >= f.readyAfter {
		return core.Ready, nil
	}
	return core.NotReady, nil
}

func (f *flippingService) Call(context.Context, *core.Publish[*session]) error { return nil }
