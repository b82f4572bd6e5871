package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miladsoleymani/pubmux/auth"
	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/config"
	"github.com/miladsoleymani/pubmux/core"
	"github.com/miladsoleymani/pubmux/core/middleware"
	"github.com/miladsoleymani/pubmux/server"
)

// clientSession is the state pubmux keeps for every connected client.
type clientSession struct {
	ClientID string
	Username string
	Internal bool
}

// buildApp compiles the configured routes into one dispatch factory. Every
// route forwards to b and reports to counters; unrouted publishes are logged
// and rejected.
func buildApp(cfg *config.Config, b broker.Broker, counters *middleware.Counters, logger *slog.Logger) (*core.AppFactory[*clientSession], error) {
	notFound := func(p *core.Publish[*clientSession]) error {
		logger.Warn("unrouted publish", "client_id", p.Session().ClientID, "topic", p.Topic())
		return fmt.Errorf("%w: %q", core.ErrNoRoute, p.Topic())
	}

	app := core.NewApp[*clientSession](notFound, core.WithLogger(logger))
	for _, r := range cfg.Routes {
		fwd := broker.Forward[*clientSession](b,
			broker.WithTopicMapper(r.Mapper()),
			broker.WithMaxInFlight(cfg.Session.MaxInFlight),
		)
		app.Resource(r.Pattern, core.Wrap(fwd,
			middleware.Recovery[*clientSession](logger),
			middleware.Logging[*clientSession](logger),
			middleware.Metrics[*clientSession](counters),
		))
	}

	f, err := app.Build()
	if err != nil {
		return nil, fmt.Errorf("build routes: %w", err)
	}
	return f, nil
}

// clientConnect accepts WebSocket clients, checking their token when a JWT
// secret is configured. Client ids under the subscription prefix are
// refused either way.
func clientConnect(cfg *config.Config) server.ConnectFunc[*clientSession] {
	build := func(_ context.Context, c *server.Connect, _ *auth.Claims) (*clientSession, error) {
		return &clientSession{ClientID: c.ClientID, Username: c.Username}, nil
	}
	connect := server.ConnectFunc[*clientSession](func(ctx context.Context, c *server.Connect) (*clientSession, error) {
		return build(ctx, c, nil)
	})
	if cfg.Auth.JWTSecret != "" {
		connect = auth.Connect(auth.NewJWTAuth(cfg.Auth.JWTSecret), build)
	}
	return func(ctx context.Context, c *server.Connect) (*clientSession, error) {
		if strings.HasPrefix(c.ClientID, subscriptionPrefix) {
			return nil, fmt.Errorf("client id prefix %q is reserved", subscriptionPrefix)
		}
		return connect(ctx, c)
	}
}

const subscriptionPrefix = "subscription:"

// internalConnect accepts the sessions pubmux opens for its own broker
// subscriptions.
func internalConnect(_ context.Context, c *server.Connect) (*clientSession, error) {
	return &clientSession{ClientID: c.ClientID, Internal: true}, nil
}

func serverOptions(cfg *config.Config, logger *slog.Logger) []server.Option {
	return []server.Option{
		server.WithLogger(logger),
		server.WithReadyInterval(cfg.Session.ReadyInterval),
		server.WithReadyTimeout(cfg.Session.ReadyTimeout),
	}
}
