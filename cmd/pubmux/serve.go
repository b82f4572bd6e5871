package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/config"
	"github.com/miladsoleymani/pubmux/core/middleware"
	"github.com/miladsoleymani/pubmux/server"
	"github.com/miladsoleymani/pubmux/transport/ws"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the publish gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := cfg.Logging.NewLogger(os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	b, err := broker.Create(cfg.Broker.Name, cfg.Broker.Config)
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}

	counters := &middleware.Counters{}
	factory, err := buildApp(cfg, b, counters, logger)
	if err != nil {
		b.Close()
		return err
	}
	logger.Info("starting pubmux", "config", cfg.String(), "routes", factory.Patterns())

	opts := serverOptions(cfg, logger)
	clients := server.New(clientConnect(cfg), factory, opts...)

	gin.SetMode(gin.ReleaseMode)
	handler := ws.New(clients,
		ws.WithLogger(logger),
		ws.WithStats(func() any { return counters.Snapshot() }),
	)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if len(cfg.Subscriptions) > 0 {
		internal := server.New(internalConnect, factory, opts...)
		g.Go(func() error {
			// Run closes b once every subscription has stopped.
			return internal.Run(gctx, b, cfg.Subscriptions...)
		})
	} else {
		defer b.Close()
	}

	err = g.Wait()
	logger.Info("pubmux stopped", "error", err)
	return err
}
