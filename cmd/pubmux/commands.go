package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miladsoleymani/pubmux/auth"
	"github.com/miladsoleymani/pubmux/broker"
	"github.com/miladsoleymani/pubmux/config"
	"github.com/miladsoleymani/pubmux/core/middleware"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pubmux version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pubmux %s\n", version)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		clientID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a connect token for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, expires, err := auth.NewJWTAuth(cfg.Auth.JWTSecret).GenerateToken(clientID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Validate and print the configured routes in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Routes compile without a live broker; Forward only needs one per session.
			if _, err := buildApp(cfg, nil, &middleware.Counters{}, cfg.Logging.NewLogger(cmd.ErrOrStderr())); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, r := range cfg.Routes {
				fmt.Fprintf(out, "%d\t%s\t-> %s\n", i, r.Pattern, r.Mapper()(r.Pattern))
			}
			fmt.Fprintf(out, "brokers: %v\n", broker.Names())
			return nil
		},
	}
}
