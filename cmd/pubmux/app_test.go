package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/pubmux/auth"
	"github.com/miladsoleymani/pubmux/config"
	"github.com/miladsoleymani/pubmux/core"
	"github.com/miladsoleymani/pubmux/core/middleware"
	"github.com/miladsoleymani/pubmux/internal/mock"
	"github.com/miladsoleymani/pubmux/server"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Routes = []config.Route{
		{Pattern: "sensors/{id}/temp", Forward: "telemetry.{topic}"},
		{Pattern: "sensors/#", Forward: "sensors.other"},
	}
	return cfg
}

func TestBuildApp_ForwardsByRoute(t *testing.T) {
	mb := mock.NewBroker()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	counters := &middleware.Counters{}
	factory, err := buildApp(testConfig(), mb, counters, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"sensors/{id}/temp", "sensors/#"}, factory.Patterns())

	sess := &clientSession{ClientID: "c1"}
	svc, err := factory.NewService(context.Background(), sess)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.Call(ctx, core.NewPublish(sess, "sensors/a/temp", []byte("21"))))
	require.NoError(t, svc.Call(ctx, core.NewPublish(sess, "sensors/a/humidity", []byte("40"))))
	assert.ErrorIs(t, svc.Call(ctx, core.NewPublish(sess, "other", nil)), core.ErrNoRoute)

	published := mb.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "telemetry.sensors/a/temp", published[0].Topic)
	assert.Equal(t, []byte("21"), published[0].Payload)
	assert.Equal(t, "sensors.other", published[1].Topic)
	assert.Equal(t, int64(2), counters.Snapshot().Handled)
}

func TestBuildApp_InvalidRoute(t *testing.T) {
	cfg := config.Default()
	cfg.Routes = []config.Route{{Pattern: "a/#/b"}}

	_, err := buildApp(cfg, mock.NewBroker(), &middleware.Counters{}, slog.Default())
	assert.ErrorIs(t, err, core.ErrInvalidPattern)
}

func TestClientConnect(t *testing.T) {
	ctx := context.Background()

	open := clientConnect(config.Default())
	s, err := open(ctx, &server.Connect{ClientID: "c1", Username: "u"})
	require.NoError(t, err)
	assert.Equal(t, &clientSession{ClientID: "c1", Username: "u"}, s)

	_, err = open(ctx, &server.Connect{ClientID: subscriptionPrefix + "x"})
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"
	secured := clientConnect(cfg)

	_, err = secured(ctx, &server.Connect{ClientID: "c1"})
	assert.ErrorIs(t, err, auth.ErrEmptyToken)

	token, _, err := auth.NewJWTAuth("secret").GenerateToken("c1", time.Minute)
	require.NoError(t, err)
	s, err = secured(ctx, &server.Connect{ClientID: "c1", Password: []byte(token)})
	require.NoError(t, err)
	assert.Equal(t, "c1", s.ClientID)

	reserved := subscriptionPrefix + "x"
	token, _, err = auth.NewJWTAuth("secret").GenerateToken(reserved, time.Minute)
	require.NoError(t, err)
	_, err = secured(ctx, &server.Connect{ClientID: reserved, Password: []byte(token)})
	assert.ErrorContains(t, err, "reserved")
}

func TestInternalConnect(t *testing.T) {
	s, err := internalConnect(context.Background(), &server.Connect{ClientID: "subscription:a/#"})
	require.NoError(t, err)
	assert.True(t, s.Internal)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "pubmux dev\n", out.String())
}

func TestRoutesCommand(t *testing.T) {
	var out bytes.Buffer
	root := &cobra.Command{Use: "pubmux"}
	root.AddCommand(newRoutesCommand())
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"routes"})
	configPath = ""

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "brokers:")
}
