package server

import (
	"context"
	"fmt"
	"time"
)

// Connect carries the connection handshake a transport received from a
// client before any publish.
type Connect struct {
	ClientID     string
	Username     string
	Password     []byte
	KeepAlive    time.Duration
	CleanSession bool
	Properties   map[string]string
}

// ConnectFunc turns a handshake into application session state. Returning
// an error rejects the connection.
type ConnectFunc[S any] func(ctx context.Context, c *Connect) (S, error)

// ConnectError reports a rejected handshake.
type ConnectError struct {
	ClientID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pubmux: connect %q rejected: %v", e.ClientID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
