package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute is returned by the default not-found handler when no
	// registered pattern matches the publish topic.
	ErrNoRoute = errors.New("pubmux: no handler registered for topic")

	// ErrInvalidPattern is returned by Build when a resource pattern cannot
	// be compiled.
	ErrInvalidPattern = errors.New("pubmux: invalid topic pattern")

	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("pubmux: broker is closed")

	// ErrNoBroker is returned when a broker-backed component is created without one.
	ErrNoBroker = errors.New("pubmux: broker is nil")
)

// InitError reports that the factory registered for a resource failed to
// build its service for a session. App normalizes every construction error
// into an InitError at registration time.
type InitError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("pubmux: init resource %d (%q): %v", e.Index, e.Pattern, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
