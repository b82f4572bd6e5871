// Package pubmux provides the top-level API for routing the publish path of a
// messaging server. It re-exports core types for convenience, so users can
// write:
//
//	app := pubmux.New[*Session]().
//	    Resource("devices/{id}/state", stateFactory).
//	    ResourceFunc("logs/#", writeLog)
//	factory, err := app.Build()
package pubmux

import (
	"github.com/miladsoleymani/pubmux/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Publish[S any]        = core.Publish[S]
	Service[S any]        = core.Service[S]
	ServiceFactory[S any] = core.ServiceFactory[S]
	ServiceFunc[S any]    = core.ServiceFunc[S]
	Middleware[S any]     = core.Middleware[S]
	App[S any]            = core.App[S]
	AppFactory[S any]     = core.AppFactory[S]
	Readiness             = core.Readiness
	InitError             = core.InitError
)

const (
	NotReady = core.NotReady
	Ready    = core.Ready
)

// New creates an App whose unmatched publishes fail with core.ErrNoRoute.
func New[S any](opts ...core.AppOption) *App[S] {
	return core.NewApp[S](nil, opts...)
}
