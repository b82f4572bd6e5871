package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Option configures a Handler.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	connectTimeout time.Duration
	checkOrigin    func(*http.Request) bool
	stats          func() any
}

func defaults() options {
	return options{
		logger:         slog.Default(),
		connectTimeout: 10 * time.Second,
	}
}

// WithLogger sets the logger for requests and connection failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConnectTimeout bounds how long a client may take to send its connect
// frame after the upgrade.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithCheckOrigin overrides the upgrader's origin check. The default rejects
// cross-origin browser requests.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(o *options) { o.checkOrigin = fn }
}

// WithStats adds the value returned by fn to every /healthz response.
func WithStats(fn func() any) Option {
	return func(o *options) { o.stats = fn }
}

// requestLogger logs each request once it completes.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
