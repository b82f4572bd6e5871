// Package ws accepts client sessions over WebSocket and feeds their publishes
// into a server.Server.
//
// A client opens GET /mqtt and sends a connect frame first:
//
//	{"client_id": "sensor-7", "username": "u", "password": "<token>", "keep_alive": 30}
//
// Every later frame is one publish:
//
//	{"id": 1, "topic": "sensors/7/temp", "payload": {"c": 21.5}, "qos": 1, "retain": false}
//
// A string payload is delivered as its bytes; any other JSON value is
// delivered as raw JSON. Each frame is answered with {"ok": true} or
// {"ok": false, "error": "..."} carrying the frame's id when it had one.
// Publishes of one connection are dispatched concurrently, so replies may
// arrive out of order; clients match them by id. The connection stops
// reading while the session's routes report NotReady.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/miladsoleymani/pubmux/core"
	"github.com/miladsoleymani/pubmux/server"
)

// Reply answers a connect or publish frame.
type Reply struct {
	ID    uint16 `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler serves WebSocket client sessions.
type Handler[S any] struct {
	srv      *server.Server[S]
	opts     options
	upgrader websocket.Upgrader
}

// New creates a Handler that opens sessions on srv.
func New[S any](srv *server.Server[S], fns ...Option) *Handler[S] {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Handler[S]{
		srv:  srv,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.checkOrigin,
		},
	}
}

// Router returns a gin engine exposing /healthz and /mqtt.
func (h *Handler[S]) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.opts.logger))

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if h.opts.stats != nil {
			body["stats"] = h.opts.stats()
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/mqtt", h.ServeWS)
	return router
}

// ServeWS upgrades the request and runs one client session until the client
// disconnects or the request context ends.
func (h *Handler[S]) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.opts.logger.Warn("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	conn.SetReadDeadline(time.Now().Add(h.opts.connectTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		h.opts.logger.Debug("no connect frame", "remote", c.ClientIP(), "error", err)
		return
	}

	handshake, err := decodeConnect(frame)
	if err != nil {
		h.refuse(conn, err)
		return
	}
	sess, err := h.srv.Session(ctx, handshake)
	if err != nil {
		h.refuse(conn, err)
		return
	}
	defer sess.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(Reply{OK: true}); err != nil {
		return
	}
	h.readLoop(ctx, conn, sess, handshake.KeepAlive)
}

func (h *Handler[S]) readLoop(ctx context.Context, conn *websocket.Conn, sess *server.Session[S], keepAlive time.Duration) {
	logger := h.opts.logger.With("client_id", sess.ClientID())

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var writeMu sync.Mutex
	reply := func(r Reply) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(r)
	}
	// A readiness failure means the session's service is broken.
	broken := func(err error) bool {
		var rerr *server.ReadyError
		if !errors.As(err, &rerr) {
			return false
		}
		logger.Error("session ended", "error", err)
		h.close(conn, websocket.CloseInternalServerErr, "service unavailable")
		conn.Close()
		return true
	}

	for {
		// Frames stay unread while the session is saturated. A timeout here
		// is left for the publish to report.
		if broken(sess.WaitReady(ctx)) {
			return
		}

		if keepAlive > 0 {
			// A client may stay silent for one and a half keep-alive periods.
			conn.SetReadDeadline(time.Now().Add(keepAlive * 3 / 2))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		topic, payload, opts, id, err := decodePublish(frame)
		if err != nil {
			if werr := reply(Reply{ID: id, Error: err.Error()}); werr != nil {
				logger.Warn("websocket write failed", "error", werr)
				return
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			r := Reply{ID: id, OK: true}
			err := sess.Publish(ctx, topic, payload, opts...)
			if err != nil {
				r = Reply{ID: id, Error: err.Error()}
			}
			if werr := reply(r); werr != nil {
				logger.Debug("websocket write failed", "error", werr)
				return
			}
			broken(err)
		}()
	}
}

func (h *Handler[S]) refuse(conn *websocket.Conn, err error) {
	h.opts.logger.Info("connect refused", "error", err)
	_ = conn.WriteJSON(Reply{Error: err.Error()})
	h.close(conn, websocket.ClosePolicyViolation, "connect refused")
}

func (h *Handler[S]) close(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func decodeConnect(frame []byte) (*server.Connect, error) {
	if !gjson.ValidBytes(frame) {
		return nil, errMalformed
	}
	res := gjson.ParseBytes(frame)
	clientID := res.Get("client_id").String()
	if clientID == "" {
		return nil, errNoClientID
	}

	c := &server.Connect{
		ClientID:     clientID,
		Username:     res.Get("username").String(),
		Password:     []byte(res.Get("password").String()),
		KeepAlive:    time.Duration(min(max(res.Get("keep_alive").Int(), 0), maxKeepAlive)) * time.Second,
		CleanSession: res.Get("clean_session").Bool(),
	}
	if props := res.Get("properties"); props.IsObject() {
		c.Properties = make(map[string]string)
		props.ForEach(func(k, v gjson.Result) bool {
			c.Properties[k.String()] = v.String()
			return true
		})
	}
	return c, nil
}

func decodePublish(frame []byte) (string, []byte, []core.PublishOption, uint16, error) {
	if !gjson.ValidBytes(frame) {
		return "", nil, nil, 0, errMalformed
	}
	res := gjson.ParseBytes(frame)
	id := uint16(res.Get("id").Uint())

	topic := res.Get("topic").String()
	if topic == "" {
		return "", nil, nil, id, errNoTopic
	}

	var payload []byte
	switch p := res.Get("payload"); {
	case !p.Exists():
	case p.Type == gjson.String:
		payload = []byte(p.Str)
	default:
		payload = []byte(p.Raw)
	}

	qos := res.Get("qos").Int()
	if qos < 0 || qos > 2 {
		return "", nil, nil, id, errBadQoS
	}

	opts := []core.PublishOption{
		core.WithQoS(byte(qos)),
		core.WithRetain(res.Get("retain").Bool()),
		core.WithDup(res.Get("dup").Bool()),
		core.WithPacketID(id),
	}
	if hdrs := res.Get("headers"); hdrs.IsObject() {
		m := make(map[string]string)
		hdrs.ForEach(func(k, v gjson.Result) bool {
			m[k.String()] = v.String()
			return true
		})
		opts = append(opts, core.WithHeaders(m))
	}
	return topic, payload, opts, id, nil
}

// maxKeepAlive is the largest keep-alive, in seconds, a client may ask for.
const maxKeepAlive = 65535

var (
	errMalformed  = errors.New("malformed frame")
	errNoClientID = errors.New("client_id is required")
	errNoTopic    = errors.New("topic is required")
	errBadQoS     = errors.New("qos must be 0, 1 or 2")
)
