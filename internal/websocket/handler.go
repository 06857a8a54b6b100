package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

// Dispatcher is the command-routing side of the protocol, satisfied by the
// router. Declared here so the transport does not import it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Conn, env protocol.Envelope)
	Disconnect(conn interfaces.Conn)
}

// Options tune the transport per deployment.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
	MaxFrameSize int64
}

// Handler upgrades HTTP requests to websocket connections and pumps inbound
// envelopes into the dispatcher. Each connection's read loop processes its
// commands strictly in arrival order.
type Handler struct {
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(dispatcher Dispatcher, opts Options, log *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		opts:       opts,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin enforcement happens at the reverse proxy.
				return true
			},
		},
	}
}

// Serve upgrades the request and runs the connection until it drops. Join,
// leave, and every other command arrive through the protocol itself; nothing
// is authenticated at upgrade time.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.opts.SendBuffer, h.opts.WriteTimeout, h.opts.PingInterval)
	h.log.Debug("connection opened", zap.String("conn_id", conn.ID()))

	h.readLoop(r.Context(), conn, ws)

	// An abrupt drop behaves exactly like an explicit leave for whatever
	// binding the connection held.
	h.dispatcher.Disconnect(conn)
	_ = conn.Close()
	h.log.Debug("connection closed", zap.String("conn_id", conn.ID()))
}

func (h *Handler) readLoop(ctx context.Context, conn *Connection, ws *websocket.Conn) {
	if h.opts.MaxFrameSize > 0 {
		ws.SetReadLimit(h.opts.MaxFrameSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("connection read failed",
					zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
			if writeErr := conn.WriteEvent(protocol.EventError, protocol.ErrorEvent{
				Message: "malformed envelope",
				Code:    protocol.CodeInvalidPayload,
			}); writeErr != nil {
				return
			}
			continue
		}

		h.dispatcher.Dispatch(ctx, conn, env)
	}
}
