// Package ws is the websocket transport: it upgrades HTTP requests,
// assigns session IDs and bridges socket frames to the lifecycle
// manager on the way in and the router's sinks on the way out.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/runtime"
)

// Handler upgrades incoming connections and spawns one Client per
// socket. Authentication happens later, on the go-online event, so the
// upgrade itself is unauthenticated by design of the wire protocol.
type Handler struct {
	log       *slog.Logger
	lifecycle *runtime.Lifecycle
	opts      Options
	upgrader  websocket.Upgrader
}

func NewHandler(log *slog.Logger, lifecycle *runtime.Lifecycle, opts Options) *Handler {
	return &Handler{
		log:       log,
		lifecycle: lifecycle,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	sessionID := uuid.NewString()
	h.log.Info("Connection opened", "session", sessionID, "remote", r.RemoteAddr)

	client := NewClient(h.log, conn, sessionID, h.lifecycle, h.opts)
	client.Run(r.Context())

	h.log.Info("Connection closed", "session", sessionID)
}
