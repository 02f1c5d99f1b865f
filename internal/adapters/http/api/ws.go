package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/termitech/maestro/internal/engine/broadcast"
	"github.com/termitech/maestro/pkg/logger"
)

// WSHandler serves the websocket variant of the live stream.
type WSHandler struct {
	deps Dependencies
	lg   logger.Logger
}

// NewWSHandler creates a new websocket stream handler.
func NewWSHandler(deps Dependencies) *WSHandler {
	return &WSHandler{deps: deps, lg: logger.Named("ws")}
}

// HandleWS handles GET /sessions/{id}/ws requests. The same event
// records as the SSE stream are pushed as JSON text messages; a
// `since` query parameter requests replay. The server closes the
// connection when the session reaches a terminal state.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	cursor, hasCursor, err := streamCursor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	id := r.PathValue("id")
	var sub *broadcast.Subscriber
	if hasCursor {
		sub, err = h.deps.SubscribeFrom(r.Context(), id, cursor)
	} else {
		sub, err = h.deps.Subscribe(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		// The engine carries no credentials; cross-origin viewers are
		// expected.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.lg.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	// Reader goroutine: clients send nothing meaningful, but reading
	// surfaces disconnects and close frames.
	go func() {
		defer sub.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() { _ = conn.Close() }()
	for e := range sub.Events() {
		if err := conn.WriteJSON(e); err != nil {
			sub.Close()
			return
		}
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
	if errors.Is(sub.Err(), broadcast.ErrSubscriberOverrun) {
		closeMsg = websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber overrun")
	}
	_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
}
