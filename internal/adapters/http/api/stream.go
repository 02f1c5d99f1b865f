package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/termitech/maestro/internal/engine/broadcast"
)

// StreamHandler serves the live SSE stream of a session's events.
type StreamHandler struct {
	deps Dependencies
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies) *StreamHandler {
	return &StreamHandler{deps: deps}
}

// HandleStream handles GET /sessions/{id}/stream requests. A `since`
// query parameter or a Last-Event-ID header requests replay of
// retained events after that sequence; without either, the stream is
// live-only. The stream ends when the session reaches a terminal
// state or the client disconnects.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("streaming unsupported"))
		return
	}

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
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The error frame carries the last delivered sequence so an
	// auto-reconnecting client resumes from its real position instead
	// of replaying the whole retained window.
	lastID := cursor
	for {
		select {
		case e, open := <-sub.Events():
			if !open {
				if errors.Is(sub.Err(), broadcast.ErrSubscriberOverrun) {
					_ = writeSSE(w, "error", lastID, map[string]string{"code": "subscriber_overrun"})
					flusher.Flush()
				}
				return
			}
			if err := writeSSE(w, string(e.Type), e.Seq, e); err != nil {
				return
			}
			lastID = e.Seq
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// streamCursor extracts the replay cursor from the `since` query
// parameter, falling back to the Last-Event-ID header on reconnects.
func streamCursor(r *http.Request) (uint64, bool, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: invalid since cursor %q", ErrBadRequest, raw)
	}
	return v, true, nil
}

// writeSSE emits one server-sent event frame. Ping frames carry the
// subscriber's last delivered sequence as their id so reconnects
// resume from the right place.
func writeSSE(w http.ResponseWriter, eventName string, seq uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, eventName, data)
	if err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	return nil
}
