package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/termitech/maestro/internal/adapters/registry"
	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/session"
)

// defaultBackfillLimit caps one /events page unless configured.
const defaultBackfillLimit = 1000

// SessionsHandler handles the session lifecycle endpoints.
type SessionsHandler struct {
	deps          Dependencies
	backfillLimit int
}

// NewSessionsHandler creates a new sessions handler. backfillLimit
// caps one /events page.
func NewSessionsHandler(deps Dependencies, backfillLimit int) *SessionsHandler {
	if backfillLimit <= 0 {
		backfillLimit = defaultBackfillLimit
	}
	return &SessionsHandler{deps: deps, backfillLimit: backfillLimit}
}

// controlRequest mirrors the body of POST /sessions/{id}/control.
type controlRequest struct {
	Command string `json:"command"`
}

type sessionListResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
	Count    int                `json:"count"`
}

type eventsResponse struct {
	SessionID string        `json:"sessionId"`
	Events    []event.Event `json:"events"`
	LastSeq   uint64        `json:"lastSeq"`
}

// HandleCreate handles POST /sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var spec registry.CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}
	if spec.PieceID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing pieceId", ErrBadRequest))
		return
	}

	snap, err := h.deps.CreateSession(r.Context(), spec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleList handles GET /sessions requests. Supports status and
// pieceId query filters.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f := registry.Filter{
		Status:  session.Status(r.URL.Query().Get("status")),
		PieceID: r.URL.Query().Get("pieceId"),
	}
	sessions := h.deps.ListSessions(f)
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions, Count: len(sessions)})
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.GetSession(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDelete handles DELETE /sessions/{id} requests. Deletion
// cancels any in-flight playback before removing the session.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleControl handles POST /sessions/{id}/control requests.
func (h *SessionsHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}

	snap, err := h.deps.ApplyCommand(r.Context(), r.PathValue("id"), req.Command)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleEvents handles GET /sessions/{id}/events requests: an offline
// backfill query over the retained window, bounded by limit.
func (h *SessionsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var sinceSeq uint64
	if raw := r.URL.Query().Get("since_seq"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid since_seq", ErrBadRequest))
			return
		}
		sinceSeq = v
	}

	limit := h.backfillLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid limit", ErrBadRequest))
			return
		}
		if v < limit {
			limit = v
		}
	}

	events, err := h.deps.Events(id, sinceSeq, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := eventsResponse{SessionID: id, Events: events}
	if len(events) > 0 {
		resp.LastSeq = events[len(events)-1].Seq
	}
	if resp.Events == nil {
		resp.Events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}
