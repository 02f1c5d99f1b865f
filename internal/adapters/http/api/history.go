package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/termitech/maestro/internal/adapters/history"
	"github.com/termitech/maestro/internal/domain/session"
)

const defaultHistoryLimit = 20

// HistoryHandler serves finalized performance summaries.
type HistoryHandler struct {
	store *history.Store
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

type historyListResponse struct {
	Records []session.Summary `json:"records"`
	Count   int               `json:"count"`
}

// HandleList handles GET /history requests with limit, offset,
// pieceId and status query parameters.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		PieceID: r.URL.Query().Get("pieceId"),
		Status:  session.Status(r.URL.Query().Get("status")),
		Limit:   defaultHistoryLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid limit", ErrBadRequest))
			return
		}
		q.Limit = v
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid offset", ErrBadRequest))
			return
		}
		q.Offset = v
	}

	records := h.store.List(q)
	if records == nil {
		records = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, historyListResponse{Records: records, Count: len(records)})
}

// HandleGet handles GET /history/{id} requests.
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sum, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleDelete handles DELETE /history/{id} requests.
func (h *HistoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleStatistics handles GET /history/stats requests.
func (h *HistoryHandler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Statistics())
}
