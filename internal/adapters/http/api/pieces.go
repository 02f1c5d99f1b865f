package api

import (
	"net/http"

	"github.com/termitech/maestro/internal/domain/score"
)

// PiecesHandler serves the piece lookup collaborator.
type PiecesHandler struct {
	deps Dependencies
}

// NewPiecesHandler creates a new pieces handler.
func NewPiecesHandler(deps Dependencies) *PiecesHandler {
	return &PiecesHandler{deps: deps}
}

// pieceInfo is the list shape: schedule sizes instead of full
// schedules.
type pieceInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Composer   string  `json:"composer,omitempty"`
	TotalNotes int     `json:"totalNotes"`
	TotalBeats float64 `json:"totalBeats"`
}

type pieceListResponse struct {
	Pieces []pieceInfo `json:"pieces"`
	Count  int         `json:"count"`
}

// HandleList handles GET /pieces requests.
func (h *PiecesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pieces := h.deps.ListPieces(r.Context())
	infos := make([]pieceInfo, 0, len(pieces))
	for _, p := range pieces {
		infos = append(infos, pieceInfo{
			ID:         p.ID,
			Name:       p.Name,
			Composer:   p.Composer,
			TotalNotes: p.TotalNotes(score.HandsBoth),
			TotalBeats: p.Schedule.TotalBeats(),
		})
	}
	writeJSON(w, http.StatusOK, pieceListResponse{Pieces: infos, Count: len(infos)})
}

// HandleGet handles GET /pieces/{id} requests, returning the full
// schedule.
func (h *PiecesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.GetPiece(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
