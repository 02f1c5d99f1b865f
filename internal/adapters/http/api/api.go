// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/termitech/maestro/internal/adapters/history"
	"github.com/termitech/maestro/internal/adapters/registry"
	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/broadcast"
	"github.com/termitech/maestro/internal/engine/control"
	"github.com/termitech/maestro/internal/engine/driver"
)

// Dependencies required by HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to the engine wiring.
type Dependencies interface {
	// Session lifecycle.
	CreateSession(ctx context.Context, spec registry.CreateSpec) (session.Snapshot, error)
	GetSession(id string) (session.Snapshot, error)
	ListSessions(f registry.Filter) []session.Snapshot
	DeleteSession(ctx context.Context, id string) error

	// Control and playback.
	ApplyCommand(ctx context.Context, id, command string) (session.Snapshot, error)

	// Event access.
	Events(id string, sinceSeq uint64, limit int) ([]event.Event, error)
	Subscribe(ctx context.Context, id string) (*broadcast.Subscriber, error)
	SubscribeFrom(ctx context.Context, id string, cursor uint64) (*broadcast.Subscriber, error)

	// Piece lookup collaborator.
	ListPieces(ctx context.Context) []*score.Piece
	GetPiece(ctx context.Context, id string) (*score.Piece, error)
}

// Server wires HTTP routes for the performance API.
type Server struct {
	sessionsHandler *SessionsHandler
	streamHandler   *StreamHandler
	wsHandler       *WSHandler
	piecesHandler   *PiecesHandler
	historyHandler  *HistoryHandler
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

type serverConfig struct {
	backfillLimit int
}

// WithBackfillLimit caps how many events one backfill query may
// return regardless of the requested limit.
func WithBackfillLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.backfillLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, store *history.Store, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{backfillLimit: defaultBackfillLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		sessionsHandler: NewSessionsHandler(deps, cfg.backfillLimit),
		streamHandler:   NewStreamHandler(deps),
		wsHandler:       NewWSHandler(deps),
		piecesHandler:   NewPiecesHandler(deps),
		historyHandler:  NewHistoryHandler(store),
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleDelete, "session"))
	mux.HandleFunc("POST /sessions/{id}/control", MetricsMiddleware(s.sessionsHandler.HandleControl, "control"))
	mux.HandleFunc("GET /sessions/{id}/events", MetricsMiddleware(s.sessionsHandler.HandleEvents, "events"))
	mux.HandleFunc("GET /sessions/{id}/stream", s.streamHandler.HandleStream)
	mux.HandleFunc("GET /sessions/{id}/ws", s.wsHandler.HandleWS)

	mux.HandleFunc("GET /pieces", MetricsMiddleware(s.piecesHandler.HandleList, "pieces"))
	mux.HandleFunc("GET /pieces/{id}", MetricsMiddleware(s.piecesHandler.HandleGet, "piece"))

	mux.HandleFunc("GET /history", MetricsMiddleware(s.historyHandler.HandleList, "history"))
	mux.HandleFunc("GET /history/stats", MetricsMiddleware(s.historyHandler.HandleStatistics, "history_stats"))
	mux.HandleFunc("GET /history/{id}", MetricsMiddleware(s.historyHandler.HandleGet, "history_item"))
	mux.HandleFunc("DELETE /history/{id}", MetricsMiddleware(s.historyHandler.HandleDelete, "history_item"))

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates sentinel kinds from the engine into
// HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, score.ErrPieceNotFound),
		errors.Is(err, history.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, driver.ErrScheduleFault):
		writeError(w, http.StatusUnprocessableEntity, "schedule_fault", err)
	case errors.Is(err, registry.ErrInvalidTempo),
		errors.Is(err, score.ErrInvalidHands),
		errors.Is(err, control.ErrUnknownCommand),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
