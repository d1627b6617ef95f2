package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/stocktake/internal/domain"
	"github.com/vbonduro/stocktake/internal/session"
)

// SessionEngine is the part of session.Engine the HTTP layer drives.
type SessionEngine interface {
	StartSession(ctx context.Context, areaID int64, method domain.CountMethod) (*domain.StockSession, error)
	PauseSession(ctx context.Context, returnLocationID string) error
	ResumeSession(ctx context.Context, areaID int64) (*domain.StockSession, string, error)
	CompleteSession(ctx context.Context) (*session.Summary, error)
	Next() (domain.AreaItem, error)
	Previous() (domain.AreaItem, error)
	Skip() (domain.AreaItem, error)
	RecordDecision(ctx context.Context, itemID int64, qty decimal.Decimal, method domain.CountMethod, opts session.DecisionOpts) error
	SetSessionItemQuantity(itemID int64, qty decimal.Decimal) (domain.Band, error)
	Status() (*session.Status, error)
	PendingCount() int
	AbandonPendingUpdate(ctx context.Context, id string) error
}

type Server struct {
	engine SessionEngine
	mux    *http.ServeMux
	logger *slog.Logger
}

func NewServer(engine SessionEngine, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /sessions", s.handleStartSession)
	s.mux.HandleFunc("GET /sessions/active", s.handleSessionStatus)
	s.mux.HandleFunc("POST /sessions/active/pause", s.handlePauseSession)
	s.mux.HandleFunc("POST /sessions/active/complete", s.handleCompleteSession)
	s.mux.HandleFunc("POST /sessions/active/next", s.handleNext)
	s.mux.HandleFunc("POST /sessions/active/previous", s.handlePrevious)
	s.mux.HandleFunc("POST /sessions/active/skip", s.handleSkip)
	s.mux.HandleFunc("POST /sessions/active/decisions", s.handleRecordDecision)
	s.mux.HandleFunc("PATCH /sessions/active/items/{id}", s.handleSetItemQuantity)
	s.mux.HandleFunc("POST /areas/{id}/resume", s.handleResumeSession)
	s.mux.HandleFunc("GET /pending", s.handlePendingCount)
	s.mux.HandleFunc("DELETE /pending/{id}", s.handleAbandonPending)
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, s.mux).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error          string   `json:"error"`
	UndecidedItems []string `json:"undecided_items,omitempty"`
}

// writeError maps domain errors to HTTP statuses. Anything unmapped is a 500
// with a generic body; the detail goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var incomplete *domain.IncompleteDecisionsError
	switch {
	case errors.Is(err, domain.ErrSessionConflict):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrNoPausedSession),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrPendingNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidMethod),
		errors.Is(err, domain.ErrSkippedImmutable):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.As(err, &incomplete):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), UndecidedItems: incomplete.ItemNames})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
