// Package api exposes the HTTP interface for the tablepilot service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/config"
	"github.com/JakeFAU/tablepilot/internal/dispatcher"
	"github.com/JakeFAU/tablepilot/internal/metrics"
	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// LobbyScheduler serves on-demand lobby reads. *pilot.Scheduler satisfies
// this.
type LobbyScheduler interface {
	Fetch(ctx context.Context, params map[string]string) pilot.FetchResult
	Invalidate()
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	sessions   pilot.SessionStore
	snapshots  pilot.SnapshotStore
	lobby      LobbyScheduler
	dispatcher *dispatcher.Dispatcher
	idGen      pilot.IDGenerator
	clock      pilot.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sessions pilot.SessionStore,
	snapshots pilot.SnapshotStore,
	lobby LobbyScheduler,
	dispatcher *dispatcher.Dispatcher,
	idGen pilot.IDGenerator,
	clock pilot.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions:   sessions,
		snapshots:  snapshots,
		lobby:      lobby,
		dispatcher: dispatcher,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/lobby", func(r chi.Router) {
			r.Get("/", s.getLobby)
			r.Post("/refresh", s.refreshLobby)
		})
		r.Route("/seats", func(r chi.Router) {
			r.Post("/", s.submitSeat)
			r.Route("/{seat_id}", func(r chi.Router) {
				r.Get("/", s.getSeat)
				r.Post("/cancel", s.cancelSeat)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The process serves as soon as wiring finishes; the lobby endpoints
	// surface source availability on their own.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getLobby(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.LatestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, pilot.ErrNoSnapshot) {
			writeError(w, http.StatusNotFound, "no lobby snapshot yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load lobby snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

func (s *Server) refreshLobby(w http.ResponseWriter, r *http.Request) {
	if s.lobby == nil {
		writeError(w, http.StatusServiceUnavailable, "lobby scheduler not configured")
		return
	}
	s.lobby.Invalidate()
	result := s.lobby.Fetch(r.Context(), nil)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) submitSeat(w http.ResponseWriter, r *http.Request) {
	var req seatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	filter, timeout, err := s.toSeatParameters(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seatID, err := s.enqueueSeat(r.Context(), filter, timeout)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pilot.ErrQueueFull):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"seat_id": seatID})
}

func (s *Server) getSeat(w http.ResponseWriter, r *http.Request) {
	seatID := chi.URLParam(r, "seat_id")
	job, err := s.sessions.GetSeatJob(r.Context(), seatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "seat job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seat": job})
}

func (s *Server) cancelSeat(w http.ResponseWriter, r *http.Request) {
	seatID := chi.URLParam(r, "seat_id")
	job, err := s.sessions.GetSeatJob(r.Context(), seatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "seat job not found")
		return
	}
	// Only queued jobs cancel cleanly; a running session already owns the
	// window.
	if job.Status != pilot.JobStatusQueued {
		writeError(w, http.StatusConflict, fmt.Sprintf("seat job is %s", job.Status))
		return
	}
	if err := s.sessions.UpdateSeatJob(r.Context(), seatID, pilot.JobStatusCanceled, "canceled via API", nil); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel seat job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"seat_id": seatID, "status": string(pilot.JobStatusCanceled)})
}

func (s *Server) enqueueSeat(ctx context.Context, filter pilot.TableFilter, timeout time.Duration) (string, error) {
	seatID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate seat id: %w", err)
	}
	now := s.clock.Now()
	job := pilot.SeatJob{
		ID:             seatID,
		Status:         pilot.JobStatusQueued,
		Submitted:      now,
		Filter:         filter,
		TimeoutSeconds: int(timeout / time.Second),
	}
	if err := s.sessions.CreateSeatJob(ctx, job); err != nil {
		return "", fmt.Errorf("create seat job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req := pilot.SeatRequest{
		JobID:     seatID,
		Filter:    filter,
		Timeout:   timeout,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, req); err != nil {
		// The job row exists but no worker will ever pick it up; close it
		// out so it does not sit queued forever.
		if updateErr := s.sessions.UpdateSeatJob(ctx, seatID, pilot.JobStatusFailed, "seat queue rejected the job", nil); updateErr != nil {
			s.logger.Warn("orphaned seat job cleanup failed", zap.String("seat_id", seatID), zap.Error(updateErr))
		}
		return "", fmt.Errorf("enqueue seat job: %w", err)
	}
	return seatID, nil
}

func (s *Server) toSeatParameters(req seatRequest) (pilot.TableFilter, time.Duration, error) {
	if req.MinPlayers < 0 || req.MaxPlayers < 0 || req.MaxSeats < 0 {
		return pilot.TableFilter{}, 0, errors.New("player and seat bounds must be non-negative")
	}
	if req.MaxPlayers > 0 && req.MinPlayers > req.MaxPlayers {
		return pilot.TableFilter{}, 0, errors.New("min_players exceeds max_players")
	}
	filter := pilot.TableFilter{
		Game:       req.Game,
		MinPlayers: req.MinPlayers,
		MaxPlayers: req.MaxPlayers,
		MaxSeats:   req.MaxSeats,
	}
	timeout := s.cfg.SeatTimeout()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return filter, timeout, nil
}

type seatRequest struct {
	Game           string `json:"game"`
	MinPlayers     int    `json:"min_players"`
	MaxPlayers     int    `json:"max_players"`
	MaxSeats       int    `json:"max_seats"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// requestIDMiddleware tags every request. An inbound X-Request-ID is kept so
// callers can correlate across their own logs; otherwise a fresh UUID is
// assigned.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", requestIDFrom(r.Context())),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
