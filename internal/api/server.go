package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/apperrors"
	"github.com/Belphemur/watchmirror/internal/broadcast"
	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/gateway"
	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/monitor"
	"github.com/Belphemur/watchmirror/internal/store"
	"github.com/Belphemur/watchmirror/internal/syncer"
)

// Server exposes the mirror over HTTP: the assembled history page, live
// updates over SSE, and operational endpoints. It only reads the cached
// shapes; every write still goes through the orchestrator or the
// invalidation coordinator.
type Server struct {
	orch    *syncer.Orchestrator
	store   *store.Store
	monitor *monitor.Monitor
	hub     *broadcast.Hub
	gw      *gateway.Gateway
	pageTTL time.Duration
	log     zerolog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(orch *syncer.Orchestrator, st *store.Store, mon *monitor.Monitor, hub *broadcast.Hub, gw *gateway.Gateway, pageTTL time.Duration) *Server {
	return &Server{
		orch:    orch,
		store:   st,
		monitor: mon,
		hub:     hub,
		gw:      gw,
		pageTTL: pageTTL,
		log:     config.GetLogger(),
	}
}

// Router builds the chi router for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/history", s.handleHistory)
		r.Get("/history/stats", s.handleStats)
		r.Post("/sync", s.handleForceSync)
		r.Get("/changed", s.handleChanged)
		r.Get("/gateway", s.handleGateway)
	})
	r.Get("/events", s.handleEvents)
	r.Get("/healthz", s.handleHealth)
	return r
}

// NewHTTPServer wraps the router in an http.Server bound per config.
func (s *Server) NewHTTPServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler: s.Router(),
	}
}

// handleHistory serves the assembled page, rebuilding it when the cached blob
// is missing or stale.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.store.LoadPage(s.pageTTL)
	if !ok {
		if err := s.orch.Rebuild(r.Context(), false); err != nil {
			s.fail(w, err)
			return
		}
		blob, ok = s.store.LoadPage(s.pageTTL)
		if !ok {
			s.fail(w, errors.New("page cache empty after rebuild"))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, blob)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	master, err := s.store.LoadMaster()
	if err != nil {
		s.fail(w, err)
		return
	}
	if master == nil {
		master = &models.MasterRecord{}
	}

	stats := struct {
		ShowCount  int        `json:"showCount"`
		MovieCount int        `json:"movieCount"`
		LastSyncAt *time.Time `json:"lastSyncAt"`
	}{
		ShowCount:  len(master.Shows),
		MovieCount: len(master.Movies),
		LastSyncAt: master.LastSyncAt,
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleForceSync runs one forced full rebuild.
func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Rebuild(r.Context(), true); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChanged(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"changed": s.monitor.RecentlyChanged()})
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gw.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents is the long-lived push stream. Each frame is written as one
// SSE data event; the subscriber is removed when the connection closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Register()
	defer sub.Close()

	for {
		select {
		case frame, open := <-sub.Frames:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// fail maps errors to responses: re-authentication is a distinguished 401 so
// the consumer can start the device flow; everything else degrades to a 500
// while the process stays alive.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var reauth *apperrors.ErrReauthRequired
	if errors.As(err, &reauth) {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "reauthentication required"})
		return
	}
	s.log.Error().Err(err).Msg("Request failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode response")
	}
}
