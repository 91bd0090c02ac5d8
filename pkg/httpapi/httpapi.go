// Package httpapi exposes the daemon's current snapshots over a small
// read-only JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/cubohome/cubod/pkg/alert"
	"github.com/cubohome/cubod/pkg/camera"
	"github.com/cubohome/cubod/pkg/client"
	"github.com/cubohome/cubod/pkg/utils"
)

// Source - read-only access to the daemon's current data
type Source interface {
	DeviceIDs() []string
	Snapshot(deviceID string) camera.Snapshot
	RecentAlerts(deviceID string) []alert.Record
	Subscriptions() []client.Subscription
	Lullabies() []client.Lullaby
}

// Server - read-only HTTP API server
type Server struct {
	Addr   string
	Source Source

	router chi.Router
}

// NewServer - constructor
func NewServer(addr string, source Source) *Server {
	server := &Server{
		Addr:   addr,
		Source: source,
		router: chi.NewRouter(),
	}

	server.routes()
	return server
}

// Handler - returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run - serves the API until the context is cancelled
func (s *Server) Run(ctx utils.GracefulContext) {
	httpServer := &http.Server{
		Addr:    s.Addr,
		Handler: s.router,
	}

	go func() {
		log.Info().Str("addr", s.Addr).Msg("Starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP API terminated")
			ctx.Fail(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP API shutdown failed")
	}
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/api/cameras", s.handleCameras)
	s.router.Get("/api/cameras/{deviceID}/state", s.handleCameraState)
	s.router.Get("/api/cameras/{deviceID}/alerts", s.handleCameraAlerts)
	s.router.Get("/api/subscription", s.handleSubscription)
	s.router.Get("/api/lullabies", s.handleLullabies)
}

type sensorView struct {
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Available  bool                   `json:"available"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func snapshotView(snapshot camera.Snapshot) map[string]sensorView {
	view := make(map[string]sensorView, len(snapshot))
	for section, state := range snapshot {
		view[string(section)] = sensorView{
			State:      state.State,
			Attributes: state.Attributes,
			Available:  state.Available,
			UpdatedAt:  state.UpdatedAt,
		}
	}

	return view
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCameras(w http.ResponseWriter, _ *http.Request) {
	cameras := make(map[string]map[string]sensorView)
	for _, deviceID := range s.Source.DeviceIDs() {
		cameras[deviceID] = snapshotView(s.Source.Snapshot(deviceID))
	}

	writeJSON(w, http.StatusOK, cameras)
}

func (s *Server) handleCameraState(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	snapshot := s.Source.Snapshot(deviceID)
	state, ok := snapshot[camera.SectionCameraState]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown device"})
		return
	}

	writeJSON(w, http.StatusOK, sensorView{
		State:      state.State,
		Attributes: state.Attributes,
		Available:  state.Available,
		UpdatedAt:  state.UpdatedAt,
	})
}

func (s *Server) handleCameraAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	records := s.Source.RecentAlerts(deviceID)
	views := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		views = append(views, record.Attributes())
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSubscription(w http.ResponseWriter, _ *http.Request) {
	subscriptions := s.Source.Subscriptions()
	if subscriptions == nil {
		subscriptions = []client.Subscription{}
	}

	writeJSON(w, http.StatusOK, subscriptions)
}

func (s *Server) handleLullabies(w http.ResponseWriter, _ *http.Request) {
	lullabies := s.Source.Lullabies()
	if lullabies == nil {
		lullabies = []client.Lullaby{}
	}

	writeJSON(w, http.StatusOK, lullabies)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Unable to encode API response")
	}
}
