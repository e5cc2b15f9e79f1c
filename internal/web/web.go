// Package web exposes the cached calendar over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portalics/internal/config"
	appLog "portalics/internal/log"
	"portalics/internal/metrics"
	"portalics/internal/refresh"
)

// Server provides the feed endpoints: the calendar itself, a health probe
// and Prometheus metrics.
type Server struct {
	cfg       *config.Config
	refresher *refresh.Refresher
	mux       *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, refresher *refresh.Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		refresher: refresher,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured for the
// served endpoints.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.ServeAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	if s.cfg.ServeAuth.Username == "" || s.cfg.ServeAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /healthz and /metrics with
// HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.ServeAuth.Username
	password := s.cfg.ServeAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="portalics", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// handleCalendar serves the cached ICS artifact, refreshing it first when
// expired. Internal refresh failures never surface as HTTP errors: worst
// case is an empty calendar body with a 200.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.CalendarRequests.Inc()

	body, err := s.refresher.Calendar(r.Context())
	if err != nil {
		appLog.Error("calendar refresh failed, serving empty feed", err)
		body = nil
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// healthResponse is the JSON response shape for /healthz.
type healthResponse struct {
	Status       string    `json:"status"`
	HasArtifact  bool      `json:"has_artifact"`
	CacheExpires time.Time `json:"cache_expires"`
	EventCount   int       `json:"event_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.refresher.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		HasArtifact:  st.HasArtifact,
		CacheExpires: st.Expires,
		EventCount:   st.EventCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
