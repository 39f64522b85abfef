// Package web is the pull transport: a JSON API over the gateway. Handlers
// never touch component internals; every read and mutation goes through the
// same gateway the push transport uses.
package web

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/gateway"
)

// Server serves the API over HTTP.
type Server struct {
	httpServer *http.Server
	gw         *gateway.Gateway
	log        *zap.SugaredLogger

	// now is the clock for snapshot views. Tests pin it.
	now func() time.Time
}

// New creates a Server over the gateway. metricsHandler, if non-nil, is
// mounted at /metrics.
func New(addr string, gw *gateway.Gateway, log *zap.SugaredLogger, metricsHandler http.Handler) *Server {
	s := &Server{gw: gw, log: log, now: time.Now}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/zones", s.handleZonesGet).Methods(http.MethodGet)
	api.HandleFunc("/zones", s.handleZonesPost).Methods(http.MethodPost)
	api.HandleFunc("/zones-names", s.handleNamesGet).Methods(http.MethodGet)
	api.HandleFunc("/zones-names", s.handleNamesPost).Methods(http.MethodPost)

	api.HandleFunc("/programs", s.handleProgramsGet).Methods(http.MethodGet)
	api.HandleFunc("/programs", s.handleProgramAdd).Methods(http.MethodPost)
	api.HandleFunc("/programs", s.handleProgramsClear).Methods(http.MethodDelete)
	api.HandleFunc("/programs/import", s.handleProgramsImport).Methods(http.MethodPost)
	api.HandleFunc("/programs/export", s.handleProgramsGet).Methods(http.MethodGet)
	api.HandleFunc("/programs/{id:[0-9]+}", s.handleProgramEdit).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/programs/{id:[0-9]+}", s.handleProgramDelete).Methods(http.MethodDelete)

	api.HandleFunc("/weather", s.handleWeather).Methods(http.MethodGet)
	api.HandleFunc("/rain-history", s.handleRainHistory).Methods(http.MethodGet)
	api.HandleFunc("/watering-percent", s.handleWateringPercent).Methods(http.MethodGet)

	api.HandleFunc("/logs", s.handleLogsGet).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogsClear).Methods(http.MethodDelete)

	api.HandleFunc("/settings", s.handleSettingsGet).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettingsPost).Methods(http.MethodPost)

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(os.Stdout, r),
	}
	return s
}

// Handler exposes the routed handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
