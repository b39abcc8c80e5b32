// Package handlers exposes the monitoring HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"hostwatch/internal/alerts"
	"hostwatch/internal/logger"
	"hostwatch/internal/middleware"
	"hostwatch/internal/monitor"
	"hostwatch/internal/policy"
	"hostwatch/internal/storage"
)

// Monitor is the part of monitor.Monitor the API drives.
type Monitor interface {
	TestChannel(ctx context.Context, ch alerts.Channel) (alerts.Intent, error)
	Current(ctx context.Context) monitor.Current
	Debug() monitor.DebugInfo
	Trigger()
}

// Config holds the API dependencies.
type Config struct {
	Policies *policy.Store
	Monitor  Monitor
	History  storage.History
	// TestRate is the number of test notifications allowed per minute.
	TestRate    int
	MaxBodySize int64
	// Stats, when set, backs GET /stats.
	Stats func() any
	Now   func() time.Time
}

// API serves the monitoring endpoints.
type API struct {
	policies    *policy.Store
	monitor     Monitor
	history     storage.History
	testLimiter *rate.Limiter
	maxBodySize int64
	stats       func() any
	now         func() time.Time
}

func New(cfg Config) *API {
	if cfg.TestRate <= 0 {
		cfg.TestRate = 6
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &API{
		policies:    cfg.Policies,
		monitor:     cfg.Monitor,
		history:     cfg.History,
		testLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.TestRate)), cfg.TestRate),
		maxBodySize: cfg.MaxBodySize,
		stats:       cfg.Stats,
		now:         cfg.Now,
	}
}

// Router returns the routes wrapped in recovery and request logging.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery, middleware.Logging)

	// kept on the root router: a PathPrefix subrouter answers a method
	// mismatch with 404 instead of 405
	r.HandleFunc("/api/monitoring-config", a.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/monitoring-config", a.putConfig).Methods(http.MethodPost)
	r.HandleFunc("/api/monitoring-status", a.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/monitoring-status", a.setStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/monitoring-test", a.testChannel).Methods(http.MethodPost)
	r.HandleFunc("/api/current-metrics", a.currentMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/monitoring-debug", a.debug).Methods(http.MethodGet)
	r.HandleFunc("/api/chart-data/{metric}", a.chartData).Methods(http.MethodGet)
	r.HandleFunc("/api/reset-chart-data", a.resetChartData).Methods(http.MethodPost)

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.statsHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) statsHandler(w http.ResponseWriter, _ *http.Request) {
	if a.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, a.stats())
}

// decode reads a JSON body of at most maxBodySize bytes. An empty body leaves
// v untouched.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Errors  []*policy.FieldError `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}
