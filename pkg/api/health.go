// Package api exposes the daemon's own HTTP surface: liveness,
// readiness, and Prometheus metrics. It carries no wire-protocol logic
// of its own — that lives in pkg/launcher and pkg/transport.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/iot-launcher/pkg/launcher"
	"github.com/cuemby/iot-launcher/pkg/metrics"
)

// HealthServer serves /health, /ready, and /metrics for one daemon
// process.
type HealthServer struct {
	launcher *launcher.Launcher
	mux      *http.ServeMux
}

// NewHealthServer builds a HealthServer reporting on l. l may be nil —
// readiness then always reports "not ready", which is the correct
// answer before the daemon has finished wiring its collaborators.
func NewHealthServer(l *launcher.Launcher) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{launcher: l, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start blocks serving addr until the listener fails.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health body: liveness only, never readiness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// healthHandler answers whether the process itself is alive. It never
// fails: a daemon that can run this handler is, by definition, alive.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy", Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler answers whether the daemon is ready to accept launcher
// and app connections, per the launcher's own Health check.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := map[string]string{"launcher": "not initialized"}
	ready := false
	if hs.launcher != nil {
		checks, ready = hs.launcher.Health()
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
