package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/iot-launcher/pkg/cgroup"
	"github.com/cuemby/iot-launcher/pkg/launcher"
	"github.com/cuemby/iot-launcher/pkg/manifest"
	"github.com/cuemby/iot-launcher/pkg/privilege"
	"github.com/cuemby/iot-launcher/pkg/reactor"
)

func TestHealthHandlerAlwaysHealthy(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	hs.healthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHealthHandlerRejectsNonGet(t *testing.T) {
	hs := NewHealthServer(nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/health", nil)
		w := httptest.NewRecorder()
		hs.healthHandler(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "method %s", method)
	}
}

func TestReadyHandlerNotReadyWithoutLauncher(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.readyHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "not ready", resp.Status)
	assert.Equal(t, "not initialized", resp.Checks["launcher"])
}

func TestReadyHandlerRejectsNonGet(t *testing.T) {
	hs := NewHealthServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/ready", nil)
	w := httptest.NewRecorder()
	hs.readyHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestReadyHandlerReflectsLauncherHealth(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("skipping test that requires root permissions and a mounted cgroup v1 hierarchy")
	}

	loop, err := reactor.Create()
	require.NoError(t, err)
	defer loop.Close()

	cgc, err := cgroup.New(cgroup.Config{Name: "iot-launcher-test-api"})
	require.NoError(t, err)

	store := manifest.NewStore(manifest.Config{})
	l := launcher.New(launcher.Config{}, loop, store, cgc, privilege.AllowAllGate{})

	hs := NewHealthServer(l)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.readyHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["manifest_store"])
	assert.Equal(t, "ok", resp.Checks["cgroup_controller"])
	assert.Equal(t, "0", resp.Checks["apps_running"])
}

func TestMetricsEndpointServed(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	hs.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetHandler(t *testing.T) {
	hs := NewHealthServer(nil)
	handler := hs.GetHandler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
