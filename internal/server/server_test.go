package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/tvbridge/internal/registry"
	"github.com/HerbHall/tvbridge/internal/testutil"
	"github.com/HerbHall/tvbridge/internal/version"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

type stubModule struct {
	name   string
	health string
}

func (m *stubModule) Info() plugin.PluginInfo                         { return plugin.PluginInfo{Name: m.name, Version: "1.0.0"} }
func (m *stubModule) Init(context.Context, plugin.Dependencies) error { return nil }
func (m *stubModule) Start(context.Context) error                     { return nil }
func (m *stubModule) Stop(context.Context) error                      { return nil }

func (m *stubModule) Health(context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{Status: m.health}
}

func (m *stubModule) Routes() []plugin.Route {
	return []plugin.Route{{
		Method: http.MethodGet,
		Path:   "/{id}",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
		},
	}}
}

func newTestServer(t *testing.T, health string) *Server {
	t.Helper()
	reg := registry.New(testutil.Logger())
	require.NoError(t, reg.Register(&stubModule{name: "devices", health: health}))
	require.NoError(t, reg.Validate())
	require.NoError(t, reg.InitAll(context.Background(), func(string) plugin.Dependencies {
		return plugin.Dependencies{Logger: testutil.Logger()}
	}))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "tvbridge_test_total", Help: "test"}))
	return New(":0", reg, promReg, testutil.Logger())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		module string
		want   string
	}{
		{"healthy", "ok"},
		{"degraded", "degraded"},
	}
	for _, tc := range tests {
		t.Run(tc.module, func(t *testing.T) {
			w := get(t, newTestServer(t, tc.module), "/api/v1/health")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, version.Short(), w.Header().Get(version.Header))

			var body healthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.want, body.Status)
			assert.Equal(t, "tvbridge", body.Service)
			assert.Equal(t, tc.module, body.Modules["devices"].Status)
		})
	}
}

func TestModules(t *testing.T) {
	w := get(t, newTestServer(t, "healthy"), "/api/v1/modules")
	require.Equal(t, http.StatusOK, w.Code)

	var body []plugin.PluginInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "devices", body[0].Name)
}

func TestModuleRoutesMounted(t *testing.T) {
	w := get(t, newTestServer(t, "healthy"), "/api/v1/devices/den")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"den"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newTestServer(t, "healthy"), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "tvbridge_test_total"))
}
