package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/server"
	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

const maxBodyBytes = 4 << 10

// Routes mounts under /api/v1/devices.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "", Handler: m.handleList},
		{Method: http.MethodGet, Path: "/{id}", Handler: m.handleGet},
		{Method: http.MethodGet, Path: "/{id}/apps", Handler: m.handleApps},
		{Method: http.MethodGet, Path: "/{id}/screenshot", Handler: m.handleLatestScreenshot},
		{Method: http.MethodGet, Path: "/{id}/debug", Handler: m.handleDebugList},
		{Method: http.MethodGet, Path: "/{id}/ws", Handler: m.handleWebSocket},

		{Method: http.MethodPost, Path: "/{id}/refresh", Handler: m.limited(m.handleRefresh)},
		{Method: http.MethodPost, Path: "/{id}/reconnect", Handler: m.limited(m.handleReconnect)},
		{Method: http.MethodPost, Path: "/{id}/disconnect", Handler: m.limited(m.handleDisconnect)},
		{Method: http.MethodPost, Path: "/{id}/power", Handler: m.limited(m.handlePower)},
		{Method: http.MethodPost, Path: "/{id}/wifi", Handler: m.limited(m.handleWifi)},
		{Method: http.MethodPost, Path: "/{id}/volume", Handler: m.limited(m.handleVolume)},
		{Method: http.MethodPost, Path: "/{id}/mute", Handler: m.limited(m.handleMute)},
		{Method: http.MethodPost, Path: "/{id}/app", Handler: m.limited(m.handleApp)},
		{Method: http.MethodPost, Path: "/{id}/apps/refresh", Handler: m.limited(m.handleAppsRefresh)},
		{Method: http.MethodPost, Path: "/{id}/key", Handler: m.limited(m.handleKey)},
		{Method: http.MethodPost, Path: "/{id}/restart-app", Handler: m.limited(m.handleRestartApp)},
		{Method: http.MethodPost, Path: "/{id}/reboot", Handler: m.limited(m.handleReboot)},
		{Method: http.MethodPost, Path: "/{id}/screenshot", Handler: m.limited(m.handleScreenshot)},
		{Method: http.MethodPost, Path: "/{id}/debug/{name}", Handler: m.limited(m.handleDebug)},
	}
}

// limited rejects requests beyond the shared command budget with 429.
func (m *Module) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow() {
			server.RateLimited(w, "command rate limit exceeded", r.URL.Path)
			return
		}
		next(w, r)
	}
}

// lookup resolves {id} or writes a 404.
func (m *Module) lookup(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	id := r.PathValue("id")
	c, ok := m.coords[id]
	if !ok {
		server.NotFound(w, fmt.Sprintf("device %q not found", id), r.URL.Path)
	}
	return c, ok
}

// decode reads a small JSON body into v, writing a 400 on failure. An empty
// body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return false
	}
	return true
}

// respond writes the fresh snapshot after a command, or the matching
// problem when it failed.
func (m *Module) respond(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, ok bool) {
	snap := c.Snapshot()
	switch {
	case ok:
		server.WriteJSON(w, http.StatusOK, snap)
	case !snap.IsConnected:
		server.Unavailable(w, unavailableDetail(snap), r.URL.Path)
	default:
		server.CommandFailed(w, "device did not confirm the command", r.URL.Path)
	}
}

func unavailableDetail(s models.Snapshot) string {
	if s.LastError != "" {
		return "device unavailable: " + s.LastError
	}
	return "device unavailable"
}

type deviceSummary struct {
	models.Device
	Snapshot       models.Snapshot `json:"snapshot"`
	PowerIcon      string          `json:"power_icon"`
	ConnectionIcon string          `json:"connection_icon"`
}

func summarize(c *coordinator.Coordinator) deviceSummary {
	snap := c.Snapshot()
	return deviceSummary{
		Device:         c.Device(),
		Snapshot:       snap,
		PowerIcon:      snap.PowerState.Icon(),
		ConnectionIcon: snap.ConnectionState.Icon(),
	}
}

func (m *Module) handleList(w http.ResponseWriter, _ *http.Request) {
	out := make([]deviceSummary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, summarize(m.coords[id]))
	}
	server.WriteJSON(w, http.StatusOK, out)
}

func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, summarize(c))
}

func (m *Module) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	snap, err := c.Tick(r.Context())
	if err != nil {
		server.Unavailable(w, err.Error(), r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, snap)
}

func (m *Module) handleReconnect(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	m.respond(w, r, c, c.Reconnect(r.Context()))
}

func (m *Module) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	c.Disconnect(r.Context())
	server.WriteJSON(w, http.StatusOK, c.Snapshot())
}

type powerRequest struct {
	On    *bool `json:"on"`
	Quick bool  `json:"quick"`
}

func (m *Module) handlePower(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	var req powerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.On == nil {
		server.BadRequest(w, `"on" is required`, r.URL.Path)
		return
	}
	if req.Quick {
		m.respond(w, r, c, c.QuickSetPower(r.Context(), *req.On))
		return
	}
	m.respond(w, r, c, c.SetPower(r.Context(), *req.On))
}

type wifiRequest struct {
	Enabled *bool `json:"enabled"`
}

func (m *Module) handleWifi(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	var req wifiRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		server.BadRequest(w, `"enabled" is required`, r.URL.Path)
		return
	}
	m.respond(w, r, c, c.SetWifi(r.Context(), *req.Enabled))
}

type volumeRequest struct {
	Level   *int     `json:"level"`
	Percent *float64 `json:"percent"`
	Step    string   `json:"step"`
}

func (m *Module) handleVolume(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	var req volumeRequest
	if !decode(w, r, &req) {
		return
	}

	switch {
	case req.Level != nil:
		m.respond(w, r, c, c.SetVolume(r.Context(), *req.Level))
	case req.Percent != nil:
		if *req.Percent < 0 || *req.Percent > 100 {
			server.BadRequest(w, "percent must be between 0 and 100", r.URL.Path)
			return
		}
		m.respond(w, r, c, c.SetVolumePercent(r.Context(), *req.Percent))
	case req.Step == "up" || req.Step == "down":
		m.respond(w, r, c, c.VolumeStep(r.Context(), req.Step == "up"))
	default:
		server.BadRequest(w, `one of "level", "percent", or "step" ("up"|"down") is required`, r.URL.Path)
	}
}

func (m *Module) handleMute(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	m.respond(w, r, c, c.ToggleMute(r.Context()))
}

type appRequest struct {
	Target string `json:"target"`
}

func (m *Module) handleApp(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	var req appRequest
	if !decode(w, r, &req) {
		return
	}
	target := c.Apps().Resolve(req.Target)
	if !devicelink.ValidTarget(target) {
		server.BadRequest(w, fmt.Sprintf("invalid app target %q", req.Target), r.URL.Path)
		return
	}
	m.respond(w, r, c, c.StartApp(r.Context(), target))
}

type appsResponse struct {
	Sources   []string `json:"sources"`
	Installed []string `json:"installed"`
}

func (m *Module) handleApps(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	installed := c.Snapshot().InstalledApps
	if installed == nil {
		installed = []string{}
	}
	server.WriteJSON(w, http.StatusOK, appsResponse{Sources: c.Apps().Names(), Installed: installed})
}

func (m *Module) handleAppsRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	m.respond(w, r, c, c.RefreshApps(r.Context()))
}

type keyRequest struct {
	Keycode *int   `json:"keycode"`
	Key     string `json:"key"`
}

func (m *Module) handleKey(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !decode(w, r, &req) {
		return
	}

	var code int
	switch {
	case req.Keycode != nil:
		code = *req.Keycode
	case req.Key != "":
		var known bool
		if code, known = m.catalog.KeyCode(req.Key); !known {
			server.BadRequest(w, fmt.Sprintf("unknown key %q (known: %s)", req.Key,
				strings.Join(m.catalog.KeyNames(), ", ")), r.URL.Path)
			return
		}
	default:
		server.BadRequest(w, `one of "keycode" or "key" is required`, r.URL.Path)
		return
	}
	if code < 0 {
		server.BadRequest(w, "keycode must not be negative", r.URL.Path)
		return
	}
	m.respond(w, r, c, c.SendKey(r.Context(), code))
}

func (m *Module) handleRestartApp(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	m.respond(w, r, c, c.RestartApp(r.Context()))
}

func (m *Module) handleReboot(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	if !c.Reboot(r.Context()) {
		m.respond(w, r, c, false)
		return
	}
	server.WriteJSON(w, http.StatusAccepted, c.Snapshot())
}

func (m *Module) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	path, err := c.TakeScreenshot(r.Context())
	switch {
	case errors.Is(err, coordinator.ErrNoScreenshotStore):
		server.Conflict(w, "screenshots are not configured", r.URL.Path)
		return
	case err != nil:
		m.respond(w, r, c, false)
		return
	}
	m.servePNG(w, r, path)
}

func (m *Module) handleLatestScreenshot(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	if m.shots == nil {
		server.Conflict(w, "screenshots are not configured", r.URL.Path)
		return
	}
	path, err := m.shots.Latest(c.ID())
	if err != nil {
		server.InternalError(w, err.Error(), r.URL.Path)
		return
	}
	if path == "" {
		server.NotFound(w, "no screenshot captured yet", r.URL.Path)
		return
	}
	m.servePNG(w, r, path)
}

func (m *Module) servePNG(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		server.InternalError(w, "open screenshot", r.URL.Path)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		server.InternalError(w, "stat screenshot", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

func (m *Module) handleDebugList(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.lookup(w, r); !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, m.catalog.DebugNames())
}

type debugResponse struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

func (m *Module) handleDebug(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if _, known := m.catalog.Debug(name); !known {
		server.NotFound(w, fmt.Sprintf("unknown debug command %q", name), r.URL.Path)
		return
	}
	out, err := c.RunDebug(r.Context(), name)
	if err != nil {
		m.logger.Warn("debug command failed", zap.String("device", c.ID()), zap.String("command", name), zap.Error(err))
		if errors.Is(err, devicelink.ErrNotConnected) {
			server.Unavailable(w, err.Error(), r.URL.Path)
			return
		}
		server.CommandFailed(w, err.Error(), r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, debugResponse{Command: name, Output: out})
}
