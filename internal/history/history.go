// Package history records device connection and power transitions and
// every control command into SQLite, and serves them per device.
package history

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/server"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// DefaultRetention is how long entries are kept.
const DefaultRetention = 30 * 24 * time.Hour

const pruneInterval = time.Hour

var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module implements the history module.
type Module struct {
	logger    *zap.Logger
	store     *Store
	retention time.Duration
	now       func() time.Time
	newID     func() string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the history module.
func New() *Module {
	return &Module{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "history",
		Version:     "0.1.0",
		Description: "Device state transition and command audit log",
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	m.retention = DefaultRetention
	if deps.Config != nil && deps.Config.IsSet("retention") {
		m.retention = deps.Config.GetDuration("retention")
	}
	if m.retention <= 0 {
		return fmt.Errorf("history retention must be positive")
	}

	s, err := NewStore(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.store = s
	m.logger.Info("history module initialized", zap.Duration("retention", m.retention))
	return nil
}

// Start runs the retention loop: one prune now, then every hour.
func (m *Module) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			m.prune(runCtx)
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Module) prune(ctx context.Context) {
	n, err := m.store.Prune(ctx, m.now().Add(-m.retention))
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("history prune failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		m.logger.Info("pruned history", zap.Int64("removed", n))
	}
}

// Subscriptions records connection, power, and command events.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: coordinator.TopicConnectionChanged, Handler: m.handleConnection},
		{Topic: coordinator.TopicPowerChanged, Handler: m.handlePower},
		{Topic: coordinator.TopicCommandExecuted, Handler: m.handleCommand},
	}
}

func (m *Module) handleConnection(ctx context.Context, e plugin.Event) {
	ev, ok := e.Payload.(coordinator.ConnectionEvent)
	if !ok {
		m.logger.Warn("unexpected payload type for connection event")
		return
	}
	m.record(ctx, e, Entry{
		DeviceID: ev.DeviceID,
		Kind:     KindConnection,
		From:     string(ev.From),
		To:       string(ev.To),
		Detail:   ev.Error,
		OK:       ev.Error == "",
	})
}

func (m *Module) handlePower(ctx context.Context, e plugin.Event) {
	ev, ok := e.Payload.(coordinator.PowerEvent)
	if !ok {
		m.logger.Warn("unexpected payload type for power event")
		return
	}
	m.record(ctx, e, Entry{
		DeviceID: ev.DeviceID,
		Kind:     KindPower,
		From:     string(ev.From),
		To:       string(ev.To),
		OK:       true,
	})
}

func (m *Module) handleCommand(ctx context.Context, e plugin.Event) {
	ev, ok := e.Payload.(coordinator.CommandEvent)
	if !ok {
		m.logger.Warn("unexpected payload type for command event")
		return
	}
	detail := ev.Command
	if ev.Argument != "" {
		detail += " " + ev.Argument
	}
	m.record(ctx, e, Entry{
		DeviceID: ev.DeviceID,
		Kind:     KindCommand,
		Detail:   detail,
		OK:       ev.OK,
	})
}

func (m *Module) record(ctx context.Context, e plugin.Event, entry Entry) {
	entry.ID = m.newID()
	entry.CreatedAt = e.Timestamp
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	if err := m.store.Insert(ctx, entry); err != nil {
		m.logger.Warn("record history failed",
			zap.String("device_id", entry.DeviceID),
			zap.String("kind", entry.Kind),
			zap.Error(err),
		)
	}
}

// Routes mounts under /api/v1/history.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/{device_id}", Handler: m.handleList},
	}
}

// handleList serves ?kind=, ?since= (RFC 3339), and ?limit=.
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := Query{Kind: r.URL.Query().Get("kind")}
	switch q.Kind {
	case "", KindConnection, KindPower, KindCommand:
	default:
		server.BadRequest(w, fmt.Sprintf("unknown kind %q", q.Kind), r.URL.Path)
		return
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			server.BadRequest(w, "since must be RFC 3339", r.URL.Path)
			return
		}
		q.Since = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			server.BadRequest(w, "limit must be a positive integer", r.URL.Path)
			return
		}
		q.Limit = n
	}

	entries, err := m.store.List(r.Context(), r.PathValue("device_id"), q)
	if err != nil {
		m.logger.Error("list history failed", zap.Error(err))
		server.InternalError(w, "failed to list history", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, entries)
}

func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if err := m.store.db.PingContext(ctx); err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{Status: "healthy"}
}
