// Package devices is the module that owns the configured TV boxes. It builds
// one devicelink.Link and coordinator.Coordinator per box, runs their polling
// loops, and exposes their state and controls over HTTP and WebSocket.
package devices

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/metrics"
	"github.com/HerbHall/tvbridge/internal/screenshot"
	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// Name is the module name and its API mount point.
const Name = "devices"

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the devices module.
type Module struct {
	transport adb.Transport
	metrics   *metrics.Recorder

	logger  *zap.Logger
	bus     plugin.EventBus
	cfg     Config
	catalog *catalog.Catalog
	shots   *screenshot.Store
	limiter *rate.Limiter

	coords map[string]*coordinator.Coordinator
	order  []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the module. transport carries every box's ADB traffic; rec
// may be nil.
func New(transport adb.Transport, rec *metrics.Recorder) *Module {
	return &Module{
		transport: transport,
		metrics:   rec,
		coords:    make(map[string]*coordinator.Coordinator),
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        Name,
		Version:     "0.1.0",
		Description: "Android TV box polling and control over ADB",
		Required:    true,
	}
}

// Init decodes the module config and builds a coordinator per box. Nothing
// touches the network until Start.
func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.bus = deps.Bus

	// Tuned delays decode on top of the defaults, so setting one key keeps
	// the others.
	timing, settle := devicelink.DefaultTiming(), coordinator.DefaultSettle()
	m.cfg.Timing, m.cfg.Settle = &timing, &settle
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("devices config: %w", err)
		}
	}
	if err := m.cfg.normalize(); err != nil {
		return fmt.Errorf("devices config: %w", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	if !m.cfg.Commands.Empty() {
		if cat, err = cat.WithOverrides(m.cfg.Commands); err != nil {
			return fmt.Errorf("command overrides: %w", err)
		}
	}
	m.catalog = cat

	if m.cfg.Screenshots.Dir != "" {
		m.shots = screenshot.New(m.cfg.Screenshots.Dir, m.cfg.Screenshots.Retain)
	}

	limit := rate.Limit(m.cfg.RateLimit.RPS)
	if m.cfg.RateLimit.RPS <= 0 {
		limit = rate.Inf
	}
	m.limiter = rate.NewLimiter(limit, max(m.cfg.RateLimit.Burst, 1))

	apps := m.cfg.appMap()
	for _, box := range m.cfg.Boxes {
		if err := m.addBox(box, apps); err != nil {
			return err
		}
	}
	if len(m.order) == 0 {
		m.logger.Warn("no boxes configured")
	}
	m.logger.Info("devices module initialized", zap.Int("boxes", len(m.order)))
	return nil
}

func (m *Module) addBox(box BoxConfig, apps map[string]string) error {
	logger := m.logger.With(zap.String("device", box.ID))
	link, err := devicelink.New(m.transport, devicelink.Options{
		Host:       box.Host,
		Port:       box.Port,
		Timeout:    box.Timeout,
		Catalog:    m.catalog,
		Timing:     m.cfg.Timing,
		ISGPackage: m.cfg.Defaults.ISGPackage,
		Logger:     logger.Named("link"),
	})
	if err != nil {
		return fmt.Errorf("box %q: %w", box.ID, err)
	}

	m.coords[box.ID] = coordinator.New(coordinator.Options{
		DeviceID:           box.ID,
		Name:               box.Name,
		Host:               box.Host,
		Port:               box.Port,
		Link:               link,
		Logger:             m.logger.Named("coordinator"),
		Bus:                m.bus,
		Metrics:            m.metrics,
		Screenshots:        m.shots,
		Apps:               apps,
		ScanInterval:       box.ScanInterval,
		InfoInterval:       m.cfg.Defaults.InfoInterval,
		AppsInterval:       m.cfg.Defaults.AppsInterval,
		ReconnectThreshold: m.cfg.Defaults.ReconnectThreshold,
		Settle:             m.cfg.Settle,
	})
	m.order = append(m.order, box.ID)
	return nil
}

// Start launches one polling loop per box. Each loop makes its first
// connection attempt in the background so an offline box never delays
// startup.
func (m *Module) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	for _, id := range m.order {
		c := m.coords[id]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			c.Setup(runCtx)
			c.Run(runCtx)
		}()
	}
	m.logger.Info("devices module started")
	return nil
}

// Stop cancels the polling loops, waits for them, and closes every session.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("devices stop: %w", ctx.Err())
	}

	for _, id := range m.order {
		m.coords[id].Shutdown(ctx)
	}
	m.logger.Info("devices module stopped")
	return nil
}

// Coordinator returns the coordinator for a box.
func (m *Module) Coordinator(id string) (*coordinator.Coordinator, bool) {
	c, ok := m.coords[id]
	return c, ok
}

// KeyCode resolves a named key such as "HOME" through the command catalog.
func (m *Module) KeyCode(name string) (int, bool) {
	return m.catalog.KeyCode(name)
}

// IDs returns the configured box IDs in config order.
func (m *Module) IDs() []string {
	return slices.Clone(m.order)
}

// Health is healthy when every box is connected, degraded when some are,
// and unhealthy when none are.
func (m *Module) Health(context.Context) plugin.HealthStatus {
	details := make(map[string]string, len(m.order))
	connected := 0
	for _, id := range m.order {
		s := m.coords[id].Snapshot()
		details[id] = string(s.ConnectionState)
		if s.ConnectionState == models.ConnHealthy {
			connected++
		}
	}

	switch {
	case len(m.order) == 0:
		return plugin.HealthStatus{Status: "degraded", Message: "no boxes configured"}
	case connected == len(m.order):
		return plugin.HealthStatus{Status: "healthy", Details: details}
	case connected > 0:
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: fmt.Sprintf("%d of %d boxes connected", connected, len(m.order)),
			Details: details,
		}
	default:
		return plugin.HealthStatus{Status: "unhealthy", Message: "no boxes connected", Details: details}
	}
}
