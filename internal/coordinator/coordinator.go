// Package coordinator keeps a periodically refreshed snapshot of one TV box
// and runs control commands against it. A Coordinator owns the connection
// health state machine (healthy, degraded, reconnecting, disconnected),
// serializes its device operations, and coalesces overlapping refreshes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/metrics"
	"github.com/HerbHall/tvbridge/internal/screenshot"
	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// ErrUpdateFailed is returned by Tick when the device could not be reached.
var ErrUpdateFailed = errors.New("coordinator: update failed")

const (
	DefaultScanInterval       = 60 * time.Second
	DefaultInfoInterval       = 15 * time.Minute
	DefaultAppsInterval       = time.Hour
	DefaultReconnectThreshold = 3
)

// DeviceLink is the subset of *devicelink.Link a Coordinator drives.
type DeviceLink interface {
	Connect(ctx context.Context) bool
	Disconnect(ctx context.Context)
	IsConnected() bool
	CheckConnection(ctx context.Context) bool
	LastConnectError() error

	PowerState(ctx context.Context) devicelink.Reading[devicelink.Power]
	WifiState(ctx context.Context) devicelink.Reading[devicelink.Wifi]
	VolumeState(ctx context.Context) devicelink.Reading[devicelink.Volume]
	CurrentApp(ctx context.Context) devicelink.Reading[string]
	PlaybackState(ctx context.Context) devicelink.Reading[string]
	DeviceInfo(ctx context.Context) devicelink.Reading[models.DeviceInfo]
	InstalledApps(ctx context.Context) devicelink.Reading[[]string]

	SetPowerState(ctx context.Context, on bool) bool
	SendPowerCommand(ctx context.Context, on bool) bool
	SetWifiState(ctx context.Context, enabled bool) bool
	SetVolume(ctx context.Context, level int) bool
	VolumeStep(ctx context.Context, up bool) bool
	ToggleMute(ctx context.Context) bool
	SendKey(ctx context.Context, keycode int) bool
	StartApp(ctx context.Context, target string) bool
	RestartISG(ctx context.Context) bool
	Reboot(ctx context.Context) bool
	TakeScreenshot(ctx context.Context) (string, bool)
	RemoveRemote(ctx context.Context, remote string) bool
	PullFile(ctx context.Context, remote, local string) bool
	RunDebug(ctx context.Context, name string) (string, error)
}

var _ DeviceLink = (*devicelink.Link)(nil)

// Settle holds the delays between a write and the re-read that confirms it.
type Settle struct {
	Power      time.Duration `mapstructure:"power"`
	Wifi       time.Duration `mapstructure:"wifi"`
	Volume     time.Duration `mapstructure:"volume"`
	App        time.Duration `mapstructure:"app"`
	Restart    time.Duration `mapstructure:"restart"`
	QuickPoll  time.Duration `mapstructure:"quick_poll"`
	QuickPolls int           `mapstructure:"quick_polls"`
}

// DefaultSettle returns the standard write-path delays.
func DefaultSettle() Settle {
	return Settle{
		Power:      500 * time.Millisecond,
		Wifi:       time.Second,
		Volume:     300 * time.Millisecond,
		App:        time.Second,
		Restart:    3 * time.Second,
		QuickPoll:  400 * time.Millisecond,
		QuickPolls: 4,
	}
}

// Options configures a Coordinator.
type Options struct {
	DeviceID string
	Name     string
	Host     string
	Port     int

	Link        DeviceLink
	Logger      *zap.Logger
	Bus         plugin.EventBus
	Metrics     *metrics.Recorder
	Screenshots *screenshot.Store
	Apps        map[string]string
	Now         func() time.Time

	ScanInterval       time.Duration
	InfoInterval       time.Duration
	AppsInterval       time.Duration
	ReconnectThreshold int

	// Settle supplies write-path delays. Nil selects DefaultSettle.
	Settle *Settle
}

// Coordinator refreshes and controls one device.
type Coordinator struct {
	id, name  string
	host      string
	port      int
	link      DeviceLink
	logger    *zap.Logger
	bus       plugin.EventBus
	metrics   *metrics.Recorder
	shots     *screenshot.Store
	apps      *AppMap
	now       func() time.Time
	scan      time.Duration
	infoEvery time.Duration
	appsEvery time.Duration
	threshold int
	settle    Settle

	mu   sync.RWMutex
	snap models.Snapshot

	// opMu serializes cycles and write paths; the fields below it are
	// only touched while it is held.
	opMu     sync.Mutex
	failures int
	lastInfo time.Time
	lastApps time.Time

	updating atomic.Bool
	refresh  chan struct{}
}

// New returns a Coordinator for opts.Link.
func New(opts Options) *Coordinator {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.InfoInterval <= 0 {
		opts.InfoInterval = DefaultInfoInterval
	}
	if opts.AppsInterval <= 0 {
		opts.AppsInterval = DefaultAppsInterval
	}
	if opts.ReconnectThreshold <= 0 {
		opts.ReconnectThreshold = DefaultReconnectThreshold
	}
	if opts.Apps == nil {
		opts.Apps = DefaultApps()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	settle := DefaultSettle()
	if opts.Settle != nil {
		settle = *opts.Settle
	}
	if opts.Name == "" {
		opts.Name = opts.DeviceID
	}

	return &Coordinator{
		id:        opts.DeviceID,
		name:      opts.Name,
		host:      opts.Host,
		port:      opts.Port,
		link:      opts.Link,
		logger:    opts.Logger.With(zap.String("device", opts.DeviceID)),
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		shots:     opts.Screenshots,
		apps:      NewAppMap(opts.Apps),
		now:       opts.Now,
		scan:      opts.ScanInterval,
		infoEvery: opts.InfoInterval,
		appsEvery: opts.AppsInterval,
		threshold: opts.ReconnectThreshold,
		settle:    settle,
		snap:      models.NewSnapshot(opts.DeviceID),
		refresh:   make(chan struct{}, 1),
	}
}

// ID returns the device identifier.
func (c *Coordinator) ID() string { return c.id }

// Apps returns the friendly source names this device knows.
func (c *Coordinator) Apps() *AppMap { return c.apps }

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Device describes the configured box with the identity it reported.
func (c *Coordinator) Device() models.Device {
	s := c.Snapshot()
	return models.Device{
		ID:             c.id,
		Name:           c.name,
		Host:           c.host,
		Port:           c.port,
		Manufacturer:   s.Info.Brand,
		Model:          s.Info.Model,
		AndroidVersion: s.Info.AndroidVersion,
	}
}

// Setup makes the first connection attempt and reads device identity. A
// device that is offline at startup is not an error; Run keeps retrying.
func (c *Coordinator) Setup(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.connectLocked(ctx) {
		c.logger.Warn("device unavailable at startup; will retry",
			zap.Error(c.link.LastConnectError()))
		return
	}
	c.refreshInfoLocked(ctx, c.now())
}

// Run refreshes on every scan interval and whenever ForceRefresh is called,
// until ctx ends.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.scan)
	defer ticker.Stop()

	c.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refresh:
		}
		c.runTick(ctx)
	}
}

func (c *Coordinator) runTick(ctx context.Context) {
	if _, err := c.Tick(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("update failed", zap.Error(err))
	}
}

// ForceRefresh asks Run for an immediate cycle. Requests made while one is
// already pending collapse into it.
func (c *Coordinator) ForceRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Tick runs one update cycle and returns the resulting snapshot. A Tick
// that arrives while another is running returns the current snapshot
// without touching the device.
func (c *Coordinator) Tick(ctx context.Context) (models.Snapshot, error) {
	if !c.updating.CompareAndSwap(false, true) {
		c.logger.Debug("update already in progress")
		return c.Snapshot(), nil
	}
	defer c.updating.Store(false)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	start := time.Now()
	err := c.cycleLocked(ctx)
	c.metrics.ObserveCycle(c.id, err == nil, time.Since(start))

	snap := c.Snapshot()
	c.metrics.SetState(c.id, snap.IsConnected, snap.ScreenOn, snap.VolumePercentage)
	c.publish(ctx, TopicSnapshotUpdated, SnapshotEvent{DeviceID: c.id, Snapshot: snap})
	return snap, err
}

func (c *Coordinator) cycleLocked(ctx context.Context) error {
	if !c.link.IsConnected() && !c.connectLocked(ctx) {
		return c.unreachable()
	}

	if !c.link.CheckConnection(ctx) {
		c.failures++
		c.recordFailure(ctx, models.ConnDegraded,
			fmt.Sprintf("connection check failed (%d/%d)", c.failures, c.threshold))
		if c.failures < c.threshold {
			c.logger.Warn("connection check failed", zap.Int("failures", c.failures))
			return nil
		}

		c.logger.Warn("reconnecting after repeated check failures", zap.Int("failures", c.failures))
		c.failures = 0
		c.metrics.Reconnect(c.id)
		c.update(ctx, func(s *models.Snapshot) { s.ConnectionState = models.ConnReconnecting })
		c.link.Disconnect(ctx)
		if !c.connectLocked(ctx) {
			return c.unreachable()
		}
	}

	c.markConnected(ctx)
	c.probeLocked(ctx)
	return nil
}

func (c *Coordinator) unreachable() error {
	err := c.link.LastConnectError()
	if err == nil {
		err = errors.New("connect failed")
	}
	return fmt.Errorf("%w: %s: %w", ErrUpdateFailed, c.id, err)
}

func (c *Coordinator) connectLocked(ctx context.Context) bool {
	if c.link.Connect(ctx) {
		c.markConnected(ctx)
		return true
	}
	msg := "connect failed"
	if err := c.link.LastConnectError(); err != nil {
		msg = err.Error()
	}
	c.recordFailure(ctx, models.ConnDisconnected, msg)
	return false
}

func (c *Coordinator) markConnected(ctx context.Context) {
	c.failures = 0
	now := c.now()
	c.update(ctx, func(s *models.Snapshot) {
		s.IsConnected = true
		s.ConnectionState = models.ConnHealthy
		s.LastSeen = now
		s.ErrorCount = 0
		s.LastError = ""
	})
}

func (c *Coordinator) recordFailure(ctx context.Context, state models.ConnectionState, msg string) {
	c.update(ctx, func(s *models.Snapshot) {
		s.IsConnected = false
		s.ConnectionState = state
		s.ErrorCount++
		s.LastError = msg
	})
}

// probeLocked reads every field. A failed probe leaves its field stale.
func (c *Coordinator) probeLocked(ctx context.Context) {
	now := c.now()

	power := c.link.PowerState(ctx)
	wifi := c.link.WifiState(ctx)
	volume := c.link.VolumeState(ctx)
	app := c.link.CurrentApp(ctx)
	playback := c.link.PlaybackState(ctx)

	for probe, err := range map[string]error{
		"power": power.Err(), "wifi": wifi.Err(), "volume": volume.Err(),
		"current_app": app.Err(), "playback": playback.Err(),
	} {
		if err != nil {
			c.metrics.ProbeFailed(c.id, probe)
			c.logger.Debug("probe failed", zap.String("probe", probe), zap.Error(err))
		}
	}

	c.update(ctx, func(s *models.Snapshot) {
		if p, ok := power.Get(); ok {
			s.PowerState, s.ScreenOn = p.State, p.ScreenOn
		}
		if w, ok := wifi.Get(); ok {
			s.WifiEnabled, s.WifiConnected = w.Enabled, w.Connected
			s.WifiSSID, s.IPAddress = w.SSID, w.IPAddress
		}
		if v, ok := volume.Get(); ok {
			s.SetVolume(v.Level, v.Max, v.Muted)
		}
		if pkg, ok := app.Get(); ok {
			s.CurrentApp = pkg
			s.CurrentSource = c.apps.NameFor(pkg)
		}
		if st, ok := playback.Get(); ok {
			s.PlaybackState = st
		}
		s.LastSeen = now
		s.LastUpdated = now
	})

	if c.lastInfo.IsZero() || now.Sub(c.lastInfo) >= c.infoEvery {
		c.refreshInfoLocked(ctx, now)
	}
	if c.lastApps.IsZero() || now.Sub(c.lastApps) >= c.appsEvery {
		c.refreshAppsLocked(ctx, now)
	}
}

// refreshInfoLocked records the attempt time whether or not it succeeds, so
// identity is read at most once per interval.
func (c *Coordinator) refreshInfoLocked(ctx context.Context, now time.Time) {
	c.lastInfo = now
	info, ok := c.link.DeviceInfo(ctx).Get()
	if !ok {
		c.metrics.ProbeFailed(c.id, "device_info")
		return
	}
	c.update(ctx, func(s *models.Snapshot) { s.Info = info })
}

func (c *Coordinator) refreshAppsLocked(ctx context.Context, now time.Time) bool {
	c.lastApps = now
	apps, ok := c.link.InstalledApps(ctx).Get()
	if !ok {
		c.metrics.ProbeFailed(c.id, "installed_apps")
		return false
	}
	c.update(ctx, func(s *models.Snapshot) { s.InstalledApps = apps })
	return true
}

// update mutates the snapshot under its lock and announces connection and
// power transitions afterwards.
func (c *Coordinator) update(ctx context.Context, fn func(s *models.Snapshot)) {
	c.mu.Lock()
	before := c.snap
	fn(&c.snap)
	after := c.snap
	c.mu.Unlock()

	if before.ConnectionState != after.ConnectionState {
		c.logger.Info("connection state changed",
			zap.String("from", string(before.ConnectionState)),
			zap.String("to", string(after.ConnectionState)),
		)
		c.publish(ctx, TopicConnectionChanged, ConnectionEvent{
			DeviceID: c.id,
			From:     before.ConnectionState,
			To:       after.ConnectionState,
			Error:    after.LastError,
		})
	}
	if before.PowerState != after.PowerState {
		c.publish(ctx, TopicPowerChanged, PowerEvent{DeviceID: c.id, From: before.PowerState, To: after.PowerState})
	}
}

func (c *Coordinator) publish(ctx context.Context, topic string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.PublishAsync(context.WithoutCancel(ctx), plugin.Event{
		Topic:     topic,
		Source:    EventSource,
		Timestamp: c.now(),
		Payload:   payload,
	})
}
