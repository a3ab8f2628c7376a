// Package mqttbridge mirrors every box onto an MQTT broker: retained state
// and availability topics per device, and command topics that drive the
// device's coordinator.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/devices"
	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// Name is the module name.
const Name = "mqtt"

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	defaultPrefix   = "tvbridge"
	defaultClientID = "tvbridge"
	defaultTimeout  = 5 * time.Second
	commandTimeout  = 2 * time.Minute
)

var (
	ErrUnknownDevice  = errors.New("unknown device")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrCommandFailed  = errors.New("device did not confirm the command")
)

var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// Controller is the per-device surface the bridge drives.
type Controller interface {
	Snapshot() models.Snapshot
	SetPower(ctx context.Context, on bool) bool
	QuickSetPower(ctx context.Context, on bool) bool
	SetWifi(ctx context.Context, enabled bool) bool
	SetVolume(ctx context.Context, level int) bool
	SetVolumePercent(ctx context.Context, pct float64) bool
	VolumeStep(ctx context.Context, up bool) bool
	ToggleMute(ctx context.Context) bool
	StartApp(ctx context.Context, target string) bool
	SendKey(ctx context.Context, keycode int) bool
	ForceRefresh()
}

// Devices resolves device IDs and key names.
type Devices interface {
	IDs() []string
	Controller(id string) (Controller, bool)
	KeyCode(name string) (int, bool)
}

// FromModule exposes the devices module's coordinators as Devices.
func FromModule(m *devices.Module) Devices {
	return moduleDevices{m: m}
}

type moduleDevices struct {
	m *devices.Module
}

func (d moduleDevices) IDs() []string                   { return d.m.IDs() }
func (d moduleDevices) KeyCode(name string) (int, bool) { return d.m.KeyCode(name) }

func (d moduleDevices) Controller(id string) (Controller, bool) {
	c, ok := d.m.Coordinator(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// Config is the mqtt module section.
type Config struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         int           `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Module implements the mqtt module.
type Module struct {
	devices Devices
	dial    Dialer

	logger *zap.Logger
	cfg    Config
	client Client

	mu      sync.Mutex
	avail   map[string]string
	stopped bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the bridge. A nil dial uses NewPahoClient.
func New(devs Devices, dial Dialer) *Module {
	if dial == nil {
		dial = NewPahoClient
	}
	return &Module{
		devices: devs,
		dial:    dial,
		avail:   make(map[string]string),
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         Name,
		Version:      "0.1.0",
		Description:  "MQTT state publishing and command topics",
		Dependencies: []string{devices.Name},
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("mqtt config: %w", err)
		}
	}
	if m.cfg.TopicPrefix == "" {
		m.cfg.TopicPrefix = defaultPrefix
	}
	m.cfg.TopicPrefix = strings.TrimSuffix(m.cfg.TopicPrefix, "/")
	if m.cfg.ClientID == "" {
		m.cfg.ClientID = defaultClientID
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = defaultTimeout
	}

	m.client = m.dial(ClientOptions{
		Broker:      m.cfg.Broker,
		ClientID:    m.cfg.ClientID,
		Username:    m.cfg.Username,
		Password:    m.cfg.Password,
		WillTopic:   m.bridgeTopic(),
		WillPayload: payloadOffline,
		Timeout:     m.cfg.Timeout,
		OnConnect:   m.handleConnect,
		Logger:      m.logger.Named("client"),
	})
	m.logger.Info("mqtt module initialized",
		zap.String("broker", m.cfg.Broker),
		zap.String("prefix", m.cfg.TopicPrefix),
	)
	return nil
}

// ValidateConfig requires a broker URL, a wildcard-free prefix, and a valid QoS.
func (m *Module) ValidateConfig() error {
	if m.cfg.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	u, err := url.Parse(m.cfg.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt: invalid broker %q", m.cfg.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("mqtt: unsupported broker scheme %q", u.Scheme)
	}
	if strings.ContainsAny(m.cfg.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt: topic prefix %q must not contain wildcards", m.cfg.TopicPrefix)
	}
	if m.cfg.QoS < 0 || m.cfg.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1, or 2")
	}
	return nil
}

// Start subscribes to the command topics and connects. An unreachable
// broker is retried in the background.
func (m *Module) Start(ctx context.Context) error {
	m.runCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := m.client.Subscribe(m.commandFilter(), m.qos(), m.handleMessage); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := m.client.Connect(connectCtx); err != nil {
		m.logger.Warn("mqtt broker not reachable yet, retrying in background", zap.Error(err))
	}
	return nil
}

// Stop marks the bridge offline, disconnects, and waits for in-flight commands.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if m.client != nil {
		if m.client.IsConnected() {
			m.publish(m.bridgeTopic(), true, []byte(payloadOffline))
		}
		m.client.Disconnect(250 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt stop: %w", ctx.Err())
	}
}

func (m *Module) Health(context.Context) plugin.HealthStatus {
	if m.client != nil && m.client.IsConnected() {
		return plugin.HealthStatus{Status: "healthy"}
	}
	return plugin.HealthStatus{Status: "degraded", Message: "broker disconnected"}
}

// Subscriptions mirrors every snapshot update onto the broker.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: coordinator.TopicSnapshotUpdated, Handler: m.handleSnapshot},
	}
}

func (m *Module) handleSnapshot(_ context.Context, e plugin.Event) {
	ev, ok := e.Payload.(coordinator.SnapshotEvent)
	if !ok {
		m.logger.Warn("unexpected payload type for snapshot event")
		return
	}
	m.publishState(ev.DeviceID, ev.Snapshot)
}

// handleConnect announces the bridge and republishes every device, since
// availability may have changed while the broker was away.
func (m *Module) handleConnect() {
	m.mu.Lock()
	clear(m.avail)
	m.mu.Unlock()

	m.publish(m.bridgeTopic(), true, []byte(payloadOnline))
	for _, id := range m.devices.IDs() {
		if c, ok := m.devices.Controller(id); ok {
			m.publishState(id, c.Snapshot())
		}
	}
}

func (m *Module) publishState(id string, s models.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		m.logger.Warn("encode snapshot failed", zap.String("device", id), zap.Error(err))
		return
	}
	m.publish(m.deviceTopic(id, "state"), true, payload)

	avail := payloadOffline
	if s.IsConnected {
		avail = payloadOnline
	}
	m.mu.Lock()
	changed := m.avail[id] != avail
	m.avail[id] = avail
	m.mu.Unlock()
	if changed {
		m.publish(m.deviceTopic(id, "availability"), true, []byte(avail))
	}
}

func (m *Module) publish(topic string, retained bool, payload []byte) {
	if err := m.client.Publish(topic, m.qos(), retained, payload); err != nil {
		m.logger.Debug("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// handleMessage runs a command off the client's delivery goroutine; control
// sequences can take tens of seconds.
func (m *Module) handleMessage(topic string, payload []byte) {
	id, command, ok := m.parseCommandTopic(topic)
	if !ok {
		m.logger.Debug("ignoring message", zap.String("topic", topic))
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.runCtx, commandTimeout)
		defer cancel()

		log := m.logger.With(zap.String("device", id), zap.String("command", command))
		if err := m.dispatch(ctx, id, command, payload); err != nil {
			log.Warn("mqtt command failed", zap.Error(err))
			return
		}
		log.Debug("mqtt command executed")
	}()
}

// dispatch runs one command against a device. Payloads are plain text:
// ON/OFF for switches, a level, "up", "down", or "NN%" for volume, an app
// name or package for app, and a keycode or key name for key.
func (m *Module) dispatch(ctx context.Context, id, command string, payload []byte) error {
	c, ok := m.devices.Controller(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	arg := strings.TrimSpace(string(payload))

	var done bool
	switch command {
	case "power", "power_quick":
		on, err := parseSwitch(arg)
		if err != nil {
			return err
		}
		if command == "power_quick" {
			done = c.QuickSetPower(ctx, on)
		} else {
			done = c.SetPower(ctx, on)
		}
	case "wifi":
		on, err := parseSwitch(arg)
		if err != nil {
			return err
		}
		done = c.SetWifi(ctx, on)
	case "volume":
		var err error
		if done, err = volume(ctx, c, arg); err != nil {
			return err
		}
	case "mute":
		done = c.ToggleMute(ctx)
	case "app":
		if arg == "" {
			return fmt.Errorf("%w: app target is empty", ErrInvalidPayload)
		}
		done = c.StartApp(ctx, arg)
	case "key":
		code, err := m.keyCode(arg)
		if err != nil {
			return err
		}
		done = c.SendKey(ctx, code)
	case "refresh":
		c.ForceRefresh()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	if !done {
		return fmt.Errorf("%w: %s", ErrCommandFailed, command)
	}
	return nil
}

func volume(ctx context.Context, c Controller, arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "up":
		return c.VolumeStep(ctx, true), nil
	case "down":
		return c.VolumeStep(ctx, false), nil
	}
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || p < 0 || p > 100 {
			return false, fmt.Errorf("%w: volume percentage %q", ErrInvalidPayload, arg)
		}
		return c.SetVolumePercent(ctx, p), nil
	}
	level, err := strconv.Atoi(arg)
	if err != nil || level < 0 {
		return false, fmt.Errorf("%w: volume %q", ErrInvalidPayload, arg)
	}
	return c.SetVolume(ctx, level), nil
}

func (m *Module) keyCode(arg string) (int, error) {
	if code, err := strconv.Atoi(arg); err == nil {
		if code < 0 {
			return 0, fmt.Errorf("%w: negative keycode", ErrInvalidPayload)
		}
		return code, nil
	}
	code, ok := m.devices.KeyCode(arg)
	if !ok {
		return 0, fmt.Errorf("%w: unknown key %q", ErrInvalidPayload, arg)
	}
	return code, nil
}

func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected ON or OFF, got %q", ErrInvalidPayload, arg)
}

func (m *Module) qos() byte { return byte(m.cfg.QoS) }

func (m *Module) bridgeTopic() string {
	return m.cfg.TopicPrefix + "/bridge/availability"
}

func (m *Module) deviceTopic(id, leaf string) string {
	return m.cfg.TopicPrefix + "/" + id + "/" + leaf
}

func (m *Module) commandFilter() string {
	return m.cfg.TopicPrefix + "/+/set/+"
}

// parseCommandTopic splits "<prefix>/<device>/set/<command>".
func (m *Module) parseCommandTopic(topic string) (id, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, m.cfg.TopicPrefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
