// Package devicelink owns the ADB session to one Android TV box: it connects
// and verifies the session, serializes every shell command, reads device
// state through typed probes, and runs multi-step control sequences.
package devicelink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/catalog"
)

const (
	DefaultPort       = 5555
	DefaultTimeout    = 15 * time.Second
	DefaultISGPackage = "com.linknlink.app.device.isg"
)

// Options configures a Link.
type Options struct {
	Host    string
	Port    int
	Timeout time.Duration

	// Catalog supplies the shell commands. Nil selects the embedded default.
	Catalog *catalog.Catalog

	// Timing supplies settle delays. Nil selects DefaultTiming.
	Timing *Timing

	// ISGPackage is the companion app restarted by RestartISG.
	ISGPackage string

	Logger *zap.Logger
}

// Link is the ADB session to one device. At most one command is in flight
// per Link; callers may share it across goroutines.
type Link struct {
	transport  adb.Transport
	serial     string
	timeout    time.Duration
	catalog    *catalog.Catalog
	timing     Timing
	isgPackage string
	logger     *zap.Logger

	mu        sync.Mutex // serializes transport calls
	connected atomic.Bool

	errMu   sync.Mutex
	lastErr error
}

// New creates a disconnected Link to opts.Host over transport.
func New(transport adb.Transport, opts Options) (*Link, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return nil, fmt.Errorf("devicelink: host is required")
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Catalog == nil {
		c, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}
	timing := DefaultTiming()
	if opts.Timing != nil {
		timing = *opts.Timing
	}
	if opts.ISGPackage == "" {
		opts.ISGPackage = DefaultISGPackage
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	serial := adb.Serial(opts.Host, opts.Port)
	return &Link{
		transport:  transport,
		serial:     serial,
		timeout:    opts.Timeout,
		catalog:    opts.Catalog,
		timing:     timing,
		isgPackage: opts.ISGPackage,
		logger:     logger.With(zap.String("serial", serial)),
	}, nil
}

// Serial returns the host:port the link targets.
func (l *Link) Serial() string { return l.serial }

// Catalog returns the command catalog in use.
func (l *Link) Catalog() *catalog.Catalog { return l.catalog }

// IsConnected reports whether the last Connect was verified and no
// Disconnect has happened since.
func (l *Link) IsConnected() bool { return l.connected.Load() }

// LastConnectError returns the classified reason the most recent Connect
// failed, or nil after a success.
func (l *Link) LastConnectError() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.lastErr
}

// Connect tears down any previous session, opens a new one, and verifies it
// with an echo of a fresh token. It returns true only if the token came back
// intact. Failures never panic or return errors; see LastConnectError.
func (l *Link) Connect(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected.Load() {
		l.teardownLocked(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	if err := l.transport.Connect(ctx, l.serial); err != nil {
		l.connectFailed(classify(err))
		return false
	}

	token := "tvbridge-" + uuid.NewString()
	out, err := l.transport.Shell(ctx, l.serial, l.catalog.Probe(catalog.ProbeSentinel, token))
	if err == nil && strings.TrimSpace(out) != token {
		err = fmt.Errorf("%w: got %q", ErrSentinelMismatch, strings.TrimSpace(out))
	}
	if err != nil {
		l.connectFailed(classify(err))
		l.closeTransport(ctx)
		return false
	}

	l.connected.Store(true)
	l.setLastErr(nil)
	l.logger.Info("connected", zap.Duration("elapsed", time.Since(start)))
	return true
}

// Disconnect closes the session if one is open. It is idempotent.
func (l *Link) Disconnect(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected.Load() {
		l.teardownLocked(ctx)
		l.logger.Info("disconnected")
	}
}

// CheckConnection runs a fresh echo round-trip over the open session. It
// does not change the connected flag; callers decide when to reconnect.
func (l *Link) CheckConnection(ctx context.Context) bool {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeCheckConnection))
	if err != nil {
		l.logger.Debug("connection check failed", zap.Error(err))
		return false
	}
	return strings.Contains(out, "connected")
}

// Execute runs command on the device and returns its trimmed output. It
// fails with ErrNotConnected when no verified session exists and ErrTimeout
// when the link timeout elapses.
func (l *Link) Execute(ctx context.Context, command string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executeLocked(ctx, command)
}

func (l *Link) executeLocked(ctx context.Context, command string) (string, error) {
	if !l.connected.Load() {
		return "", ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.transport.Shell(ctx, l.serial, command)
	if err != nil {
		return "", fmt.Errorf("execute %q: %w", command, classify(err))
	}
	return strings.TrimSpace(out), nil
}

func (l *Link) teardownLocked(ctx context.Context) {
	l.connected.Store(false)
	l.closeTransport(ctx)
}

func (l *Link) closeTransport(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.transport.Disconnect(ctx, l.serial); err != nil {
		l.logger.Debug("transport disconnect failed", zap.Error(err))
	}
}

func (l *Link) connectFailed(err error) {
	l.setLastErr(err)
	l.logger.Warn("connect failed",
		zap.String("reason", string(ReasonFor(err))),
		zap.Error(err),
	)
}

func (l *Link) setLastErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.lastErr = err
}
