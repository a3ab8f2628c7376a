package devicelink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/pkg/models"
)

// MatchesTarget reports whether state satisfies a request to turn the
// display on or off. Standby counts as off.
func MatchesTarget(state models.PowerState, on bool) bool {
	if on {
		return state == models.PowerOn
	}
	return state == models.PowerOff || state == models.PowerStandby
}

// SetPowerState drives the display to on or off and verifies the result.
// It returns immediately when the device already reports the target.
// Otherwise it escalates: the dedicated wake or sleep key, then the power
// toggle key, then one more toggle after RetryDelay, re-reading the state
// after each step.
func (l *Link) SetPowerState(ctx context.Context, on bool) bool {
	log := l.logger.With(zap.Bool("on", on))

	if p, ok := l.PowerState(ctx).Get(); ok && MatchesTarget(p.State, on) {
		log.Debug("power already at target", zap.String("state", string(p.State)))
		return true
	}

	primary := catalog.ControlPowerOff
	if on {
		primary = catalog.ControlPowerOn
	}
	if _, err := l.Execute(ctx, l.catalog.Control(primary)); err != nil {
		log.Warn("power command failed", zap.Error(err))
		return false
	}
	if l.settledAt(ctx, l.timing.PowerSettle, on) {
		return true
	}

	log.Info("power key had no effect, trying toggle")
	if !l.toggle(ctx) {
		return false
	}
	if l.settledAt(ctx, l.timing.ToggleSettle, on) {
		return true
	}

	log.Info("retrying power toggle")
	if !Sleep(ctx, l.timing.RetryDelay) || !l.toggle(ctx) {
		return false
	}
	if l.settledAt(ctx, l.timing.ToggleSettle, on) {
		return true
	}

	log.Warn("device did not reach requested power state")
	return false
}

// SendPowerCommand issues the dedicated wake or sleep key without verifying.
func (l *Link) SendPowerCommand(ctx context.Context, on bool) bool {
	name := catalog.ControlPowerOff
	if on {
		name = catalog.ControlPowerOn
	}
	return l.run(ctx, "power", l.catalog.Control(name))
}

func (l *Link) toggle(ctx context.Context) bool {
	return l.run(ctx, "power toggle", l.catalog.Control(catalog.ControlPowerToggle))
}

func (l *Link) settledAt(ctx context.Context, d time.Duration, on bool) bool {
	if !Sleep(ctx, d) {
		return false
	}
	p, ok := l.PowerState(ctx).Get()
	return ok && MatchesTarget(p.State, on)
}

// SetWifiState enables or disables the radio and verifies it after WifiSettle.
func (l *Link) SetWifiState(ctx context.Context, enabled bool) bool {
	name := catalog.ControlWifiDisable
	if enabled {
		name = catalog.ControlWifiEnable
	}
	if !l.run(ctx, "wifi", l.catalog.Control(name)) {
		return false
	}
	if !Sleep(ctx, l.timing.WifiSettle) {
		return false
	}
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeWifiState))
	if err != nil {
		l.logger.Warn("wifi verification failed", zap.Error(err))
		return false
	}
	got, ok := ParseWifiEnabled(out)
	return ok && got == enabled
}

// SetVolume sets the music stream to level. Negative levels clamp to 0.
func (l *Link) SetVolume(ctx context.Context, level int) bool {
	level = max(level, 0)
	return l.run(ctx, "volume", l.catalog.Control(catalog.ControlVolumeSet, level))
}

// VolumeStep presses volume up or down once.
func (l *Link) VolumeStep(ctx context.Context, up bool) bool {
	name := catalog.ControlVolumeDown
	if up {
		name = catalog.ControlVolumeUp
	}
	return l.run(ctx, "volume step", l.catalog.Control(name))
}

// ToggleMute presses the mute key.
func (l *Link) ToggleMute(ctx context.Context) bool {
	return l.run(ctx, "mute", l.catalog.Control(catalog.ControlVolumeMute))
}

// SendKey injects an Android keycode.
func (l *Link) SendKey(ctx context.Context, keycode int) bool {
	if keycode < 0 {
		l.logger.Warn("rejected negative keycode", zap.Int("keycode", keycode))
		return false
	}
	return l.run(ctx, "key", l.catalog.Control(catalog.ControlKeyEvent, keycode))
}

// StartApp launches target, which is either a "pkg/activity" component or a
// package name. For a package it tries, in order, the resolved launcher
// activity, a generic launcher intent, and a monkey launch. A tier whose
// output reports failure falls through to the next; a transport error ends
// the attempt.
func (l *Link) StartApp(ctx context.Context, target string) bool {
	target = strings.TrimSpace(target)
	log := l.logger.With(zap.String("target", target))
	if !ValidTarget(target) {
		log.Warn("refusing to launch", zap.Error(ErrInvalidTarget))
		return false
	}

	if strings.Contains(target, "/") {
		out, err := l.Execute(ctx, l.catalog.Control(catalog.ControlStartComponent, target))
		if err != nil {
			log.Warn("start component failed", zap.Error(err))
			return false
		}
		return !launchFailed(out)
	}

	out, err := l.Execute(ctx, l.catalog.Control(catalog.ControlResolveActivity, target))
	if err != nil {
		log.Warn("resolve activity failed", zap.Error(err))
		return false
	}
	if component, ok := ParseComponent(out); ok {
		out, err = l.Execute(ctx, l.catalog.Control(catalog.ControlStartComponent, component))
		if err != nil {
			log.Warn("start resolved component failed", zap.Error(err))
			return false
		}
		if !launchFailed(out) {
			return true
		}
	}

	log.Debug("falling back to launcher intent")
	out, err = l.Execute(ctx, l.catalog.Control(catalog.ControlStartLauncher, target))
	if err != nil {
		log.Warn("launcher intent failed", zap.Error(err))
		return false
	}
	if !launchFailed(out) {
		return true
	}

	log.Debug("falling back to monkey launch")
	out, err = l.Execute(ctx, l.catalog.Control(catalog.ControlMonkeyLaunch, target))
	if err != nil {
		log.Warn("monkey launch failed", zap.Error(err))
		return false
	}
	if launchFailed(out) {
		log.Warn("all launch strategies failed")
		return false
	}
	return true
}

func launchFailed(out string) bool {
	lower := strings.ToLower(out)
	for _, marker := range []string{"error", "exception", "does not exist", "unable to resolve", "aborted", "no activities found"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ForceStop stops pkg.
func (l *Link) ForceStop(ctx context.Context, pkg string) bool {
	if !ValidTarget(pkg) || strings.Contains(pkg, "/") {
		l.logger.Warn("refusing to stop", zap.String("package", pkg), zap.Error(ErrInvalidTarget))
		return false
	}
	return l.run(ctx, "force stop", l.catalog.Control(catalog.ControlForceStop, pkg))
}

// RestartISG force-stops the companion app and launches it again.
func (l *Link) RestartISG(ctx context.Context) bool {
	if !l.ForceStop(ctx, l.isgPackage) {
		return false
	}
	if !Sleep(ctx, l.timing.RestartSettle) {
		return false
	}
	return l.StartApp(ctx, l.isgPackage)
}

// Reboot asks the device to restart and drops the session. The device
// usually kills the shell before answering, so transport errors after the
// command was sent count as success.
func (l *Link) Reboot(ctx context.Context) bool {
	_, err := l.Execute(ctx, l.catalog.Control(catalog.ControlReboot))
	if errors.Is(err, ErrNotConnected) {
		return false
	}
	if err != nil {
		l.logger.Debug("reboot command ended with error", zap.Error(err))
	}
	l.Disconnect(ctx)
	return true
}

// TakeScreenshot captures the screen to a file on the device and returns
// its remote path.
func (l *Link) TakeScreenshot(ctx context.Context) (string, bool) {
	remote := fmt.Sprintf("/sdcard/tvbridge_screenshot_%d.png", time.Now().UnixMilli())
	out, err := l.Execute(ctx, l.catalog.Control(catalog.ControlScreencap, remote))
	if err != nil {
		l.logger.Warn("screencap failed", zap.Error(err))
		return "", false
	}
	if launchFailed(out) {
		l.logger.Warn("screencap reported failure", zap.String("output", out))
		return "", false
	}
	return remote, true
}

// RemoveRemote deletes a file on the device.
func (l *Link) RemoveRemote(ctx context.Context, remote string) bool {
	return l.run(ctx, "remove", l.catalog.Control(catalog.ControlRemoveFile, remote))
}

// PullFile copies remote from the device to local, creating local's directory.
func (l *Link) PullFile(ctx context.Context, remote, local string) bool {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		l.logger.Warn("create pull directory failed", zap.String("local", local), zap.Error(err))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.transport.Pull(ctx, l.serial, remote, local); err != nil {
		l.logger.Warn("pull failed", zap.String("remote", remote), zap.Error(classify(err)))
		return false
	}
	return true
}

// RunDebug runs a named diagnostic command from the catalog.
func (l *Link) RunDebug(ctx context.Context, name string) (string, error) {
	cmd, ok := l.catalog.Debug(name)
	if !ok {
		return "", fmt.Errorf("unknown debug command %q", name)
	}
	return l.Execute(ctx, cmd)
}

func (l *Link) run(ctx context.Context, what, command string) bool {
	if _, err := l.Execute(ctx, command); err != nil {
		l.logger.Warn(what+" command failed", zap.Error(err))
		return false
	}
	return true
}
