package coordinator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/pkg/models"
)

var (
	// ErrNoScreenshotStore is returned when screenshots are not configured.
	ErrNoScreenshotStore = errors.New("coordinator: screenshot storage not configured")

	// ErrScreenshotFailed is returned when the capture or pull did not succeed.
	ErrScreenshotFailed = errors.New("coordinator: screenshot failed")
)

// command runs fn as one serialized device operation: it connects first if
// needed, records the outcome, and requests a full refresh afterwards.
func (c *Coordinator) command(ctx context.Context, name, arg string, fn func(ctx context.Context) bool) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ok := c.ensureConnectedLocked(ctx) && fn(ctx)

	c.metrics.Command(c.id, name, ok)
	c.publish(ctx, TopicCommandExecuted, CommandEvent{DeviceID: c.id, Command: name, Argument: arg, OK: ok})
	log := c.logger.With(zap.String("command", name), zap.String("arg", arg))
	if ok {
		log.Info("command succeeded")
	} else {
		log.Warn("command failed")
	}

	c.ForceRefresh()
	return ok
}

func (c *Coordinator) ensureConnectedLocked(ctx context.Context) bool {
	if c.link.IsConnected() {
		return true
	}
	return c.connectLocked(ctx)
}

// settleThen waits d and then runs reread, unless ctx ends first.
func settleThen(ctx context.Context, d time.Duration, reread func(context.Context)) {
	if devicelink.Sleep(ctx, d) {
		reread(ctx)
	}
}

func (c *Coordinator) rereadPower(ctx context.Context) {
	if p, ok := c.link.PowerState(ctx).Get(); ok {
		c.applyPower(ctx, p)
	}
}

func (c *Coordinator) applyPower(ctx context.Context, p devicelink.Power) {
	c.update(ctx, func(s *models.Snapshot) { s.PowerState, s.ScreenOn = p.State, p.ScreenOn })
}

func (c *Coordinator) rereadWifi(ctx context.Context) {
	if w, ok := c.link.WifiState(ctx).Get(); ok {
		c.update(ctx, func(s *models.Snapshot) {
			s.WifiEnabled, s.WifiConnected = w.Enabled, w.Connected
			s.WifiSSID, s.IPAddress = w.SSID, w.IPAddress
		})
	}
}

func (c *Coordinator) rereadVolume(ctx context.Context) {
	if v, ok := c.link.VolumeState(ctx).Get(); ok {
		c.update(ctx, func(s *models.Snapshot) { s.SetVolume(v.Level, v.Max, v.Muted) })
	}
}

func (c *Coordinator) rereadApp(ctx context.Context) {
	if pkg, ok := c.link.CurrentApp(ctx).Get(); ok {
		c.update(ctx, func(s *models.Snapshot) {
			s.CurrentApp = pkg
			s.CurrentSource = c.apps.NameFor(pkg)
		})
	}
}

// SetPower turns the display on or off with full verification.
func (c *Coordinator) SetPower(ctx context.Context, on bool) bool {
	return c.command(ctx, "power", strconv.FormatBool(on), func(ctx context.Context) bool {
		ok := c.link.SetPowerState(ctx, on)
		settleThen(ctx, c.settle.Power, c.rereadPower)
		return ok
	})
}

// QuickSetPower sends the power key and polls until the target state shows
// up or the poll budget runs out. The snapshot tracks every reading.
func (c *Coordinator) QuickSetPower(ctx context.Context, on bool) bool {
	return c.command(ctx, "power_quick", strconv.FormatBool(on), func(ctx context.Context) bool {
		if !c.link.SendPowerCommand(ctx, on) {
			return false
		}
		for range c.settle.QuickPolls {
			if !devicelink.Sleep(ctx, c.settle.QuickPoll) {
				return false
			}
			if p, ok := c.link.PowerState(ctx).Get(); ok {
				c.applyPower(ctx, p)
				if devicelink.MatchesTarget(p.State, on) {
					return true
				}
			}
		}
		return false
	})
}

// SetWifi enables or disables the radio.
func (c *Coordinator) SetWifi(ctx context.Context, enabled bool) bool {
	return c.command(ctx, "wifi", strconv.FormatBool(enabled), func(ctx context.Context) bool {
		ok := c.link.SetWifiState(ctx, enabled)
		settleThen(ctx, c.settle.Wifi, c.rereadWifi)
		return ok
	})
}

// SetVolume sets the music stream level, clamped to [0, VolumeMax]. Only the
// lower bound applies until the device has reported a range.
func (c *Coordinator) SetVolume(ctx context.Context, level int) bool {
	level = max(level, 0)
	if maxLevel := c.Snapshot().VolumeMax; maxLevel > 0 {
		level = min(level, maxLevel)
	}
	return c.command(ctx, "volume", strconv.Itoa(level), func(ctx context.Context) bool {
		ok := c.link.SetVolume(ctx, level)
		settleThen(ctx, c.settle.Volume, c.rereadVolume)
		return ok
	})
}

// SetVolumePercent sets the volume as a percentage of the device's range.
func (c *Coordinator) SetVolumePercent(ctx context.Context, pct float64) bool {
	maxLevel := c.Snapshot().VolumeMax
	if maxLevel <= 0 {
		maxLevel = models.DefaultVolumeMax
	}
	return c.SetVolume(ctx, int(pct/100*float64(maxLevel)+0.5))
}

// VolumeStep presses volume up or down.
func (c *Coordinator) VolumeStep(ctx context.Context, up bool) bool {
	name := "volume_down"
	if up {
		name = "volume_up"
	}
	return c.command(ctx, name, "", func(ctx context.Context) bool {
		ok := c.link.VolumeStep(ctx, up)
		settleThen(ctx, c.settle.Volume, c.rereadVolume)
		return ok
	})
}

// ToggleMute presses the mute key.
func (c *Coordinator) ToggleMute(ctx context.Context) bool {
	return c.command(ctx, "mute", "", func(ctx context.Context) bool {
		ok := c.link.ToggleMute(ctx)
		settleThen(ctx, c.settle.Volume, c.rereadVolume)
		return ok
	})
}

// StartApp launches a friendly source name, package, or component.
func (c *Coordinator) StartApp(ctx context.Context, target string) bool {
	resolved := c.apps.Resolve(target)
	return c.command(ctx, "start_app", resolved, func(ctx context.Context) bool {
		ok := c.link.StartApp(ctx, resolved)
		settleThen(ctx, c.settle.App, c.rereadApp)
		return ok
	})
}

// SendKey injects an Android keycode.
func (c *Coordinator) SendKey(ctx context.Context, keycode int) bool {
	return c.command(ctx, "key", strconv.Itoa(keycode), func(ctx context.Context) bool {
		return c.link.SendKey(ctx, keycode)
	})
}

// RestartApp restarts the companion ISG app.
func (c *Coordinator) RestartApp(ctx context.Context) bool {
	return c.command(ctx, "restart_app", "", func(ctx context.Context) bool {
		ok := c.link.RestartISG(ctx)
		if ok {
			devicelink.Sleep(ctx, c.settle.Restart)
		}
		return ok
	})
}

// Reboot restarts the device. The snapshot is marked disconnected until the
// next cycle reconnects.
func (c *Coordinator) Reboot(ctx context.Context) bool {
	return c.command(ctx, "reboot", "", func(ctx context.Context) bool {
		if !c.link.Reboot(ctx) {
			return false
		}
		c.update(ctx, func(s *models.Snapshot) {
			s.IsConnected = false
			s.ConnectionState = models.ConnDisconnected
			s.LastError = "rebooting"
		})
		return true
	})
}

// TakeScreenshot captures the screen, pulls it into the screenshot store,
// prunes old captures, and returns the local path.
func (c *Coordinator) TakeScreenshot(ctx context.Context) (string, error) {
	if c.shots == nil {
		return "", ErrNoScreenshotStore
	}
	var local string
	ok := c.command(ctx, "screenshot", "", func(ctx context.Context) bool {
		remote, ok := c.link.TakeScreenshot(ctx)
		if !ok {
			return false
		}
		defer c.link.RemoveRemote(ctx, remote)

		path := c.shots.Path(c.id)
		if !c.link.PullFile(ctx, remote, path) {
			return false
		}
		local = path
		if n, err := c.shots.Prune(c.id); err != nil {
			c.logger.Warn("prune screenshots failed", zap.Error(err))
		} else if n > 0 {
			c.logger.Debug("pruned screenshots", zap.Int("removed", n))
		}
		return true
	})
	if !ok {
		return "", ErrScreenshotFailed
	}
	return local, nil
}

// PullFile copies a file from the device.
func (c *Coordinator) PullFile(ctx context.Context, remote, local string) bool {
	return c.command(ctx, "pull", remote, func(ctx context.Context) bool {
		return c.link.PullFile(ctx, remote, local)
	})
}

// RefreshApps re-reads the installed package list now.
func (c *Coordinator) RefreshApps(ctx context.Context) bool {
	return c.command(ctx, "refresh_apps", "", func(ctx context.Context) bool {
		return c.refreshAppsLocked(ctx, c.now())
	})
}

// RunDebug runs a named diagnostic command.
func (c *Coordinator) RunDebug(ctx context.Context, name string) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureConnectedLocked(ctx) {
		return "", devicelink.ErrNotConnected
	}
	return c.link.RunDebug(ctx, name)
}

// Reconnect drops and re-establishes the session.
func (c *Coordinator) Reconnect(ctx context.Context) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.link.Disconnect(ctx)
	c.failures = 0
	ok := c.connectLocked(ctx)
	c.ForceRefresh()
	return ok
}

// Disconnect closes the session. The next cycle reconnects.
func (c *Coordinator) Disconnect(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.link.Disconnect(ctx)
	c.update(ctx, func(s *models.Snapshot) {
		s.IsConnected = false
		s.ConnectionState = models.ConnDisconnected
	})
}

// Shutdown closes the session for good.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.Disconnect(ctx)
	c.logger.Info("coordinator stopped")
}
