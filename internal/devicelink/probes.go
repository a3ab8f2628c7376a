package devicelink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/pkg/models"
)

const unknownValue = "Unknown"

// PowerState reads the display power state, falling back to the display
// service when the power service output cannot be parsed.
func (l *Link) PowerState(ctx context.Context) Reading[Power] {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbePowerState))
	if err != nil {
		return probeFailed[Power](l, "power", err)
	}
	if p, ok := ParsePower(out); ok {
		return Known(p)
	}

	out, err = l.Execute(ctx, l.catalog.Probe(catalog.ProbeDisplayState))
	if err != nil {
		return probeFailed[Power](l, "power", err)
	}
	if p, ok := ParsePower(out); ok {
		return Known(p)
	}
	return probeFailed[Power](l, "power", fmt.Errorf("unrecognised power output %q", out))
}

// WifiState reads the radio state and, when enabled, the SSID and address.
// SSID and address failures leave those fields empty.
func (l *Link) WifiState(ctx context.Context) Reading[Wifi] {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeWifiState))
	if err != nil {
		return probeFailed[Wifi](l, "wifi", err)
	}
	enabled, ok := ParseWifiEnabled(out)
	if !ok {
		return probeFailed[Wifi](l, "wifi", fmt.Errorf("unrecognised wifi_on value %q", out))
	}

	w := Wifi{Enabled: enabled}
	if !enabled {
		return Known(w)
	}

	if out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeWifiSSID)); err == nil {
		w.SSID, _ = ParseSSID(out)
	} else {
		l.logger.Debug("ssid probe failed", zap.Error(err))
	}
	if out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeIPAddress)); err == nil {
		w.IPAddress, _ = ParseIPAddress(out)
	} else {
		l.logger.Debug("ip probe failed", zap.Error(err))
	}
	w.Connected = w.SSID != "" || w.IPAddress != ""
	return Known(w)
}

// VolumeState reads the music stream volume, falling back to the audio
// service dump.
func (l *Link) VolumeState(ctx context.Context) Reading[Volume] {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeVolumeState))
	if err != nil {
		return probeFailed[Volume](l, "volume", err)
	}
	if v, ok := ParseVolume(out); ok {
		return Known(v)
	}

	out, err = l.Execute(ctx, l.catalog.Probe(catalog.ProbeVolumeFallback))
	if err != nil {
		return probeFailed[Volume](l, "volume", err)
	}
	if v, ok := ParseVolume(out); ok {
		return Known(v)
	}
	return probeFailed[Volume](l, "volume", fmt.Errorf("unrecognised volume output %q", out))
}

// CurrentApp reads the package of the focused activity.
func (l *Link) CurrentApp(ctx context.Context) Reading[string] {
	for _, probe := range []string{catalog.ProbeCurrentApp, catalog.ProbeCurrentAppFallback} {
		out, err := l.Execute(ctx, l.catalog.Probe(probe))
		if err != nil {
			return probeFailed[string](l, "current_app", err)
		}
		if pkg, ok := ParseCurrentApp(out); ok {
			return Known(pkg)
		}
	}
	return probeFailed[string](l, "current_app", errors.New("no focused activity"))
}

// PlaybackState summarises active media sessions.
func (l *Link) PlaybackState(ctx context.Context) Reading[string] {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbePlaybackState))
	if err != nil {
		return probeFailed[string](l, "playback", err)
	}
	return Known(ParsePlayback(out))
}

// DeviceInfo reads model, brand, and Android version. Properties that fail
// individually read as "Unknown"; the reading is unknown only when all fail.
func (l *Link) DeviceInfo(ctx context.Context) Reading[models.DeviceInfo] {
	info := models.DeviceInfo{FetchedAt: time.Now().UTC()}
	var firstErr error
	read := func(probe string) string {
		out, err := l.Execute(ctx, l.catalog.Probe(probe))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return unknownValue
		}
		if out == "" {
			return unknownValue
		}
		return out
	}

	info.Model = read(catalog.ProbeDeviceModel)
	info.Brand = read(catalog.ProbeDeviceBrand)
	info.AndroidVersion = read(catalog.ProbeAndroidVersion)

	if info.Model == unknownValue && info.Brand == unknownValue && info.AndroidVersion == unknownValue && firstErr != nil {
		return probeFailed[models.DeviceInfo](l, "device_info", firstErr)
	}
	return Known(info)
}

// InstalledApps lists third-party packages.
func (l *Link) InstalledApps(ctx context.Context) Reading[[]string] {
	out, err := l.Execute(ctx, l.catalog.Probe(catalog.ProbeInstalledApps))
	if err != nil {
		return probeFailed[[]string](l, "installed_apps", err)
	}
	return Known(ParsePackages(out))
}

func probeFailed[T any](l *Link, probe string, err error) Reading[T] {
	l.logger.Debug("probe failed", zap.String("probe", probe), zap.Error(err))
	return Unknown[T](err)
}
