package testutil

import (
	"time"

	"github.com/HerbHall/tvbridge/pkg/models"
)

// NewSnapshot returns a healthy, powered-on snapshot for deviceID. Override
// fields with the With* options.
func NewSnapshot(deviceID string, opts ...func(*models.Snapshot)) models.Snapshot {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := models.NewSnapshot(deviceID)
	s.IsConnected = true
	s.ConnectionState = models.ConnHealthy
	s.LastSeen = now
	s.LastUpdated = now
	s.PowerState = models.PowerOn
	s.ScreenOn = true
	s.WifiEnabled = true
	s.WifiConnected = true
	s.WifiSSID = "HomeNet"
	s.IPAddress = "192.168.1.50"
	s.SetVolume(8, 15, false)
	s.CurrentApp = "com.google.android.youtube.tv"
	s.Info = models.DeviceInfo{Model: "TV Box", Brand: "Generic", AndroidVersion: "11", FetchedAt: now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithPower sets the power state and matching screen flag.
func WithPower(p models.PowerState) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		s.PowerState = p
		s.ScreenOn = p == models.PowerOn
	}
}

// WithDisconnected marks the snapshot unreachable.
func WithDisconnected(lastErr string) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		s.IsConnected = false
		s.ConnectionState = models.ConnDisconnected
		s.ErrorCount = 1
		s.LastError = lastErr
	}
}

// WithVolume sets the music stream volume.
func WithVolume(level, maxLevel int, muted bool) func(*models.Snapshot) {
	return func(s *models.Snapshot) { s.SetVolume(level, maxLevel, muted) }
}
