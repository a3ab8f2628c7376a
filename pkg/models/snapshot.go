package models

import (
	"slices"
	"time"
)

// DefaultVolumeMax is assumed until a device reports its music stream range.
const DefaultVolumeMax = 15

// Snapshot is the last known state of one device.
type Snapshot struct {
	DeviceID string `json:"device_id"`

	// Connection
	IsConnected     bool            `json:"is_connected"`
	ConnectionState ConnectionState `json:"connection_state"`
	LastSeen        time.Time       `json:"last_seen,omitzero"`
	ErrorCount      int             `json:"error_count"`
	LastError       string          `json:"last_error,omitempty"`

	// Power
	PowerState PowerState `json:"power_state"`
	ScreenOn   bool       `json:"screen_on"`

	// Wi-Fi
	WifiEnabled   bool   `json:"wifi_enabled"`
	WifiConnected bool   `json:"wifi_connected"`
	WifiSSID      string `json:"wifi_ssid,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`

	// Audio
	VolumeLevel      int     `json:"volume_level"`
	VolumeMax        int     `json:"volume_max"`
	VolumePercentage float64 `json:"volume_percentage"`
	Muted            bool    `json:"muted"`

	// Media
	CurrentApp    string   `json:"current_app,omitempty"`
	CurrentSource string   `json:"current_source,omitempty"`
	PlaybackState string   `json:"playback_state,omitempty"`
	InstalledApps []string `json:"installed_apps,omitempty"`

	// Identity
	Info DeviceInfo `json:"info"`

	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// NewSnapshot returns the state of a device that has never been reached.
func NewSnapshot(deviceID string) Snapshot {
	return Snapshot{
		DeviceID:        deviceID,
		ConnectionState: ConnDisconnected,
		PowerState:      PowerUnknown,
		VolumeMax:       DefaultVolumeMax,
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s Snapshot) Clone() Snapshot {
	s.InstalledApps = slices.Clone(s.InstalledApps)
	return s
}

// SetVolume records level and maxLevel as reported and recomputes the
// derived percentage.
func (s *Snapshot) SetVolume(level, maxLevel int, muted bool) {
	s.VolumeLevel = level
	s.VolumeMax = maxLevel
	s.Muted = muted
	s.VolumePercentage = VolumePercentage(level, maxLevel)
}

// VolumePercentage returns level / maxLevel * 100, or 0 when maxLevel is not
// positive. The value is not rounded or clamped.
func VolumePercentage(level, maxLevel int) float64 {
	if maxLevel <= 0 {
		return 0
	}
	return float64(level) * 100 / float64(maxLevel)
}
