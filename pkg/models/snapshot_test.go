package models

import (
	"math"
	"testing"
)

func TestVolumePercentage(t *testing.T) {
	tests := []struct {
		name       string
		level, max int
		want       float64
	}{
		{"half", 8, 16, 50},
		{"exact quotient", 8, 15, 800.0 / 15},
		{"full", 15, 15, 100},
		{"zero max", 4, 0, 0},
		{"negative max", 4, -1, 0},
		{"above max", 20, 15, 400.0 / 3},
		{"negative level", -1, 15, -100.0 / 15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := VolumePercentage(tc.level, tc.max); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("VolumePercentage(%d, %d) = %v, want %v", tc.level, tc.max, got, tc.want)
			}
		})
	}
}

func TestSnapshotSetVolumeKeepsReportedMax(t *testing.T) {
	s := NewSnapshot("tv")
	s.SetVolume(5, 0, true)
	if s.VolumeMax != 0 {
		t.Errorf("VolumeMax = %d, want 0", s.VolumeMax)
	}
	if !s.Muted {
		t.Error("Muted = false, want true")
	}
	if s.VolumePercentage != 0 {
		t.Errorf("VolumePercentage = %v, want 0", s.VolumePercentage)
	}

	s.SetVolume(20, 15, false)
	if s.VolumeMax != 15 {
		t.Errorf("VolumeMax = %d, want 15", s.VolumeMax)
	}
	if math.Abs(s.VolumePercentage-400.0/3) > 1e-9 {
		t.Errorf("VolumePercentage = %v, want %v", s.VolumePercentage, 400.0/3)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := NewSnapshot("tv")
	s.InstalledApps = []string{"com.netflix.mediaclient"}

	c := s.Clone()
	c.InstalledApps[0] = "changed"

	if s.InstalledApps[0] != "com.netflix.mediaclient" {
		t.Error("Clone shared the installed apps slice")
	}
}

func TestNewSnapshotDefaults(t *testing.T) {
	s := NewSnapshot("tv")
	if s.ConnectionState != ConnDisconnected || s.PowerState != PowerUnknown || s.IsConnected {
		t.Errorf("unexpected initial snapshot: %+v", s)
	}
}
