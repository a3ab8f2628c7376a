package models

import "testing"

func TestPowerIconCoverage(t *testing.T) {
	for _, p := range []PowerState{PowerOn, PowerOff, PowerStandby, PowerUnknown} {
		if p.Icon() == "" {
			t.Errorf("PowerState %q has empty icon", p)
		}
	}
}

func TestPowerIconUnknownFallback(t *testing.T) {
	got := PowerState("hibernating").Icon()
	if got != PowerIcon[PowerUnknown] {
		t.Errorf("unrecognised power icon = %q, want %q", got, PowerIcon[PowerUnknown])
	}
}

func TestWifiIcon(t *testing.T) {
	tests := []struct {
		enabled, connected bool
		want               string
	}{
		{false, false, "mdi:wifi-off"},
		{true, true, "mdi:wifi"},
		{true, false, "mdi:wifi-strength-off-outline"},
	}
	for _, tc := range tests {
		if got := WifiIcon(tc.enabled, tc.connected); got != tc.want {
			t.Errorf("WifiIcon(%v, %v) = %q, want %q", tc.enabled, tc.connected, got, tc.want)
		}
	}
}
