package models

// PowerIcon maps a PowerState to a Material Design icon for dashboards.
var PowerIcon = map[PowerState]string{
	PowerOn:      "mdi:television-box",
	PowerStandby: "mdi:television-ambient-light",
	PowerOff:     "mdi:television-off",
	PowerUnknown: "mdi:television-classic-off",
}

// Icon returns the dashboard icon for p.
func (p PowerState) Icon() string {
	if icon, ok := PowerIcon[p]; ok {
		return icon
	}
	return PowerIcon[PowerUnknown]
}

// Icon returns the dashboard icon for the connection state.
func (c ConnectionState) Icon() string {
	switch c {
	case ConnHealthy:
		return "mdi:lan-connect"
	case ConnDegraded, ConnReconnecting:
		return "mdi:lan-pending"
	default:
		return "mdi:lan-disconnect"
	}
}

// WifiIcon returns the dashboard icon for the radio and association state.
func WifiIcon(enabled, connected bool) string {
	switch {
	case !enabled:
		return "mdi:wifi-off"
	case connected:
		return "mdi:wifi"
	default:
		return "mdi:wifi-strength-off-outline"
	}
}
