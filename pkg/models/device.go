package models

import "time"

// PowerState is the display power state reported by a device.
type PowerState string

const (
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
	PowerStandby PowerState = "standby"
	PowerUnknown PowerState = "unknown"
)

// IsOn reports whether the display is fully awake.
func (p PowerState) IsOn() bool { return p == PowerOn }

// ConnectionState tracks the health of the link to a device.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnHealthy      ConnectionState = "healthy"
	ConnDegraded     ConnectionState = "degraded"
	ConnReconnecting ConnectionState = "reconnecting"
)

// Device identifies a configured TV box and what it has reported about itself.
type Device struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Manufacturer   string `json:"manufacturer,omitempty"`
	Model          string `json:"model,omitempty"`
	AndroidVersion string `json:"android_version,omitempty"`
}

// DeviceInfo is the slow-changing identity read from system properties.
type DeviceInfo struct {
	Model          string    `json:"model"`
	Brand          string    `json:"brand"`
	AndroidVersion string    `json:"android_version"`
	FetchedAt      time.Time `json:"fetched_at"`
}
