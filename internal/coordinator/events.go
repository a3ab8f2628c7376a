package coordinator

import "github.com/HerbHall/tvbridge/pkg/models"

// Bus topics published by coordinators.
const (
	TopicSnapshotUpdated   = "devices.snapshot.updated"
	TopicConnectionChanged = "devices.connection.changed"
	TopicPowerChanged      = "devices.power.changed"
	TopicCommandExecuted   = "devices.command.executed"
)

// EventSource is the Source of every coordinator event.
const EventSource = "devices"

// SnapshotEvent is the payload of TopicSnapshotUpdated.
type SnapshotEvent struct {
	DeviceID string          `json:"device_id"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// ConnectionEvent is the payload of TopicConnectionChanged.
type ConnectionEvent struct {
	DeviceID string                 `json:"device_id"`
	From     models.ConnectionState `json:"from"`
	To       models.ConnectionState `json:"to"`
	Error    string                 `json:"error,omitempty"`
}

// PowerEvent is the payload of TopicPowerChanged.
type PowerEvent struct {
	DeviceID string            `json:"device_id"`
	From     models.PowerState `json:"from"`
	To       models.PowerState `json:"to"`
}

// CommandEvent is the payload of TopicCommandExecuted.
type CommandEvent struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Argument string `json:"argument,omitempty"`
	OK       bool   `json:"ok"`
}
