// Package plugin defines the contract between tvbridge modules and the
// runtime that hosts them: lifecycle, configuration, events, and storage.
package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PluginInfo describes a module to the registry.
type PluginInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`

	// Required modules abort startup when they cannot be initialized.
	// Optional ones are disabled instead.
	Required bool `json:"required"`
}

// Plugin is implemented by every tvbridge module.
type Plugin interface {
	// Info returns the module's identity and declared dependencies.
	Info() PluginInfo

	// Init wires the module to its dependencies. No background work may start here.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins background operations. It must not block.
	Start(ctx context.Context) error

	// Stop shuts the module down and waits for its goroutines.
	Stop(ctx context.Context) error
}

// Dependencies are handed to a module during Init.
type Dependencies struct {
	Config Config
	Logger *zap.Logger
	Store  Store
	Bus    EventBus
}

// Config is the read-only configuration view a module receives. It is scoped
// to the module's own section ("modules.<name>").
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringMapString(key string) map[string]string
	IsSet(key string) bool
	Sub(key string) Config
	Unmarshal(target any) error
}

// Route is an HTTP route exposed by a module. Path is relative to the
// module mount point (/api/v1/<module>).
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Event is a message published on the bus.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// EventHandler consumes bus events.
type EventHandler func(ctx context.Context, event Event)

// EventBus is the in-process publish/subscribe channel between modules.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event)
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Migration is a single schema step owned by a module.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the shared SQL database.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, module string, migrations []Migration) error
}
