package plugin

import "context"

// HTTPProvider is implemented by modules that expose REST routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthStatus is a module's self-reported health.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker is implemented by modules that report health.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Subscription binds a bus topic to a handler. Topic "*" receives everything.
type Subscription struct {
	Topic   string
	Handler EventHandler
}

// EventSubscriber is implemented by modules whose subscriptions the registry
// wires after Init.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// Validator is implemented by modules that check their config after Init.
type Validator interface {
	ValidateConfig() error
}
