// Package registry owns module lifecycle: registration, dependency
// ordering, initialization, event wiring, start, and stop.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// Registry manages the lifecycle of all registered modules.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	order    []string // registration order, then dependency order after Validate
	disabled map[string]string
	started  []string
	unsubs   []func()
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds a module. Names must be unique and non-empty.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("module name must not be empty")
	}
	if _, exists := r.plugins[info.Name]; exists {
		return fmt.Errorf("module %q already registered", info.Name)
	}

	r.plugins[info.Name] = p
	r.order = append(r.order, info.Name)
	r.logger.Debug("module registered", zap.String("name", info.Name), zap.String("version", info.Version))
	return nil
}

// Validate checks declared dependencies and sorts modules so every module
// follows the ones it depends on. A missing dependency disables an optional
// module (and everything depending on it) and fails a required one.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				if err := r.disableLocked(name, fmt.Sprintf("missing dependency %q", dep)); err != nil {
					return err
				}
			}
		}
	}

	sorted, err := r.topoSortLocked()
	if err != nil {
		return err
	}
	r.order = sorted

	// Cascade: dependents of disabled modules are disabled too.
	for _, name := range r.order {
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, off := r.disabled[dep]; off {
				if err := r.disableLocked(name, fmt.Sprintf("dependency %q disabled", dep)); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func (r *Registry) topoSortLocked() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.plugins))
	sorted := make([]string, 0, len(r.order))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle: %v", append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func (r *Registry) disableLocked(name, reason string) error {
	if r.plugins[name].Info().Required {
		return fmt.Errorf("required module %q: %s", name, reason)
	}
	if _, already := r.disabled[name]; !already {
		r.logger.Warn("module disabled", zap.String("name", name), zap.String("reason", reason))
	}
	r.disabled[name] = reason
	return nil
}

// IsDisabled reports whether name was disabled by validation, config, or a
// failed Init.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[name]
	return off
}

// InitAll initializes every enabled module in dependency order. depsFn
// builds the dependencies for one module; a module whose config sets
// enabled=false is skipped. After a successful Init the module's event
// subscriptions are wired.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		p := r.plugins[name]
		deps := depsFn(name)

		if deps.Config != nil && deps.Config.IsSet("enabled") && !deps.Config.GetBool("enabled") {
			r.logger.Info("module disabled by config", zap.String("name", name))
			r.disabled[name] = "disabled by config"
			continue
		}
		if dep := r.disabledDependencyLocked(name); dep != "" {
			if err := r.disableLocked(name, fmt.Sprintf("dependency %q disabled", dep)); err != nil {
				return err
			}
			continue
		}

		r.logger.Info("initializing module", zap.String("name", name))
		if err := p.Init(ctx, deps); err != nil {
			if p.Info().Required {
				return fmt.Errorf("initialize module %q: %w", name, err)
			}
			r.logger.Warn("module init failed", zap.String("name", name), zap.Error(err))
			r.disabled[name] = err.Error()
			continue
		}

		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if p.Info().Required {
					return fmt.Errorf("module %q config: %w", name, err)
				}
				r.logger.Warn("module config invalid", zap.String("name", name), zap.Error(err))
				r.disabled[name] = err.Error()
				continue
			}
		}

		if sub, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, s := range sub.Subscriptions() {
				if s.Topic == "*" {
					r.unsubs = append(r.unsubs, deps.Bus.SubscribeAll(s.Handler))
				} else {
					r.unsubs = append(r.unsubs, deps.Bus.Subscribe(s.Topic, s.Handler))
				}
			}
		}
	}
	return nil
}

func (r *Registry) disabledDependencyLocked(name string) string {
	for _, dep := range r.plugins[name].Info().Dependencies {
		if _, off := r.disabled[dep]; off {
			return dep
		}
	}
	return ""
}

// StartAll starts every enabled module in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		r.logger.Info("starting module", zap.String("name", name))
		if err := r.plugins[name].Start(ctx); err != nil {
			return fmt.Errorf("start module %q: %w", name, err)
		}
		r.started = append(r.started, name)
	}
	return nil
}

// StopAll stops started modules in reverse order and drops event
// subscriptions. Stop errors are logged, not returned.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil

	for _, name := range slices.Backward(r.started) {
		r.logger.Info("stopping module", zap.String("name", name))
		if err := r.plugins[name].Stop(ctx); err != nil {
			r.logger.Error("module stop failed", zap.String("name", name), zap.Error(err))
		}
	}
	r.started = nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns the enabled modules in dependency order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if _, off := r.disabled[name]; !off {
			result = append(result, r.plugins[name])
		}
	}
	return result
}

// AllRoutes returns the routes of every enabled HTTPProvider keyed by
// module name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		if hp, ok := r.plugins[name].(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}

// Health collects the status of every enabled HealthChecker.
func (r *Registry) Health(ctx context.Context) map[string]plugin.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]plugin.HealthStatus)
	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		if hc, ok := r.plugins[name].(plugin.HealthChecker); ok {
			out[name] = hc.Health(ctx)
		}
	}
	return out
}
