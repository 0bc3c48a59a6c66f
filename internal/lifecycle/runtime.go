package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// Component is anything with a start/stop lifecycle managed by the runtime.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runtime owns the process's long-running components. Components start in
// registration order and stop in reverse; only components that actually
// started are ever stopped.
type Runtime struct {
	components []Component
	running    []Component
}

func NewRuntime(components ...Component) *Runtime {
	rt := &Runtime{}
	for _, component := range components {
		rt.Register(component)
	}
	return rt
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

// Start brings the components up in registration order. On failure the
// components that already started are unwound before returning.
func (r *Runtime) Start(ctx context.Context) error {
	for _, component := range r.components {
		if err := component.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start %T: %w", component, err), r.Stop(ctx))
		}
		r.running = append(r.running, component)
	}
	return nil
}

// Stop shuts down the running components in reverse start order. Every
// running component gets its Stop call; failures are joined. Calling Stop
// twice is a no-op the second time.
func (r *Runtime) Stop(ctx context.Context) error {
	var stopErr error
	for i := len(r.running) - 1; i >= 0; i-- {
		if err := r.running[i].Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %T: %w", r.running[i], err))
		}
	}
	r.running = nil
	return stopErr
}
