package lifecycle

import "context"

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// ManagedResource is a component with an explicit start, stop, and health check.
type ManagedResource interface {
	// Start prepares the component. It should be idempotent.
	Start(ctx context.Context) error

	// Stop releases the component's resources. It should be idempotent.
	Stop(ctx context.Context) error

	Health(ctx context.Context) HealthStatus
}

// StopAll stops resources in reverse order and returns the first error.
func StopAll(ctx context.Context, resources ...ManagedResource) error {
	var first error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Stop(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
