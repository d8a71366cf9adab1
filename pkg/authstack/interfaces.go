package authstack

import (
	"context"
)

// Provider is the base interface for provisioning engines.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// Capabilities returns the features supported by this provider.
	Capabilities() []Capability

	// HasCapability checks if the provider supports a specific capability.
	HasCapability(cap Capability) bool
}

// Provisioner extends Provider with stack lifecycle operations. The
// provisioner does all diffing, dependency resolution and API calls; the
// stack it receives is already validated.
type Provisioner interface {
	Provider

	// Deploy creates or updates the stack's resources.
	// Deploy is idempotent: repeating it with the same stack converges on the same state.
	Deploy(ctx context.Context, stack *Stack, opts DeployOptions) (*Outputs, error)

	// Validate checks a deployment against the engine.
	Validate(ctx context.Context, ref StackRef, opts ValidateOptions) (*ValidationReport, error)

	// Destroy tears the deployment down, honoring the directory's removal policy.
	// Destroy is idempotent: resources already gone are not an error.
	Destroy(ctx context.Context, ref StackRef, opts DestroyOptions) error
}

// ProviderFactory creates provider instances.
type ProviderFactory interface {
	// Create creates a new provider instance with the given configuration.
	Create(ctx context.Context, config map[string]interface{}) (Provider, error)
}

// ProviderFactoryFunc adapts a function to ProviderFactory.
type ProviderFactoryFunc func(ctx context.Context, config map[string]interface{}) (Provider, error)

// Create implements ProviderFactory.
func (f ProviderFactoryFunc) Create(ctx context.Context, config map[string]interface{}) (Provider, error) {
	return f(ctx, config)
}

// StackManager provides lifecycle operations for deployed stacks.
type StackManager interface {
	// Deploy validates the stack and hands it to a provisioner.
	Deploy(ctx context.Context, stack *Stack, opts DeployOptions) (*Outputs, error)

	// Validate checks if a deployment is correctly configured.
	Validate(ctx context.Context, ref StackRef, opts ValidateOptions) (*ValidationReport, error)

	// Destroy removes a deployment. Only owned deployments are destroyed
	// unless Force is set.
	Destroy(ctx context.Context, ref StackRef, opts DestroyOptions) error

	// Get retrieves a deployment by ID.
	Get(ctx context.Context, id string) (*StackRef, error)

	// List returns all deployments matching the given filter.
	List(ctx context.Context, filter ListFilter) ([]StackRef, error)
}

// ListFilter specifies criteria for listing deployments.
type ListFilter struct {
	// StackID filters by stack identifier.
	StackID string

	// Provider filters by engine.
	Provider ProviderName

	// Newest orders the most recently created deployments first.
	Newest bool

	// Limit is the maximum number of results to return.
	Limit int

	// Offset is the starting index for pagination.
	Offset int
}
