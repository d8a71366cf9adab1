package authstack

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultManager is the default StackManager implementation.
type DefaultManager struct {
	registry        *Registry
	stateStore      StateStore
	validators      *ValidatorRegistry
	logger          *zap.Logger
	defaultProvider ProviderName
	providerConfig  map[ProviderName]map[string]interface{}
}

var _ StackManager = (*DefaultManager)(nil)

// ManagerOption configures the DefaultManager.
type ManagerOption func(*DefaultManager)

// WithRegistry sets the provider registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *DefaultManager) {
		m.registry = r
	}
}

// WithStateStore sets the state store.
func WithStateStore(s StateStore) ManagerOption {
	return func(m *DefaultManager) {
		m.stateStore = s
	}
}

// WithValidators sets the validator registry.
func WithValidators(v *ValidatorRegistry) ManagerOption {
	return func(m *DefaultManager) {
		m.validators = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *DefaultManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDefaultProvider sets the engine used when DeployOptions.Provider is empty.
func WithDefaultProvider(p ProviderName) ManagerOption {
	return func(m *DefaultManager) {
		m.defaultProvider = p
	}
}

// WithProviderConfig sets the configuration passed to a provider factory.
func WithProviderConfig(p ProviderName, config map[string]interface{}) ManagerOption {
	return func(m *DefaultManager) {
		m.providerConfig[p] = config
	}
}

// NewManager creates a new DefaultManager with the given options.
func NewManager(opts ...ManagerOption) *DefaultManager {
	m := &DefaultManager{
		registry:        DefaultRegistry,
		stateStore:      NewMemoryStateStore(),
		validators:      DefaultValidators,
		logger:          zap.NewNop(),
		defaultProvider: ProviderCloudFormation,
		providerConfig:  make(map[ProviderName]map[string]interface{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *DefaultManager) provisioner(ctx context.Context, name ProviderName) (Provisioner, error) {
	return m.registry.GetProvisioner(ctx, name, m.providerConfig[name])
}

// Deploy implements StackManager.
func (m *DefaultManager) Deploy(ctx context.Context, stack *Stack, opts DeployOptions) (*Outputs, error) {
	if stack == nil {
		return nil, ErrValidation("stack is required").WithOperation("deploy")
	}
	if err := stack.Validate(); err != nil {
		return nil, ErrValidation(err.Error()).WithOperation("deploy")
	}

	name := opts.Provider
	if name == "" {
		name = m.defaultProvider
	}
	log := m.logger.With(zap.String("stack", stack.ID), zap.String("provider", string(name)))

	pv, err := m.provisioner(ctx, name)
	if err != nil {
		return nil, err
	}
	if opts.DryRun && !pv.HasCapability(CapabilityDryRun) {
		return nil, ErrUnsupported(name, CapabilityDryRun)
	}

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	log.Info("deploying stack", zap.Bool("dry_run", opts.DryRun))
	outputs, err := pv.Deploy(ctx, stack, opts)
	if err != nil {
		log.Error("deploy failed", zap.Error(err))
		return nil, err
	}

	if opts.DryRun {
		return outputs, nil
	}

	m.reconcileRef(ctx, &outputs.Ref, stack.ID, name)
	if err := m.stateStore.Save(ctx, outputs.Ref); err != nil {
		// The resources exist; losing the record only affects later destroys.
		log.Warn("failed to save deployment state", zap.String("ref", outputs.Ref.ID), zap.Error(err))
	}

	log.Info("stack deployed", zap.String("ref", outputs.Ref.ID), zap.Any("outputs", outputs.Values))
	return outputs, nil
}

// reconcileRef reuses the latest record of the same stack and engine so that
// redeploying updates it instead of adding another. It is the record
// resolved when no ref is named.
func (m *DefaultManager) reconcileRef(ctx context.Context, ref *StackRef, stackID string, name ProviderName) {
	ref.StackID = stackID
	ref.Provider = name

	existing, err := m.stateStore.List(ctx, ListFilter{StackID: stackID, Provider: name, Newest: true, Limit: 1})
	if err == nil && len(existing) > 0 {
		prev := existing[0]
		ref.ID = prev.ID
		ref.CreatedAt = prev.CreatedAt
		ref.Owned = ref.Owned || prev.Owned
	}

	if ref.ID == "" {
		ref.ID = GenerateRefID(stackID, name)
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}
	if ref.Version == 0 {
		ref.Version = StateStoreVersion
	}
}

// Validate implements StackManager. Declaration checks from the validator
// registry run first, followed by the provisioner's live checks.
func (m *DefaultManager) Validate(ctx context.Context, ref StackRef, opts ValidateOptions) (*ValidationReport, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	report := RunValidation(ctx, ref, opts.Stack, m.validators.GetForProvider(ref.Provider))

	if ref.Provider != "" {
		pv, err := m.provisioner(ctx, ref.Provider)
		if err != nil {
			return nil, err
		}
		if pv.HasCapability(CapabilityValidate) {
			live, err := pv.Validate(ctx, ref, opts)
			if err != nil {
				return nil, err
			}
			report.Merge(live)
		}
	}

	report.Filter(opts.CheckIDs)
	m.logger.Debug("validated deployment",
		zap.String("ref", ref.ID),
		zap.Int("checks", report.Summary.TotalChecks),
		zap.Int("failed", report.Summary.FailedChecks),
	)
	return report, nil
}

// Destroy implements StackManager.
func (m *DefaultManager) Destroy(ctx context.Context, ref StackRef, opts DestroyOptions) error {
	log := m.logger.With(zap.String("ref", ref.ID), zap.String("provider", string(ref.Provider)))

	if !opts.Force {
		stored, err := m.stateStore.Get(ctx, ref.ID)
		if err != nil {
			if !IsCategory(err, ErrCategoryNotFound) {
				return err
			}
			return ErrNotOwned(ref, "is not recorded in the state file")
		}
		if !stored.Owned {
			return ErrNotOwned(ref, "adopted resources steps-auth did not create")
		}
	}

	pv, err := m.provisioner(ctx, ref.Provider)
	if err != nil {
		return err
	}

	if opts.Confirm != nil && !opts.DryRun {
		if !opts.Confirm(DestroyPlan(ref)) {
			return ErrCancelled
		}
	}

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	log.Info("destroying deployment", zap.Bool("dry_run", opts.DryRun), zap.String("removal_policy", string(ref.RemovalPolicy)))
	if err := pv.Destroy(ctx, ref, opts); err != nil {
		log.Error("destroy failed", zap.Error(err))
		return err
	}

	if !opts.DryRun {
		if err := m.stateStore.Delete(ctx, ref.ID); err != nil {
			log.Warn("failed to remove deployment from state", zap.Error(err))
		}
	}

	return nil
}

// DestroyPlan describes what destroying ref removes or retains.
func DestroyPlan(ref StackRef) Plan {
	op := "delete"
	if ref.RemovalPolicy == RemovalPolicyRetain {
		op = "retain"
	}

	return Plan{
		Actions: []PlannedAction{
			{
				Operation:    op,
				ResourceType: "deployment",
				ResourceID:   ref.ID,
				Details:      map[string]interface{}{"resource_ids": ref.ResourceIDs},
				Reversible:   false,
			},
		},
		Summary: fmt.Sprintf("Destroy deployment %s of stack %s (%d resources, removal policy %s)",
			ref.ID, ref.StackID, len(ref.ResourceIDs), ref.RemovalPolicy),
	}
}

// Get implements StackManager.
func (m *DefaultManager) Get(ctx context.Context, id string) (*StackRef, error) {
	return m.stateStore.Get(ctx, id)
}

// List implements StackManager.
func (m *DefaultManager) List(ctx context.Context, filter ListFilter) ([]StackRef, error) {
	return m.stateStore.List(ctx, filter)
}

// Registry returns the provider registry the manager resolves engines from.
func (m *DefaultManager) Registry() *Registry {
	return m.registry
}

// GenerateRefID generates a unique ID for a deployment.
func GenerateRefID(stackID string, provider ProviderName) string {
	return fmt.Sprintf("%s-%s-%s", stackID, provider, uuid.New().String()[:8])
}

// NewStackRef creates a new StackRef with standard fields populated.
func NewStackRef(stack *Stack, provider ProviderName, resourceIDs map[string]string) StackRef {
	ref := StackRef{
		ID:          GenerateRefID(stack.ID, provider),
		StackID:     stack.ID,
		Provider:    provider,
		ResourceIDs: resourceIDs,
		Outputs:     make(map[string]string),
		CreatedAt:   time.Now(),
		Owned:       true,
		Version:     StateStoreVersion,
	}
	if stack.Directory != nil {
		ref.RemovalPolicy = stack.Directory.RemovalPolicy
	}
	return ref
}
