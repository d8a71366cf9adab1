// Package cognito provides a provisioner that manages the stack's directory
// and client directly through the Cognito user pool API.
package cognito

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
	"github.com/anirudhbiyani/steps-auth/pkg/providers/awsclient"
)

// Provider implements authstack.Provisioner against the Cognito API.
type Provider struct {
	client   Client
	identity awsclient.IdentityClient
	logger   *zap.Logger
}

var _ authstack.Provisioner = (*Provider)(nil)

// Client abstracts the Cognito user pool operations for testing.
type Client interface {
	// User pool operations
	ListUserPools(ctx context.Context) ([]Summary, error)
	DescribeUserPool(ctx context.Context, poolID string) (*UserPool, error)
	CreateUserPool(ctx context.Context, props authstack.UserPoolProperties) (*UserPool, error)
	UpdateUserPool(ctx context.Context, poolID string, props authstack.UserPoolProperties) error
	DeleteUserPool(ctx context.Context, poolID string) error

	// Client operations
	ListUserPoolClients(ctx context.Context, poolID string) ([]Summary, error)
	DescribeUserPoolClient(ctx context.Context, poolID, clientID string) (*UserPoolClient, error)
	CreateUserPoolClient(ctx context.Context, poolID string, cfg ClientConfig) (*UserPoolClient, error)
	UpdateUserPoolClient(ctx context.Context, poolID, clientID string, cfg ClientConfig) error
	DeleteUserPoolClient(ctx context.Context, poolID, clientID string) error
}

// Summary identifies a pool or client in a listing.
type Summary struct {
	ID   string
	Name string
}

// UserPool is a live user pool.
type UserPool struct {
	ID         string
	ARN        string
	Properties authstack.UserPoolProperties
}

// UserPoolClient is a live user pool client.
type UserPoolClient struct {
	ID         string
	UserPoolID string
	Config     ClientConfig
}

// ClientConfig is the configurable part of a user pool client.
type ClientConfig struct {
	Name                       string
	ExplicitAuthFlows          []string
	GenerateSecret             bool
	SupportedIdentityProviders []string
	ReadAttributes             []string
	WriteAttributes            []string
}

// ClientConfigFor renders the stack's client for the API. The API requires
// a name, so the construct ID stands in when none is declared.
func ClientConfigFor(c *authstack.ClientSpec) ClientConfig {
	return ClientConfig{
		Name:                       c.ClientName(),
		ExplicitAuthFlows:          c.AuthFlows.ExplicitAuthFlows(),
		GenerateSecret:             c.GenerateSecret,
		SupportedIdentityProviders: c.IdentityProviderNames(),
		ReadAttributes:             c.ReadAttributes.Names(),
		WriteAttributes:            c.WriteAttributes.Names(),
	}
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithClient sets the Cognito client.
func WithClient(client Client) ProviderOption {
	return func(p *Provider) {
		p.client = client
	}
}

// WithIdentityClient sets the STS client used to check credentials.
func WithIdentityClient(client awsclient.IdentityClient) ProviderOption {
	return func(p *Provider) {
		p.identity = client
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a new Cognito provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	_ = authstack.RegisterFactory(authstack.ProviderCognito, authstack.ProviderFactoryFunc(NewFromConfig))
}

// NewFromConfig builds a provider backed by the AWS SDK. Recognized keys
// are the awsclient.Config* constants.
func NewFromConfig(ctx context.Context, config map[string]interface{}) (authstack.Provider, error) {
	settings := awsclient.SettingsFrom(config)
	cfg, err := awsclient.Load(ctx, settings)
	if err != nil {
		return nil, err
	}
	return New(
		WithClient(NewSDKClient(cfg)),
		WithIdentityClient(awsclient.NewIdentityClient(newSTSClient(cfg))),
		WithLogger(settings.Logger.Named("cognito")),
	), nil
}

// Name implements authstack.Provider.
func (p *Provider) Name() authstack.ProviderName {
	return authstack.ProviderCognito
}

// Capabilities implements authstack.Provider.
func (p *Provider) Capabilities() []authstack.Capability {
	return []authstack.Capability{
		authstack.CapabilityDeploy,
		authstack.CapabilityValidate,
		authstack.CapabilityDestroy,
		authstack.CapabilityDryRun,
		authstack.CapabilityDriftCheck,
	}
}

// HasCapability implements authstack.Provider.
func (p *Provider) HasCapability(cap authstack.Capability) bool {
	return authstack.HasCapability(p.Capabilities(), cap)
}

func (p *Provider) wrap(err error, op string) error {
	return awsclient.Classify(err, authstack.ProviderCognito, op)
}

// Deploy implements authstack.Provisioner. The pool is found by name and
// updated in place, or created; the client is found by name inside the pool.
// Only pools created here get the managed-by tag. A pool found without it
// keeps its own tags, so it is never mistaken for one steps-auth owns.
func (p *Provider) Deploy(ctx context.Context, stack *authstack.Stack, opts authstack.DeployOptions) (*authstack.Outputs, error) {
	var plan authstack.Plan

	props := stack.UserPoolProperties(awsclient.ManagedTags(opts.Tags))
	clientCfg := ClientConfigFor(stack.Client)
	log := p.logger.With(zap.String("user_pool", props.UserPoolName))

	if p.client == nil && !opts.DryRun {
		return nil, authstack.ErrValidation("Cognito client not configured").
			WithProvider(authstack.ProviderCognito).
			WithDetail("hint", "Configure AWS credentials or use --dry-run")
	}

	// Step 1: Locate an existing pool
	var existing *UserPool
	if p.client != nil {
		pool, err := p.findUserPool(ctx, props.UserPoolName)
		if err != nil {
			return nil, err
		}
		existing = pool
	}

	if existing != nil {
		plan.Actions = append(plan.Actions, authstack.PlannedAction{
			Operation:    "update",
			ResourceType: authstack.ResourceTypeUserPool,
			ResourceID:   existing.ID,
			Details:      map[string]interface{}{"name": props.UserPoolName},
			Reversible:   true,
		})
	} else {
		plan.Actions = append(plan.Actions, authstack.PlannedAction{
			Operation:    "create",
			ResourceType: authstack.ResourceTypeUserPool,
			Details: map[string]interface{}{
				"name":           props.UserPoolName,
				"removal_policy": string(stack.Directory.RemovalPolicy),
			},
			Reversible: true,
		})
	}

	// Step 2: Locate the client inside an existing pool
	var existingClientID string
	if existing != nil {
		id, err := p.findClient(ctx, existing.ID, clientCfg.Name)
		if err != nil {
			return nil, err
		}
		existingClientID = id
	}

	clientAction := authstack.PlannedAction{
		Operation:    "create",
		ResourceType: authstack.ResourceTypeUserPoolClient,
		Details: map[string]interface{}{
			"name":                clientCfg.Name,
			"explicit_auth_flows": clientCfg.ExplicitAuthFlows,
		},
		Reversible: true,
	}
	if existingClientID != "" {
		clientAction.Operation = "update"
		clientAction.ResourceID = existingClientID
	}
	plan.Actions = append(plan.Actions, clientAction)

	if opts.DryRun {
		plan.Summary = fmt.Sprintf("Would create/update %d resources for stack %s", len(plan.Actions), stack.ID)
		ref := authstack.NewStackRef(stack, authstack.ProviderCognito, map[string]string{
			authstack.ResourceUserPoolName: props.UserPoolName,
		})
		return &authstack.Outputs{
			Ref:    ref,
			Plan:   &plan,
			Values: map[string]string{"plan": plan.Summary},
		}, nil
	}

	// Step 3: Create or update the pool
	var poolID string
	created := false
	owned := true
	if existing != nil {
		poolID = existing.ID
		owned = awsclient.IsManaged(existing.Properties.UserPoolTags)
		if !owned {
			props.UserPoolTags = existing.Properties.UserPoolTags
		}
		if err := p.client.UpdateUserPool(ctx, poolID, props); err != nil {
			return nil, p.wrap(err, "update user pool")
		}
		log.Info("updated user pool", zap.String("id", poolID), zap.Bool("owned", owned))
	} else {
		pool, err := p.client.CreateUserPool(ctx, props)
		if err != nil {
			return nil, p.wrap(err, "create user pool")
		}
		poolID = pool.ID
		created = true
		log.Info("created user pool", zap.String("id", poolID))
	}

	// Step 4: Create or update the client
	clientID := existingClientID
	if clientID != "" {
		if err := p.client.UpdateUserPoolClient(ctx, poolID, clientID, clientCfg); err != nil {
			return nil, p.rollbackAfter(ctx, p.wrap(err, "update user pool client"), poolID, created)
		}
		log.Info("updated user pool client", zap.String("id", clientID))
	} else {
		c, err := p.client.CreateUserPoolClient(ctx, poolID, clientCfg)
		if err != nil {
			return nil, p.rollbackAfter(ctx, p.wrap(err, "create user pool client"), poolID, created)
		}
		clientID = c.ID
		log.Info("created user pool client", zap.String("id", clientID))
	}

	values := outputValues(stack, poolID, clientID)
	ref := authstack.NewStackRef(stack, authstack.ProviderCognito, map[string]string{
		authstack.ResourceUserPoolID:       poolID,
		authstack.ResourceUserPoolName:     props.UserPoolName,
		authstack.ResourceUserPoolClientID: clientID,
	})
	ref.Outputs = values
	ref.Owned = owned

	return &authstack.Outputs{
		Ref:    ref,
		Values: values,
	}, nil
}

// outputValues resolves each declared output to the identifier of its target.
func outputValues(stack *authstack.Stack, poolID, clientID string) map[string]string {
	ids := map[string]string{
		stack.Directory.ConstructID: poolID,
		stack.Client.ConstructID:    clientID,
	}
	values := make(map[string]string, len(stack.Outputs))
	for _, o := range stack.Outputs {
		values[o.Name] = ids[o.Target]
	}
	return values
}

// rollbackAfter removes a pool created earlier in the same deploy.
func (p *Provider) rollbackAfter(ctx context.Context, cause error, poolID string, created bool) error {
	if !created {
		return cause
	}

	rbErr := &authstack.RollbackError{OriginalError: cause}
	if err := p.client.DeleteUserPool(ctx, poolID); err != nil && !isNotFound(err) {
		rbErr.RollbackErrors = append(rbErr.RollbackErrors, err)
		rbErr.OrphanedResources = append(rbErr.OrphanedResources, poolID)
		p.logger.Error("rollback failed", zap.String("user_pool", poolID), zap.Error(err))
	} else {
		rbErr.CleanedResources = append(rbErr.CleanedResources, poolID)
	}
	return rbErr
}

func (p *Provider) findUserPool(ctx context.Context, name string) (*UserPool, error) {
	pools, err := p.client.ListUserPools(ctx)
	if err != nil {
		return nil, p.wrap(err, "list user pools")
	}

	var matches []string
	for _, s := range pools {
		if s.Name == name {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		pool, err := p.client.DescribeUserPool(ctx, matches[0])
		if err != nil {
			return nil, p.wrap(err, "describe user pool")
		}
		return pool, nil
	default:
		return nil, authstack.ErrConflict("user pool", name, fmt.Sprintf("%d pools share this name", len(matches))).
			WithProvider(authstack.ProviderCognito).
			WithDetail("ids", matches).
			WithHint("Delete or rename the extra pools, or deploy with the cloudformation engine")
	}
}

func (p *Provider) findClient(ctx context.Context, poolID, name string) (string, error) {
	clients, err := p.client.ListUserPoolClients(ctx, poolID)
	if err != nil {
		return "", p.wrap(err, "list user pool clients")
	}
	for _, c := range clients {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return "", nil
}

// Validate implements authstack.Provisioner.
func (p *Provider) Validate(ctx context.Context, ref authstack.StackRef, opts authstack.ValidateOptions) (*authstack.ValidationReport, error) {
	poolID := ref.ResourceIDs[authstack.ResourceUserPoolID]
	if poolID == "" {
		return nil, authstack.ErrValidation("user_pool_id not found in deployment ref").
			WithProvider(authstack.ProviderCognito)
	}
	if p.client == nil {
		return nil, authstack.ErrValidation("Cognito client not configured").
			WithProvider(authstack.ProviderCognito)
	}

	validators := []authstack.Validator{
		&awsclient.CallerIdentityValidator{Client: p.identity},
		&userPoolExistsValidator{client: p.client, poolID: poolID},
	}
	if clientID := ref.ResourceIDs[authstack.ResourceUserPoolClientID]; clientID != "" {
		validators = append(validators, &clientExistsValidator{client: p.client, poolID: poolID, clientID: clientID})
	}
	if opts.Stack != nil {
		validators = append(validators,
			&passwordPolicyDriftValidator{client: p.client, poolID: poolID},
			&schemaDriftValidator{client: p.client, poolID: poolID},
		)
		if clientID := ref.ResourceIDs[authstack.ResourceUserPoolClientID]; clientID != "" {
			validators = append(validators, &clientDriftValidator{client: p.client, poolID: poolID, clientID: clientID})
		}
	}

	return authstack.RunValidation(ctx, ref, opts.Stack, validators), nil
}

// Destroy implements authstack.Provisioner. The client is always removed;
// the pool is removed only under the destroy removal policy.
func (p *Provider) Destroy(ctx context.Context, ref authstack.StackRef, opts authstack.DestroyOptions) error {
	poolID := ref.ResourceIDs[authstack.ResourceUserPoolID]
	if poolID == "" {
		return authstack.ErrValidation("user_pool_id not found in deployment ref").
			WithProvider(authstack.ProviderCognito)
	}

	if opts.DryRun {
		return nil
	}
	if p.client == nil {
		return authstack.ErrValidation("Cognito client not configured").
			WithProvider(authstack.ProviderCognito)
	}

	log := p.logger.With(zap.String("user_pool", poolID))

	// Step 1: Delete the client
	if clientID := ref.ResourceIDs[authstack.ResourceUserPoolClientID]; clientID != "" {
		if err := p.client.DeleteUserPoolClient(ctx, poolID, clientID); err != nil && !isNotFound(err) {
			return p.wrap(err, "delete user pool client")
		}
		log.Info("deleted user pool client", zap.String("id", clientID))
	}

	// Step 2: Delete or retain the pool
	if ref.RemovalPolicy == authstack.RemovalPolicyRetain {
		log.Info("retaining user pool per removal policy")
		return nil
	}
	if err := p.client.DeleteUserPool(ctx, poolID); err != nil && !isNotFound(err) {
		return p.wrap(err, "delete user pool")
	}
	log.Info("deleted user pool")
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return authstack.IsCategory(awsclient.Classify(err, authstack.ProviderCognito, "probe"), authstack.ErrCategoryNotFound) ||
		strings.Contains(err.Error(), "ResourceNotFoundException")
}
