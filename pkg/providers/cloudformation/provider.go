// Package cloudformation provides a provisioner that deploys the synthesized
// template as a CloudFormation stack.
package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
	"github.com/anirudhbiyani/steps-auth/pkg/providers/awsclient"
)

// DefaultWaitTimeout bounds stack operations when the caller sets no timeout.
const DefaultWaitTimeout = 30 * time.Minute

// ErrNoUpdates is returned by UpdateStack when the template and tags are unchanged.
var ErrNoUpdates = errors.New("no updates are to be performed")

// Client abstracts the CloudFormation operations for testing.
type Client interface {
	// DescribeStack returns nil without error when the stack does not exist.
	DescribeStack(ctx context.Context, name string) (*StackDescription, error)
	DescribeStackResources(ctx context.Context, name string) ([]StackResource, error)
	ValidateTemplate(ctx context.Context, body string) error

	CreateStack(ctx context.Context, in StackInput) (string, error)
	UpdateStack(ctx context.Context, in StackInput) (string, error)
	DeleteStack(ctx context.Context, name string) error

	WaitForCreate(ctx context.Context, name string, maxWait time.Duration) error
	WaitForUpdate(ctx context.Context, name string, maxWait time.Duration) error
	WaitForDelete(ctx context.Context, name string, maxWait time.Duration) error
}

// StackInput describes a stack to create or update.
type StackInput struct {
	Name         string
	TemplateBody string
	Tags         map[string]string
}

// StackDescription is a live stack.
type StackDescription struct {
	ID           string
	Name         string
	Status       string
	StatusReason string
	Outputs      map[string]string
	Tags         map[string]string
}

// StackResource is one physical resource of a live stack.
type StackResource struct {
	LogicalID  string
	PhysicalID string
	Type       string
	Status     string
}

// Provider implements authstack.Provisioner with CloudFormation.
type Provider struct {
	client      Client
	identity    awsclient.IdentityClient
	logger      *zap.Logger
	waitTimeout time.Duration
}

var _ authstack.Provisioner = (*Provider)(nil)

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithClient sets the CloudFormation client.
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

// WithWaitTimeout sets the default bound on stack operations.
func WithWaitTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.waitTimeout = d
		}
	}
}

// New creates a new CloudFormation provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{
		logger:      zap.NewNop(),
		waitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	_ = authstack.RegisterFactory(authstack.ProviderCloudFormation, authstack.ProviderFactoryFunc(NewFromConfig))
}

// NewFromConfig builds a provider backed by the AWS SDK.
func NewFromConfig(ctx context.Context, config map[string]interface{}) (authstack.Provider, error) {
	settings := awsclient.SettingsFrom(config)
	cfg, err := awsclient.Load(ctx, settings)
	if err != nil {
		return nil, err
	}
	return New(
		WithClient(NewSDKClient(cfg)),
		WithIdentityClient(awsclient.NewIdentityClient(newSTSClient(cfg))),
		WithLogger(settings.Logger.Named("cloudformation")),
	), nil
}

// Name implements authstack.Provider.
func (p *Provider) Name() authstack.ProviderName {
	return authstack.ProviderCloudFormation
}

// Capabilities implements authstack.Provider.
func (p *Provider) Capabilities() []authstack.Capability {
	return []authstack.Capability{
		authstack.CapabilityDeploy,
		authstack.CapabilityValidate,
		authstack.CapabilityDestroy,
		authstack.CapabilityDryRun,
		authstack.CapabilityTemplate,
	}
}

// HasCapability implements authstack.Provider.
func (p *Provider) HasCapability(cap authstack.Capability) bool {
	return authstack.HasCapability(p.Capabilities(), cap)
}

func (p *Provider) wrap(err error, op string) error {
	return awsclient.Classify(err, authstack.ProviderCloudFormation, op)
}

func (p *Provider) maxWait(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return p.waitTimeout
}

// Deploy implements authstack.Provisioner.
func (p *Provider) Deploy(ctx context.Context, stack *authstack.Stack, opts authstack.DeployOptions) (*authstack.Outputs, error) {
	tpl, err := stack.Synthesize()
	if err != nil {
		return nil, err
	}
	body, err := tpl.JSON()
	if err != nil {
		return nil, authstack.ErrInternal("failed to render template").WithCause(err)
	}

	name := stack.ID
	log := p.logger.With(zap.String("stack_name", name))

	if p.client == nil && !opts.DryRun {
		return nil, authstack.ErrValidation("CloudFormation client not configured").
			WithProvider(authstack.ProviderCloudFormation).
			WithDetail("hint", "Configure AWS credentials or use --dry-run")
	}

	var existing *StackDescription
	if p.client != nil {
		existing, err = p.client.DescribeStack(ctx, name)
		if err != nil {
			return nil, p.wrap(err, "describe stack")
		}
	}
	if existing != nil && strings.HasSuffix(existing.Status, "_IN_PROGRESS") {
		return nil, authstack.NewError(authstack.ErrCategoryConflict,
			fmt.Sprintf("stack %s has an operation in progress (%s)", name, existing.Status)).
			WithProvider(authstack.ProviderCloudFormation).
			WithRetryable(true)
	}

	// A stack whose first create rolled back can only be deleted.
	replace := existing != nil && existing.Status == "ROLLBACK_COMPLETE"

	plan := templatePlan(tpl, existing, replace)
	if opts.DryRun {
		if p.client != nil {
			if err := p.client.ValidateTemplate(ctx, string(body)); err != nil {
				return nil, p.wrap(err, "validate template")
			}
		}
		ref := authstack.NewStackRef(stack, authstack.ProviderCloudFormation, map[string]string{
			authstack.ResourceStackName: name,
		})
		return &authstack.Outputs{
			Ref:          ref,
			Plan:         &plan,
			Values:       map[string]string{"plan": plan.Summary},
			Instructions: []string{"Run deploy without --dry-run to apply the plan"},
		}, nil
	}

	in := StackInput{
		Name:         name,
		TemplateBody: string(body),
		Tags:         awsclient.ManagedTags(authstack.MergeTags(stack.Props.Tags, opts.Tags)),
	}

	created := false
	owned := true
	switch {
	case existing == nil || replace:
		if replace {
			log.Warn("deleting stack left in ROLLBACK_COMPLETE")
			if err := p.deleteAndWait(ctx, name); err != nil {
				return nil, err
			}
		}
		if _, err := p.client.CreateStack(ctx, in); err != nil {
			return nil, p.wrap(err, "create stack")
		}
		log.Info("creating stack")
		if err := p.client.WaitForCreate(ctx, name, p.maxWait(ctx)); err != nil {
			return nil, p.failed(ctx, name, "create", err)
		}
		created = true
	default:
		// An adopted stack keeps its own tags and stays unowned.
		owned = awsclient.IsManaged(existing.Tags)
		if !owned {
			in.Tags = existing.Tags
		}
		_, err := p.client.UpdateStack(ctx, in)
		switch {
		case errors.Is(err, ErrNoUpdates):
			log.Info("stack is up to date")
		case err != nil:
			return nil, p.wrap(err, "update stack")
		default:
			log.Info("updating stack")
			if err := p.client.WaitForUpdate(ctx, name, p.maxWait(ctx)); err != nil {
				return nil, p.failed(ctx, name, "update", err)
			}
		}
	}

	desc, err := p.client.DescribeStack(ctx, name)
	if err != nil {
		return nil, p.wrap(err, "describe stack")
	}
	if desc == nil {
		return nil, authstack.ErrNotFound("stack", name).WithProvider(authstack.ProviderCloudFormation)
	}

	resources, err := p.client.DescribeStackResources(ctx, name)
	if err != nil {
		return nil, p.wrap(err, "describe stack resources")
	}

	ref := authstack.NewStackRef(stack, authstack.ProviderCloudFormation, resourceIDs(stack, desc, resources))
	ref.Outputs = stackOutputs(stack, desc.Outputs)
	ref.Owned = owned

	log.Info("stack deployed", zap.Bool("created", created), zap.String("status", desc.Status))
	return &authstack.Outputs{
		Ref:    ref,
		Values: ref.Outputs,
	}, nil
}

// failed turns a waiter error into a categorized error carrying the stack's
// status reason.
func (p *Provider) failed(ctx context.Context, name, op string, waitErr error) error {
	e := authstack.ErrInternal(fmt.Sprintf("stack %s failed", op)).
		WithCause(waitErr).
		WithProvider(authstack.ProviderCloudFormation).
		WithResource("stack", name)
	if desc, err := p.client.DescribeStack(ctx, name); err == nil && desc != nil {
		e = e.WithDetail("status", desc.Status).WithDetail("reason", desc.StatusReason)
	}
	p.logger.Error("stack operation failed", zap.String("stack_name", name), zap.String("operation", op), zap.Error(waitErr))
	return e
}

func (p *Provider) deleteAndWait(ctx context.Context, name string) error {
	if err := p.client.DeleteStack(ctx, name); err != nil {
		return p.wrap(err, "delete stack")
	}
	if err := p.client.WaitForDelete(ctx, name, p.maxWait(ctx)); err != nil {
		return p.failed(ctx, name, "delete", err)
	}
	return nil
}

// templatePlan lists one action per template resource.
func templatePlan(tpl *authstack.Template, existing *StackDescription, replace bool) authstack.Plan {
	op := "create"
	if existing != nil && !replace {
		op = "update"
	}

	var plan authstack.Plan
	if replace {
		plan.Actions = append(plan.Actions, authstack.PlannedAction{
			Operation:    "delete",
			ResourceType: "AWS::CloudFormation::Stack",
			ResourceID:   existing.ID,
			Details:      map[string]interface{}{"status": existing.Status},
		})
	}
	for _, id := range tpl.ResourceIDs() {
		res := tpl.Resources[id]
		plan.Actions = append(plan.Actions, authstack.PlannedAction{
			Operation:    op,
			ResourceType: res.Type,
			ResourceID:   id,
			Details:      map[string]interface{}{"deletion_policy": res.DeletionPolicy},
			Reversible:   true,
		})
	}
	plan.Summary = fmt.Sprintf("Would %s stack with %d resources", op, len(tpl.Resources))
	return plan
}

// resourceIDs maps the stack's physical resources onto the ref keys.
func resourceIDs(stack *authstack.Stack, desc *StackDescription, resources []StackResource) map[string]string {
	ids := map[string]string{
		authstack.ResourceStackName:    desc.Name,
		authstack.ResourceStackID:      desc.ID,
		authstack.ResourceUserPoolName: stack.Directory.Name,
	}
	poolLogicalID := authstack.LogicalID(stack.Directory.ConstructID)
	clientLogicalID := authstack.LogicalID(stack.Client.ConstructID)
	for _, r := range resources {
		switch r.LogicalID {
		case poolLogicalID:
			ids[authstack.ResourceUserPoolID] = r.PhysicalID
		case clientLogicalID:
			ids[authstack.ResourceUserPoolClientID] = r.PhysicalID
		}
	}
	return ids
}

// stackOutputs keeps the declared outputs from the live stack's outputs.
func stackOutputs(stack *authstack.Stack, live map[string]string) map[string]string {
	out := make(map[string]string, len(stack.Outputs))
	for _, name := range stack.OutputNames() {
		if v, ok := live[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Validate implements authstack.Provisioner.
func (p *Provider) Validate(ctx context.Context, ref authstack.StackRef, opts authstack.ValidateOptions) (*authstack.ValidationReport, error) {
	name := ref.ResourceIDs[authstack.ResourceStackName]
	if name == "" {
		return nil, authstack.ErrValidation("stack_name not found in deployment ref").
			WithProvider(authstack.ProviderCloudFormation)
	}
	if p.client == nil {
		return nil, authstack.ErrValidation("CloudFormation client not configured").
			WithProvider(authstack.ProviderCloudFormation)
	}

	validators := []authstack.Validator{
		&awsclient.CallerIdentityValidator{Client: p.identity},
		&stackHealthyValidator{client: p.client, name: name},
		&outputsCurrentValidator{client: p.client, name: name},
		&resourcesPresentValidator{client: p.client, name: name},
	}
	return authstack.RunValidation(ctx, ref, opts.Stack, validators), nil
}

// Destroy implements authstack.Provisioner. Resources rendered with a
// Retain deletion policy survive the stack.
func (p *Provider) Destroy(ctx context.Context, ref authstack.StackRef, opts authstack.DestroyOptions) error {
	name := ref.ResourceIDs[authstack.ResourceStackName]
	if name == "" {
		return authstack.ErrValidation("stack_name not found in deployment ref").
			WithProvider(authstack.ProviderCloudFormation)
	}

	if opts.DryRun {
		return nil
	}
	if p.client == nil {
		return authstack.ErrValidation("CloudFormation client not configured").
			WithProvider(authstack.ProviderCloudFormation)
	}

	existing, err := p.client.DescribeStack(ctx, name)
	if err != nil {
		return p.wrap(err, "describe stack")
	}
	if existing == nil || existing.Status == "DELETE_COMPLETE" {
		p.logger.Info("stack already deleted", zap.String("stack_name", name))
		return nil
	}

	if err := p.deleteAndWait(ctx, name); err != nil {
		return err
	}
	p.logger.Info("stack deleted",
		zap.String("stack_name", name),
		zap.String("removal_policy", string(ref.RemovalPolicy)),
	)
	return nil
}
