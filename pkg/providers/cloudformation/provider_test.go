package cloudformation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
	"github.com/anirudhbiyani/steps-auth/pkg/providers/awsclient"
)

// fakeClient is an in-memory CloudFormation that completes every operation
// immediately unless told to fail.
type fakeClient struct {
	mu        sync.Mutex
	stacks    map[string]*StackDescription
	resources map[string][]StackResource
	bodies    map[string]string

	failCreate  bool
	templateErr error
	calls       []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		stacks:    make(map[string]*StackDescription),
		resources: make(map[string][]StackResource),
		bodies:    make(map[string]string),
	}
}

func (f *fakeClient) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeClient) DescribeStack(ctx context.Context, name string) (*StackDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stacks[name]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeClient) DescribeStackResources(ctx context.Context, name string) ([]StackResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stacks[name]; !ok {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id " + name + " does not exist"}
	}
	return f.resources[name], nil
}

func (f *fakeClient) ValidateTemplate(ctx context.Context, body string) error {
	f.record("ValidateTemplate")
	return f.templateErr
}

func (f *fakeClient) CreateStack(ctx context.Context, in StackInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateStack")
	if _, ok := f.stacks[in.Name]; ok {
		return "", &smithy.GenericAPIError{Code: "AlreadyExistsException"}
	}

	id := "arn:aws:cloudformation:us-east-1:123456789012:stack/" + in.Name + "/1"
	s := &StackDescription{ID: id, Name: in.Name, Status: "CREATE_COMPLETE", Tags: in.Tags}
	if f.failCreate {
		s.Status = "ROLLBACK_COMPLETE"
		s.StatusReason = "The following resource(s) failed to create: [StepsUserPool]"
	} else {
		s.Outputs = map[string]string{
			authstack.OutputUserPoolID:       "us-east-1_abc",
			authstack.OutputUserPoolClientID: "client123",
			"Unrelated":                      "ignored",
		}
		f.resources[in.Name] = []StackResource{
			{LogicalID: "StepsUserPool", PhysicalID: "us-east-1_abc", Type: authstack.ResourceTypeUserPool, Status: "CREATE_COMPLETE"},
			{LogicalID: "userpoolclient", PhysicalID: "client123", Type: authstack.ResourceTypeUserPoolClient, Status: "CREATE_COMPLETE"},
		}
	}
	f.stacks[in.Name] = s
	f.bodies[in.Name] = in.TemplateBody
	return id, nil
}

func (f *fakeClient) UpdateStack(ctx context.Context, in StackInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateStack")
	s, ok := f.stacks[in.Name]
	if !ok {
		return "", &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack does not exist"}
	}
	if f.bodies[in.Name] == in.TemplateBody && sameTags(s.Tags, in.Tags) {
		return "", ErrNoUpdates
	}
	s.Status = "UPDATE_COMPLETE"
	s.Tags = in.Tags
	f.bodies[in.Name] = in.TemplateBody
	return s.ID, nil
}

func sameTags(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (f *fakeClient) DeleteStack(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteStack")
	delete(f.stacks, name)
	delete(f.resources, name)
	delete(f.bodies, name)
	return nil
}

func (f *fakeClient) WaitForCreate(ctx context.Context, name string, maxWait time.Duration) error {
	f.record("WaitForCreate")
	if f.failCreate {
		return errors.New("waiter state transitioned to Failure")
	}
	return nil
}

func (f *fakeClient) WaitForUpdate(ctx context.Context, name string, maxWait time.Duration) error {
	f.record("WaitForUpdate")
	return nil
}

func (f *fakeClient) WaitForDelete(ctx context.Context, name string, maxWait time.Duration) error {
	f.record("WaitForDelete")
	return nil
}

type fakeIdentity struct{}

func (fakeIdentity) GetCallerIdentity(ctx context.Context) (*awsclient.CallerIdentity, error) {
	return &awsclient.CallerIdentity{Account: "123456789012"}, nil
}

func newTestProvider(fc *fakeClient) *Provider {
	return New(WithClient(fc), WithIdentityClient(fakeIdentity{}))
}

func TestProvider_Capabilities(t *testing.T) {
	p := New()
	assert.Equal(t, authstack.ProviderCloudFormation, p.Name())
	assert.True(t, p.HasCapability(authstack.CapabilityTemplate))
	assert.False(t, p.HasCapability(authstack.CapabilityDriftCheck))
	assert.Equal(t, DefaultWaitTimeout, p.waitTimeout)
	assert.Equal(t, time.Minute, New(WithWaitTimeout(time.Minute)).waitTimeout)
	assert.Equal(t, DefaultWaitTimeout, New(WithWaitTimeout(0)).waitTimeout)
}

func TestProvider_MaxWait(t *testing.T) {
	p := New(WithWaitTimeout(time.Hour))
	assert.Equal(t, time.Hour, p.maxWait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	assert.LessOrEqual(t, p.maxWait(ctx), time.Minute)
}

func TestProvider_Deploy_Create(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	stack := authstack.NewAuthStack("AuthStack", &authstack.StackProps{Tags: map[string]string{"team": "identity"}})

	out, err := newTestProvider(fc).Deploy(ctx, stack, authstack.DeployOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"CreateStack", "WaitForCreate"}, fc.calls)
	assert.Equal(t, map[string]string{"team": "identity", "managed-by": "steps-auth"}, fc.stacks["AuthStack"].Tags)
	assert.Contains(t, fc.bodies["AuthStack"], `"AWS::Cognito::UserPool"`)

	assert.Equal(t, map[string]string{
		authstack.OutputUserPoolID:       "us-east-1_abc",
		authstack.OutputUserPoolClientID: "client123",
	}, out.Values)
	assert.Equal(t, "AuthStack", out.Ref.ResourceIDs[authstack.ResourceStackName])
	assert.Equal(t, "us-east-1_abc", out.Ref.ResourceIDs[authstack.ResourceUserPoolID])
	assert.Equal(t, "client123", out.Ref.ResourceIDs[authstack.ResourceUserPoolClientID])
	assert.Equal(t, authstack.DirectoryName, out.Ref.ResourceIDs[authstack.ResourceUserPoolName])
	assert.NotEmpty(t, out.Ref.ResourceIDs[authstack.ResourceStackID])
	assert.True(t, out.Ref.Owned)
}

func TestProvider_Deploy_Update(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	p := newTestProvider(fc)
	stack := authstack.NewAuthStack("AuthStack", nil)

	_, err := p.Deploy(ctx, stack, authstack.DeployOptions{})
	require.NoError(t, err)

	// Same template and tags: nothing to do.
	fc.calls = nil
	out, err := p.Deploy(ctx, stack, authstack.DeployOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"UpdateStack"}, fc.calls)
	assert.Equal(t, "us-east-1_abc", out.Values[authstack.OutputUserPoolID])

	fc.calls = nil
	_, err = p.Deploy(ctx, stack, authstack.DeployOptions{Tags: map[string]string{"env": "prod"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"UpdateStack", "WaitForUpdate"}, fc.calls)
	assert.Equal(t, "UPDATE_COMPLETE", fc.stacks["AuthStack"].Status)
}

func TestProvider_Deploy_AdoptedStackNotOwned(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	_, err := fc.CreateStack(ctx, StackInput{Name: "AuthStack", TemplateBody: "{}", Tags: map[string]string{"owner": "billing"}})
	require.NoError(t, err)

	registry := authstack.NewRegistry()
	require.NoError(t, registry.Register(newTestProvider(fc)))
	store := authstack.NewMemoryStateStore()
	m := authstack.NewManager(
		authstack.WithRegistry(registry),
		authstack.WithStateStore(store),
		authstack.WithDefaultProvider(authstack.ProviderCloudFormation),
	)

	for i := 0; i < 2; i++ {
		out, err := m.Deploy(ctx, authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{Tags: map[string]string{"env": "prod"}})
		require.NoError(t, err)
		assert.False(t, out.Ref.Owned, "deploy %d", i+1)
		assert.Equal(t, map[string]string{"owner": "billing"}, fc.stacks["AuthStack"].Tags,
			"deploy %d must not tag a stack it did not create", i+1)
	}

	refs, err := store.List(ctx, authstack.ListFilter{})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	fc.calls = nil
	err = m.Destroy(ctx, refs[0], authstack.DestroyOptions{})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryNotOwned))
	assert.Contains(t, fc.stacks, "AuthStack")
	assert.Empty(t, fc.calls)
}

func TestProvider_Deploy_ReplacesRolledBackStack(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	fc.failCreate = true
	_, err := fc.CreateStack(ctx, StackInput{Name: "AuthStack"})
	require.NoError(t, err)
	fc.failCreate = false
	fc.calls = nil

	out, err := newTestProvider(fc).Deploy(ctx, authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"DeleteStack", "WaitForDelete", "CreateStack", "WaitForCreate"}, fc.calls)
	assert.Equal(t, "CREATE_COMPLETE", fc.stacks["AuthStack"].Status)
	assert.True(t, out.Ref.Owned)
}

func TestProvider_Deploy_CreateFails(t *testing.T) {
	fc := newFakeClient()
	fc.failCreate = true

	_, err := newTestProvider(fc).Deploy(context.Background(), authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{})
	require.Error(t, err)

	var e *authstack.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, authstack.ErrCategoryInternal, e.Category)
	assert.Equal(t, "ROLLBACK_COMPLETE", e.Details["status"])
	assert.Contains(t, e.Details["reason"], "StepsUserPool")
}

func TestProvider_Deploy_InProgress(t *testing.T) {
	fc := newFakeClient()
	fc.stacks["AuthStack"] = &StackDescription{Name: "AuthStack", Status: "UPDATE_IN_PROGRESS"}

	_, err := newTestProvider(fc).Deploy(context.Background(), authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryConflict))
	assert.True(t, authstack.IsRetryable(err))
	assert.Empty(t, fc.calls)
}

func TestProvider_Deploy_DryRun(t *testing.T) {
	ctx := context.Background()
	stack := authstack.NewAuthStack("AuthStack", nil)

	out, err := New().Deploy(ctx, stack, authstack.DeployOptions{DryRun: true})
	require.NoError(t, err)
	require.NotNil(t, out.Plan)
	require.Len(t, out.Plan.Actions, 2)
	for _, a := range out.Plan.Actions {
		assert.Equal(t, "create", a.Operation)
	}
	assert.Equal(t, "Would create stack with 2 resources", out.Plan.Summary)
	assert.Equal(t, "AuthStack", out.Ref.ResourceIDs[authstack.ResourceStackName])

	fc := newFakeClient()
	fc.failCreate = true
	_, err = fc.CreateStack(ctx, StackInput{Name: "AuthStack"})
	require.NoError(t, err)
	fc.calls = nil

	out, err = newTestProvider(fc).Deploy(ctx, stack, authstack.DeployOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, out.Plan.Actions, 3)
	assert.Equal(t, "delete", out.Plan.Actions[0].Operation)
	assert.Equal(t, []string{"ValidateTemplate"}, fc.calls)

	fc.templateErr = &smithy.GenericAPIError{Code: "ValidationError", Message: "Template format error"}
	_, err = newTestProvider(fc).Deploy(ctx, stack, authstack.DeployOptions{DryRun: true})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryValidation))
}

func TestProvider_Deploy_NoClient(t *testing.T) {
	_, err := New().Deploy(context.Background(), authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryValidation))
}

func TestProvider_Validate(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	p := newTestProvider(fc)
	stack := authstack.NewAuthStack("AuthStack", nil)

	out, err := p.Deploy(ctx, stack, authstack.DeployOptions{})
	require.NoError(t, err)

	report, err := p.Validate(ctx, out.Ref, authstack.ValidateOptions{Stack: stack})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Summary.TotalChecks)
	assert.True(t, report.IsValid(), "%+v", report.FailedChecks())

	// Drift the live outputs and drop the client resource.
	fc.stacks["AuthStack"].Outputs[authstack.OutputUserPoolClientID] = "client456"
	fc.resources["AuthStack"] = fc.resources["AuthStack"][:1]

	report, err = p.Validate(ctx, out.Ref, authstack.ValidateOptions{Stack: stack})
	require.NoError(t, err)

	failed := map[string]authstack.ValidationCheck{}
	for _, c := range report.FailedChecks() {
		failed[c.ID] = c
	}
	require.Contains(t, failed, "cfn_outputs_current")
	assert.Equal(t, []string{authstack.OutputUserPoolClientID}, failed["cfn_outputs_current"].Evidence["stale"])
	require.Contains(t, failed, "cfn_resources_present")
	assert.Equal(t, []string{authstack.ResourceTypeUserPoolClient}, failed["cfn_resources_present"].Evidence["missing"])
	assert.NotContains(t, failed, "cfn_stack_healthy")
}

func TestProvider_Validate_Unhealthy(t *testing.T) {
	fc := newFakeClient()
	fc.stacks["AuthStack"] = &StackDescription{Name: "AuthStack", Status: "UPDATE_ROLLBACK_FAILED", StatusReason: "boom"}
	ref := authstack.StackRef{ResourceIDs: map[string]string{authstack.ResourceStackName: "AuthStack"}}

	report, err := newTestProvider(fc).Validate(context.Background(), ref, authstack.ValidateOptions{})
	require.NoError(t, err)
	assert.False(t, report.IsValid())

	var healthy authstack.ValidationCheck
	for _, c := range report.Checks {
		if c.ID == "cfn_stack_healthy" {
			healthy = c
		}
	}
	assert.Equal(t, authstack.CheckStatusFailed, healthy.Status)
	assert.Equal(t, "Continue the update rollback, then redeploy", healthy.Remediation)
}

func TestProvider_Validate_MissingStack(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(newFakeClient())

	_, err := p.Validate(ctx, authstack.StackRef{}, authstack.ValidateOptions{})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryValidation))

	ref := authstack.StackRef{ResourceIDs: map[string]string{authstack.ResourceStackName: "Gone"}}
	report, err := p.Validate(ctx, ref, authstack.ValidateOptions{})
	require.NoError(t, err)
	assert.False(t, report.IsValid())
}

func TestProvider_Destroy(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	p := newTestProvider(fc)

	out, err := p.Deploy(ctx, authstack.NewAuthStack("AuthStack", nil), authstack.DeployOptions{})
	require.NoError(t, err)

	fc.calls = nil
	require.NoError(t, p.Destroy(ctx, out.Ref, authstack.DestroyOptions{DryRun: true}))
	assert.Empty(t, fc.calls)

	require.NoError(t, p.Destroy(ctx, out.Ref, authstack.DestroyOptions{}))
	assert.Equal(t, []string{"DeleteStack", "WaitForDelete"}, fc.calls)
	assert.Empty(t, fc.stacks)

	fc.calls = nil
	require.NoError(t, p.Destroy(ctx, out.Ref, authstack.DestroyOptions{}))
	assert.Empty(t, fc.calls)

	err = p.Destroy(ctx, authstack.StackRef{}, authstack.DestroyOptions{})
	assert.True(t, authstack.IsCategory(err, authstack.ErrCategoryValidation))
}

func TestTagsToSDK(t *testing.T) {
	assert.Nil(t, tagsToSDK(nil))

	tags := tagsToSDK(map[string]string{"b": "2", "a": "1"})
	require.Len(t, tags, 2)
	assert.Equal(t, "a", *tags[0].Key)
	assert.Equal(t, "2", *tags[1].Value)
}

func TestIsValidationError(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id X does not exist"}
	assert.True(t, isValidationError(err, "does not exist"))
	assert.False(t, isValidationError(err, "No updates"))
	assert.False(t, isValidationError(errors.New("does not exist"), "does not exist"))
}
