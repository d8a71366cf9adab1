package awsclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category authstack.ErrorCategory
	}{
		{"not found", &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, authstack.ErrCategoryNotFound},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredTokenException"}, authstack.ErrCategoryAuth},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, authstack.ErrCategoryPermission},
		{"throttled", &smithy.GenericAPIError{Code: "Throttling"}, authstack.ErrCategoryRateLimit},
		{"limit exceeded", &smithy.GenericAPIError{Code: "LimitExceededException"}, authstack.ErrCategoryRateLimit},
		{"invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameterException"}, authstack.ErrCategoryValidation},
		{"already exists", &smithy.GenericAPIError{Code: "AlreadyExistsException"}, authstack.ErrCategoryConflict},
		{"unknown code", &smithy.GenericAPIError{Code: "InternalErrorException"}, authstack.ErrCategoryInternal},
		{"wrapped", fmt.Errorf("call: %w", &smithy.GenericAPIError{Code: "AccessDeniedException"}), authstack.ErrCategoryPermission},
		{"deadline", context.DeadlineExceeded, authstack.ErrCategoryTimeout},
		{"transport", errors.New("dial tcp: connection refused"), authstack.ErrCategoryNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err, authstack.ProviderCognito, "describe user pool")
			require.Error(t, err)
			assert.True(t, authstack.IsCategory(err, tt.category), "got %v", err)
			assert.Equal(t, authstack.ProviderCognito, authstack.ErrorProvider(err))
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	assert.NoError(t, Classify(nil, authstack.ProviderCognito, "op"))

	orig := authstack.ErrConflict("user pool", "steps-user-pool", "2 pools share this name")
	assert.Same(t, orig, Classify(orig, authstack.ProviderCloudFormation, "op"))
}

func TestAPIErrorMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack does not exist"})
	assert.Equal(t, "Stack does not exist", APIErrorMessage(err))
	assert.Empty(t, APIErrorMessage(errors.New("plain")))
}

func TestSettingsFrom(t *testing.T) {
	logger := zap.NewExample()
	s := SettingsFrom(map[string]interface{}{
		ConfigRegion:  "eu-west-1",
		ConfigProfile: "staging",
		ConfigLogger:  logger,
	})
	assert.Equal(t, "eu-west-1", s.Region)
	assert.Equal(t, "staging", s.Profile)
	assert.Same(t, logger, s.Logger)

	s = SettingsFrom(nil)
	assert.Empty(t, s.Region)
	assert.Empty(t, s.Profile)
	assert.NotNil(t, s.Logger)

	s = SettingsFrom(map[string]interface{}{ConfigRegion: 42})
	assert.Empty(t, s.Region)
}

func TestManagedTags(t *testing.T) {
	base := map[string]string{"team": "identity"}
	tags := ManagedTags(base)

	assert.Equal(t, map[string]string{"team": "identity", ManagedByTag: ManagedByValue}, tags)
	assert.NotContains(t, base, ManagedByTag)
	assert.True(t, IsManaged(tags))
	assert.False(t, IsManaged(base))
	assert.False(t, IsManaged(nil))
	assert.False(t, IsManaged(map[string]string{ManagedByTag: "someone-else"}))
}

type fakeIdentity struct {
	id  *CallerIdentity
	err error
}

func (f *fakeIdentity) GetCallerIdentity(ctx context.Context) (*CallerIdentity, error) {
	return f.id, f.err
}

func TestCallerIdentityValidator(t *testing.T) {
	ctx := context.Background()
	pinned := authstack.NewAuthStack("AuthStack", &authstack.StackProps{
		Env: authstack.Environment{Account: "123456789012"},
	})
	caller := &CallerIdentity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/ci"}

	tests := []struct {
		name   string
		client IdentityClient
		stack  *authstack.Stack
		want   authstack.CheckStatus
	}{
		{"no client", nil, pinned, authstack.CheckStatusSkipped},
		{"credentials fail", &fakeIdentity{err: errors.New("no credentials")}, pinned, authstack.CheckStatusFailed},
		{"account matches", &fakeIdentity{id: caller}, pinned, authstack.CheckStatusPassed},
		{"no pinned account", &fakeIdentity{id: &CallerIdentity{Account: "999999999999"}}, authstack.NewAuthStack("AuthStack", nil), authstack.CheckStatusPassed},
		{"no stack", &fakeIdentity{id: caller}, nil, authstack.CheckStatusPassed},
		{"account mismatch", &fakeIdentity{id: &CallerIdentity{Account: "999999999999"}}, pinned, authstack.CheckStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &CallerIdentityValidator{Client: tt.client}
			check := v.Validate(ctx, authstack.StackRef{}, tt.stack)
			assert.Equal(t, tt.want, check.Status)
			assert.Equal(t, "aws_caller_identity", check.ID)
			assert.Equal(t, authstack.SeverityCritical, check.Severity)
			if tt.want == authstack.CheckStatusFailed {
				assert.NotEmpty(t, check.Remediation)
			}
		})
	}
}
