// Package awsclient holds the AWS plumbing shared by the provisioners:
// configuration loading, caller identity and error classification.
package awsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

// Provider configuration keys.
const (
	ConfigRegion  = "region"
	ConfigProfile = "profile"
	ConfigLogger  = "logger"
)

// ManagedByTag marks resources created by this tool.
const (
	ManagedByTag   = "managed-by"
	ManagedByValue = "steps-auth"
)

// Settings are the connection settings read from a provider config map.
type Settings struct {
	Region  string
	Profile string
	Logger  *zap.Logger
}

// SettingsFrom reads Settings from a provider factory config map. Missing
// keys are left empty and the SDK's default chain fills them in.
func SettingsFrom(cfg map[string]interface{}) Settings {
	s := Settings{Logger: zap.NewNop()}
	if v, ok := cfg[ConfigRegion].(string); ok {
		s.Region = v
	}
	if v, ok := cfg[ConfigProfile].(string); ok {
		s.Profile = v
	}
	if v, ok := cfg[ConfigLogger].(*zap.Logger); ok && v != nil {
		s.Logger = v
	}
	return s
}

// Load resolves an aws.Config for the settings.
func Load(ctx context.Context, s Settings) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(s.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, authstack.ErrAuth("failed to load AWS configuration").WithCause(err)
	}
	return cfg, nil
}

// ManagedTags returns tags with the managed-by marker added.
func ManagedTags(tags map[string]string) map[string]string {
	return authstack.MergeTags(tags, map[string]string{ManagedByTag: ManagedByValue})
}

// IsManaged reports whether tags carry the managed-by marker.
func IsManaged(tags map[string]string) bool {
	return tags[ManagedByTag] == ManagedByValue
}

// CallerIdentity is the principal behind the configured credentials.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// IdentityClient abstracts STS for testing.
type IdentityClient interface {
	GetCallerIdentity(ctx context.Context) (*CallerIdentity, error)
}

type stsIdentityClient struct {
	client *sts.Client
}

// NewIdentityClient wraps an STS client.
func NewIdentityClient(client *sts.Client) IdentityClient {
	return &stsIdentityClient{client: client}
}

func (c *stsIdentityClient) GetCallerIdentity(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, err
	}
	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CallerIdentityValidator checks that credentials resolve and, when the
// stack pins an account, that they belong to it.
type CallerIdentityValidator struct {
	Client IdentityClient
}

func (v *CallerIdentityValidator) ID() string   { return "aws_caller_identity" }
func (v *CallerIdentityValidator) Name() string { return "AWS Caller Identity" }
func (v *CallerIdentityValidator) Description() string {
	return "Checks that AWS credentials resolve to the stack's target account"
}

func (v *CallerIdentityValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) (check authstack.ValidationCheck) {
	start := time.Now()
	check = authstack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    authstack.SeverityCritical,
		Evidence:    make(map[string]interface{}),
	}
	defer func() { check.Duration = time.Since(start) }()

	if v.Client == nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["reason"] = "no STS client configured"
		return check
	}

	id, err := v.Client.GetCallerIdentity(ctx)
	if err != nil {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Configure AWS credentials for the target account"
		return check
	}

	check.Evidence["account"] = id.Account
	check.Evidence["arn"] = id.ARN
	if stack != nil && stack.Props.Env.Account != "" && stack.Props.Env.Account != id.Account {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["expected_account"] = stack.Props.Env.Account
		check.Remediation = fmt.Sprintf("Use credentials for account %s", stack.Props.Env.Account)
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

// Classify wraps an SDK error in a categorized authstack error.
func Classify(err error, provider authstack.ProviderName, op string) error {
	if err == nil {
		return nil
	}

	var ae *authstack.Error
	if errors.As(err, &ae) {
		return err
	}

	var e *authstack.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e = authstack.ErrTimeout(op + " timed out")
	case errors.Is(err, context.Canceled):
		e = authstack.ErrInternal(op + " cancelled")
	default:
		e = classifyAPIError(err, op)
	}
	return e.WithCause(err).WithProvider(provider).WithOperation(op)
}

func classifyAPIError(err error, op string) *authstack.Error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return authstack.ErrNetwork(op + " failed")
	}

	msg := fmt.Sprintf("%s failed: %s", op, apiErr.ErrorCode())
	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException":
		return authstack.NewError(authstack.ErrCategoryNotFound, msg)
	case "NotAuthorizedException", "UnrecognizedClientException", "InvalidClientTokenId",
		"ExpiredToken", "ExpiredTokenException":
		return authstack.ErrAuth(msg)
	case "AccessDenied", "AccessDeniedException", "InsufficientCapabilitiesException":
		return authstack.ErrPermission(msg)
	case "TooManyRequestsException", "Throttling", "ThrottlingException", "LimitExceededException":
		return authstack.ErrRateLimit(msg)
	case "ValidationError", "InvalidParameterException", "InvalidParameterValue":
		return authstack.ErrValidation(msg)
	case "AlreadyExistsException", "UsernameExistsException":
		return authstack.NewError(authstack.ErrCategoryConflict, msg)
	default:
		return authstack.ErrInternal(msg)
	}
}

// APIErrorMessage returns the API error message, or "" if err is not an API error.
func APIErrorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorMessage()
	}
	return ""
}
