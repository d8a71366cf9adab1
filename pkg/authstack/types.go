package authstack

import (
	"context"
	"encoding/json"
	"time"
)

// Capability represents a feature supported by a provisioner.
type Capability string

const (
	// CapabilityDeploy indicates support for creating or updating a stack.
	CapabilityDeploy Capability = "deploy"
	// CapabilityValidate indicates support for checking a deployed stack.
	CapabilityValidate Capability = "validate"
	// CapabilityDestroy indicates support for tearing a stack down.
	CapabilityDestroy Capability = "destroy"
	// CapabilityDryRun indicates support for dry-run plans.
	CapabilityDryRun Capability = "dry_run"
	// CapabilityTemplate indicates the provisioner deploys a synthesized template.
	CapabilityTemplate Capability = "template"
	// CapabilityDriftCheck indicates the provisioner can compare live resources to the declaration.
	CapabilityDriftCheck Capability = "drift_check"
)

// ProviderName identifies a provisioning engine.
type ProviderName string

const (
	// ProviderCloudFormation deploys the synthesized template as a CloudFormation stack.
	ProviderCloudFormation ProviderName = "cloudformation"
	// ProviderCognito calls the Cognito API directly.
	ProviderCognito ProviderName = "cognito"
)

// Resource ID keys stored on a StackRef.
const (
	ResourceUserPoolID       = "user_pool_id"
	ResourceUserPoolName     = "user_pool_name"
	ResourceUserPoolClientID = "user_pool_client_id"
	ResourceStackName        = "stack_name"
	ResourceStackID          = "stack_id"
)

// StackRef is a stable reference to a deployed stack.
type StackRef struct {
	// ID is a unique identifier for this deployment.
	ID string `json:"id"`

	// StackID is the stack identifier the deployment was made from.
	StackID string `json:"stack_id"`

	// Provider is the engine managing the deployment.
	Provider ProviderName `json:"provider"`

	// ResourceIDs contains engine-assigned identifiers keyed by Resource* constants.
	ResourceIDs map[string]string `json:"resource_ids"`

	// Outputs holds the resolved stack outputs keyed by output name.
	Outputs map[string]string `json:"outputs,omitempty"`

	// RemovalPolicy is the directory's removal policy at deploy time.
	RemovalPolicy RemovalPolicy `json:"removal_policy"`

	// CreatedAt is when this deployment was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Owned indicates the resources were created by this tool and may be destroyed.
	Owned bool `json:"owned"`

	// Version tracks schema version for migration purposes.
	Version int `json:"version"`
}

// String implements fmt.Stringer for StackRef.
func (r StackRef) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// Outputs contains the result of a deploy.
type Outputs struct {
	// Ref is the reference to the deployment.
	Ref StackRef `json:"ref"`

	// Values contains the stack outputs keyed by output name.
	Values map[string]string `json:"values,omitempty"`

	// Plan is set for dry runs.
	Plan *Plan `json:"plan,omitempty"`

	// Instructions contains human-readable follow-up steps.
	Instructions []string `json:"instructions,omitempty"`
}

// Severity indicates the severity level of a validation check.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 2
	}
}

// CheckStatus indicates the result of a validation check.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusSkipped CheckStatus = "skipped"
	CheckStatusUnknown CheckStatus = "unknown"
)

// ValidationCheck represents a single validation check result.
type ValidationCheck struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Status      CheckStatus            `json:"status"`
	Severity    Severity               `json:"severity"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
	Duration    time.Duration          `json:"duration"`
}

// ValidationReport contains the results of validating a deployment.
type ValidationReport struct {
	Ref         StackRef          `json:"ref"`
	Checks      []ValidationCheck `json:"checks"`
	Summary     ValidationSummary `json:"summary"`
	ValidatedAt time.Time         `json:"validated_at"`
}

// ValidationSummary provides aggregate validation statistics.
type ValidationSummary struct {
	TotalChecks   int  `json:"total_checks"`
	PassedChecks  int  `json:"passed_checks"`
	FailedChecks  int  `json:"failed_checks"`
	SkippedChecks int  `json:"skipped_checks"`
	IsValid       bool `json:"is_valid"`
}

// IsValid returns false if any check of error severity or above failed.
func (r *ValidationReport) IsValid() bool {
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed && check.Severity.rank() >= SeverityError.rank() {
			return false
		}
	}
	return true
}

// FailedChecks returns only the checks that failed.
func (r *ValidationReport) FailedChecks() []ValidationCheck {
	var failed []ValidationCheck
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Plan represents a set of planned actions for dry-run mode.
type Plan struct {
	Actions []PlannedAction `json:"actions"`
	Summary string          `json:"summary"`
}

// PlannedAction represents a single action that would be taken.
type PlannedAction struct {
	// Operation is the type of operation (create, update, delete, retain).
	Operation string `json:"operation"`

	// ResourceType is the type of resource affected.
	ResourceType string `json:"resource_type"`

	// ResourceID is the ID of the resource (if known).
	ResourceID string `json:"resource_id,omitempty"`

	Details map[string]interface{} `json:"details,omitempty"`

	// Reversible indicates whether this action can be rolled back.
	Reversible bool `json:"reversible"`
}

// DeployOptions configures a Deploy operation.
type DeployOptions struct {
	// Provider selects the engine. Empty uses the manager default.
	Provider ProviderName

	// DryRun if true, returns a Plan instead of making changes.
	DryRun bool

	// Tags to apply to created resources, merged over the stack's own tags.
	Tags map[string]string

	// Timeout bounds how long to wait for the engine. Zero means no limit.
	Timeout time.Duration
}

// ValidateOptions configures a Validate operation.
type ValidateOptions struct {
	// CheckIDs limits validation to specific checks.
	CheckIDs []string

	// Stack is the expected declaration. Drift checks are skipped when nil.
	Stack *Stack

	// Timeout for the validation operation.
	Timeout time.Duration
}

// DestroyOptions configures a Destroy operation.
type DestroyOptions struct {
	// DryRun if true, reports what would be removed without removing it.
	DryRun bool

	// Force if true, destroy deployments not owned by this tool.
	Force bool

	// Confirm is a callback that must return true to proceed.
	Confirm func(Plan) bool

	// Timeout bounds how long to wait for the engine. Zero means no limit.
	Timeout time.Duration
}

// withTimeout derives a context bounded by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
