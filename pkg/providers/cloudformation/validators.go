package cloudformation

import (
	"context"
	"strings"
	"time"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

var healthyStatuses = map[string]bool{
	"CREATE_COMPLETE":          true,
	"UPDATE_COMPLETE":          true,
	"IMPORT_COMPLETE":          true,
	"UPDATE_ROLLBACK_COMPLETE": true,
}

type stackHealthyValidator struct {
	client Client
	name   string
}

func (v *stackHealthyValidator) ID() string          { return "cfn_stack_healthy" }
func (v *stackHealthyValidator) Name() string        { return "Stack Healthy" }
func (v *stackHealthyValidator) Description() string { return "Checks that the stack exists in a stable state" }

func (v *stackHealthyValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := authstack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    authstack.SeverityCritical,
		Evidence:    map[string]interface{}{"stack_name": v.name},
	}

	desc, err := v.client.DescribeStack(ctx, v.name)
	check.Duration = time.Since(start)
	switch {
	case err != nil:
		check.Status = authstack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Check AWS credentials and region"
		return check
	case desc == nil:
		check.Status = authstack.CheckStatusFailed
		check.Remediation = "Deploy the stack again"
		return check
	}

	check.Evidence["status"] = desc.Status
	if !healthyStatuses[desc.Status] {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["reason"] = desc.StatusReason
		check.Remediation = "Inspect the stack events and redeploy"
		if desc.Status == "UPDATE_ROLLBACK_FAILED" {
			check.Remediation = "Continue the update rollback, then redeploy"
		}
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

type outputsCurrentValidator struct {
	client Client
	name   string
}

func (v *outputsCurrentValidator) ID() string   { return "cfn_outputs_current" }
func (v *outputsCurrentValidator) Name() string { return "Outputs Current" }
func (v *outputsCurrentValidator) Description() string {
	return "Checks that the recorded outputs match the live stack outputs"
}

func (v *outputsCurrentValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := authstack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    authstack.SeverityWarning,
		Evidence:    make(map[string]interface{}),
	}

	desc, err := v.client.DescribeStack(ctx, v.name)
	check.Duration = time.Since(start)
	if err != nil || desc == nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["reason"] = "stack not available"
		return check
	}

	var stale []string
	for name, recorded := range ref.Outputs {
		if desc.Outputs[name] != recorded {
			stale = append(stale, name)
		}
	}
	check.Evidence["live"] = desc.Outputs
	if len(stale) > 0 {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["stale"] = stale
		check.Remediation = "Redeploy to refresh the recorded outputs"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

type resourcesPresentValidator struct {
	client Client
	name   string
}

func (v *resourcesPresentValidator) ID() string   { return "cfn_resources_present" }
func (v *resourcesPresentValidator) Name() string { return "Resources Present" }
func (v *resourcesPresentValidator) Description() string {
	return "Checks that the stack holds a user pool and a user pool client"
}

func (v *resourcesPresentValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := authstack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    authstack.SeverityError,
		Evidence:    make(map[string]interface{}),
	}

	resources, err := v.client.DescribeStackResources(ctx, v.name)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["error"] = err.Error()
		return check
	}

	found := make(map[string]string)
	for _, r := range resources {
		if strings.HasSuffix(r.Status, "_FAILED") || r.Status == "DELETE_COMPLETE" {
			continue
		}
		found[r.Type] = r.PhysicalID
	}
	check.Evidence["resources"] = found

	var missing []string
	for _, t := range []string{authstack.ResourceTypeUserPool, authstack.ResourceTypeUserPoolClient} {
		if found[t] == "" {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["missing"] = missing
		check.Remediation = "Deploy the stack again to restore the missing resources"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}
