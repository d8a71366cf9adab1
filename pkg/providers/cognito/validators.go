package cognito

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

func newCheck(v authstack.Validator, severity authstack.Severity) authstack.ValidationCheck {
	return authstack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    severity,
		Evidence:    make(map[string]interface{}),
	}
}

type userPoolExistsValidator struct {
	client Client
	poolID string
}

func (v *userPoolExistsValidator) ID() string          { return "cognito_user_pool_exists" }
func (v *userPoolExistsValidator) Name() string        { return "User Pool Exists" }
func (v *userPoolExistsValidator) Description() string { return "Checks if the user pool exists" }

func (v *userPoolExistsValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, authstack.SeverityCritical)
	check.Evidence["user_pool_id"] = v.poolID

	pool, err := v.client.DescribeUserPool(ctx, v.poolID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again to recreate the user pool"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	check.Evidence["name"] = pool.Properties.UserPoolName
	check.Evidence["arn"] = pool.ARN
	return check
}

type clientExistsValidator struct {
	client   Client
	poolID   string
	clientID string
}

func (v *clientExistsValidator) ID() string          { return "cognito_client_exists" }
func (v *clientExistsValidator) Name() string        { return "User Pool Client Exists" }
func (v *clientExistsValidator) Description() string { return "Checks if the user pool client exists" }

func (v *clientExistsValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, authstack.SeverityCritical)
	check.Evidence["client_id"] = v.clientID

	c, err := v.client.DescribeUserPoolClient(ctx, v.poolID, v.clientID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again to recreate the client"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	check.Evidence["name"] = c.Config.Name
	return check
}

type passwordPolicyDriftValidator struct {
	client Client
	poolID string
}

func (v *passwordPolicyDriftValidator) ID() string   { return "cognito_password_policy_drift" }
func (v *passwordPolicyDriftValidator) Name() string { return "Password Policy Drift" }
func (v *passwordPolicyDriftValidator) Description() string {
	return "Compares the live password policy with the declared one"
}

func (v *passwordPolicyDriftValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, authstack.SeverityError)

	pool, err := v.client.DescribeUserPool(ctx, v.poolID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["error"] = err.Error()
		return check
	}

	want := stack.UserPoolProperties(nil).Policies.PasswordPolicy
	got := pool.Properties.Policies.PasswordPolicy
	check.Evidence["expected"] = want
	check.Evidence["actual"] = got

	// Zero validity on either side means the engine default.
	if want.TemporaryPasswordValidityDays == 0 || got.TemporaryPasswordValidityDays == 0 {
		want.TemporaryPasswordValidityDays = 0
		got.TemporaryPasswordValidityDays = 0
	}
	if want != got {
		check.Status = authstack.CheckStatusFailed
		check.Remediation = "Deploy the stack again to restore the password policy"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

type schemaDriftValidator struct {
	client Client
	poolID string
}

func (v *schemaDriftValidator) ID() string   { return "cognito_schema_drift" }
func (v *schemaDriftValidator) Name() string { return "Schema Drift" }
func (v *schemaDriftValidator) Description() string {
	return "Checks that every declared schema attribute exists with the declared settings"
}

func (v *schemaDriftValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, authstack.SeverityError)

	pool, err := v.client.DescribeUserPool(ctx, v.poolID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["error"] = err.Error()
		return check
	}

	problems := SchemaDrift(authstack.SchemaAttributes(stack.Directory), pool.Properties.Schema)
	if len(problems) > 0 {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["problems"] = problems
		check.Remediation = "Schema attributes cannot be changed in place; recreate the user pool"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

// SchemaDrift lists differences between the declared and live schema.
// Declared custom attributes (those carrying a data type) are looked up
// under their "custom:" name, as the engine reports them.
func SchemaDrift(want, got []authstack.SchemaAttribute) []string {
	live := make(map[string]authstack.SchemaAttribute, len(got))
	for _, a := range got {
		live[a.Name] = a
	}

	var problems []string
	for _, w := range want {
		name := w.Name
		if w.AttributeDataType != "" && !strings.HasPrefix(name, authstack.CustomAttributePrefix) {
			name = authstack.CustomAttributePrefix + name
		}

		g, ok := live[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing", name))
			continue
		}
		if w.Mutable != g.Mutable {
			problems = append(problems, fmt.Sprintf("%s: mutable is %t, want %t", name, g.Mutable, w.Mutable))
		}
		if w.Required != nil && (g.Required == nil || *g.Required != *w.Required) {
			problems = append(problems, fmt.Sprintf("%s: required differs", name))
		}
		if w.AttributeDataType != "" && g.AttributeDataType != w.AttributeDataType {
			problems = append(problems, fmt.Sprintf("%s: type is %s, want %s", name, g.AttributeDataType, w.AttributeDataType))
		}
		if wc := w.StringAttributeConstraints; wc != nil {
			gc := g.StringAttributeConstraints
			if gc == nil || gc.MinLength != wc.MinLength || gc.MaxLength != wc.MaxLength {
				problems = append(problems, fmt.Sprintf("%s: string constraints differ", name))
			}
		}
	}
	sort.Strings(problems)
	return problems
}

type clientDriftValidator struct {
	client   Client
	poolID   string
	clientID string
}

func (v *clientDriftValidator) ID() string   { return "cognito_client_drift" }
func (v *clientDriftValidator) Name() string { return "Client Drift" }
func (v *clientDriftValidator) Description() string {
	return "Compares the live client flows and attribute permissions with the declared ones"
}

func (v *clientDriftValidator) Validate(ctx context.Context, ref authstack.StackRef, stack *authstack.Stack) authstack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, authstack.SeverityError)

	c, err := v.client.DescribeUserPoolClient(ctx, v.poolID, v.clientID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = authstack.CheckStatusSkipped
		check.Evidence["error"] = err.Error()
		return check
	}

	want := ClientConfigFor(stack.Client)
	var problems []string
	if !sameSet(want.ExplicitAuthFlows, c.Config.ExplicitAuthFlows) {
		problems = append(problems, "explicit auth flows")
	}
	if !sameSet(want.SupportedIdentityProviders, c.Config.SupportedIdentityProviders) {
		problems = append(problems, "supported identity providers")
	}
	if !sameSet(want.ReadAttributes, c.Config.ReadAttributes) {
		problems = append(problems, "read attributes")
	}
	if !sameSet(want.WriteAttributes, c.Config.WriteAttributes) {
		problems = append(problems, "write attributes")
	}

	if len(problems) > 0 {
		check.Status = authstack.CheckStatusFailed
		check.Evidence["differs"] = problems
		check.Remediation = "Deploy the stack again to restore the client settings"
		return check
	}

	check.Status = authstack.CheckStatusPassed
	return check
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}
