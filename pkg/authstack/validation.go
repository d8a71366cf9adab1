package authstack

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Validator performs one check on a deployment.
type Validator interface {
	// ID returns the unique identifier for this validator.
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Description returns what this validator checks.
	Description() string

	// Validate performs the check. stack is the expected declaration and
	// may be nil, in which case declaration checks are skipped.
	Validate(ctx context.Context, ref StackRef, stack *Stack) ValidationCheck
}

// ValidatorRegistry holds registered validators.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[string]Validator
	order      []string
	byProvider map[ProviderName][]string
}

// NewValidatorRegistry creates a new validator registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		validators: make(map[string]Validator),
		byProvider: make(map[ProviderName][]string),
	}
}

// Register adds a validator. With no providers the validator applies to
// every deployment.
func (r *ValidatorRegistry) Register(v Validator, providers ...ProviderName) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.validators[v.ID()]; !exists {
		r.order = append(r.order, v.ID())
	}
	r.validators[v.ID()] = v
	if len(providers) == 0 {
		providers = []ProviderName{""}
	}
	for _, p := range providers {
		r.byProvider[p] = append(r.byProvider[p], v.ID())
	}
}

// Get retrieves a validator by ID.
func (r *ValidatorRegistry) Get(id string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[id]
	return v, ok
}

// IDs returns every registered validator ID in registration order.
func (r *ValidatorRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// GetForProvider returns the validators that apply to deployments made by p,
// including the provider-independent ones.
func (r *ValidatorRegistry) GetForProvider(p ProviderName) []Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var validators []Validator
	for _, key := range []ProviderName{"", p} {
		for _, id := range r.byProvider[key] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if v, ok := r.validators[id]; ok {
				validators = append(validators, v)
			}
		}
	}
	return validators
}

// DefaultValidators is the global validator registry. It starts with the
// declaration checks.
var DefaultValidators = newDefaultValidators()

func newDefaultValidators() *ValidatorRegistry {
	r := NewValidatorRegistry()
	r.Register(&RequiredAttributesValidator{})
	r.Register(&VerificationNotWritableValidator{})
	r.Register(&CustomAttributeBoundsValidator{})
	r.Register(&OutputsRecordedValidator{})
	return r
}

func newCheck(v Validator, severity Severity) ValidationCheck {
	return ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    severity,
		Evidence:    make(map[string]interface{}),
	}
}

func skipped(check ValidationCheck, start time.Time, reason string) ValidationCheck {
	check.Status = CheckStatusSkipped
	check.Evidence["reason"] = reason
	check.Duration = time.Since(start)
	return check
}

// RequiredAttributesValidator checks that given name, family name and
// email are declared required on the directory.
type RequiredAttributesValidator struct{}

func (v *RequiredAttributesValidator) ID() string { return "required_attributes" }

func (v *RequiredAttributesValidator) Name() string { return "Required Attributes" }

func (v *RequiredAttributesValidator) Description() string {
	return "Checks that given_name, family_name and email are required at sign-up"
}

func (v *RequiredAttributesValidator) Validate(ctx context.Context, ref StackRef, stack *Stack) ValidationCheck {
	start := time.Now()
	check := newCheck(v, SeverityError)
	if stack == nil || stack.Directory == nil {
		return skipped(check, start, "no declaration supplied")
	}

	required := stack.Directory.StandardAttributes.Required()
	check.Evidence["required"] = required

	have := make(map[string]bool, len(required))
	for _, name := range required {
		have[name] = true
	}
	var missing []string
	for _, name := range []string{AttrGivenName, AttrFamilyName, AttrEmail} {
		if !have[name] {
			missing = append(missing, name)
		}
	}

	check.Duration = time.Since(start)
	if len(missing) > 0 {
		check.Status = CheckStatusFailed
		check.Evidence["missing"] = missing
		check.Remediation = "Mark the missing standard attributes as required on the directory"
		return check
	}
	check.Status = CheckStatusPassed
	return check
}

// VerificationNotWritableValidator checks that the client cannot write the
// email_verified and phone_number_verified flags.
type VerificationNotWritableValidator struct{}

func (v *VerificationNotWritableValidator) ID() string { return "verification_not_writable" }

func (v *VerificationNotWritableValidator) Name() string { return "Verification Flags Read-Only" }

func (v *VerificationNotWritableValidator) Description() string {
	return "Checks that the client write set excludes the verification flags"
}

func (v *VerificationNotWritableValidator) Validate(ctx context.Context, ref StackRef, stack *Stack) ValidationCheck {
	start := time.Now()
	check := newCheck(v, SeverityCritical)
	if stack == nil || stack.Client == nil {
		return skipped(check, start, "no declaration supplied")
	}

	var writable []string
	for _, name := range VerificationAttributes() {
		if stack.Client.WriteAttributes.Has(name) {
			writable = append(writable, name)
		}
	}

	check.Duration = time.Since(start)
	if len(writable) > 0 {
		check.Status = CheckStatusFailed
		check.Evidence["writable"] = writable
		check.Remediation = "Remove the verification flags from the client write attributes"
		return check
	}
	check.Status = CheckStatusPassed
	return check
}

// CustomAttributeBoundsValidator checks the tenant identifier length bounds
// and that every custom attribute the client references is declared.
type CustomAttributeBoundsValidator struct{}

func (v *CustomAttributeBoundsValidator) ID() string { return "custom_attribute_bounds" }

func (v *CustomAttributeBoundsValidator) Name() string { return "Custom Attribute Bounds" }

func (v *CustomAttributeBoundsValidator) Description() string {
	return "Checks custom attribute constraints and client references"
}

func (v *CustomAttributeBoundsValidator) Validate(ctx context.Context, ref StackRef, stack *Stack) ValidationCheck {
	start := time.Now()
	check := newCheck(v, SeverityError)
	if stack == nil || stack.Directory == nil {
		return skipped(check, start, "no declaration supplied")
	}

	var problems []string
	tenant, ok := stack.Directory.CustomAttributes[CustomAttrTenantID]
	switch {
	case !ok:
		problems = append(problems, fmt.Sprintf("%s is not declared", CustomAttrTenantID))
	case tenant.StringConstraints == nil:
		problems = append(problems, fmt.Sprintf("%s has no length bounds", CustomAttrTenantID))
	default:
		check.Evidence["tenant_min_len"] = tenant.StringConstraints.MinLen
		check.Evidence["tenant_max_len"] = tenant.StringConstraints.MaxLen
		if tenant.StringConstraints.MinLen > tenant.StringConstraints.MaxLen {
			problems = append(problems, fmt.Sprintf("%s min_len exceeds max_len", CustomAttrTenantID))
		}
	}

	if stack.Client != nil {
		declared := make(map[string]bool)
		for _, name := range stack.Directory.CustomAttributeNames() {
			declared[name] = true
		}
		for _, name := range stack.Client.ReadAttributes.Custom() {
			if !declared[name] {
				problems = append(problems, fmt.Sprintf("client reads undeclared %s", name))
			}
		}
	}

	check.Duration = time.Since(start)
	if len(problems) > 0 {
		sort.Strings(problems)
		check.Status = CheckStatusFailed
		check.Evidence["problems"] = problems
		check.Remediation = "Fix the custom attribute declarations on the directory"
		return check
	}
	check.Status = CheckStatusPassed
	return check
}

// OutputsRecordedValidator checks that a deployment recorded a value for
// every stable output name.
type OutputsRecordedValidator struct{}

func (v *OutputsRecordedValidator) ID() string { return "outputs_recorded" }

func (v *OutputsRecordedValidator) Name() string { return "Outputs Recorded" }

func (v *OutputsRecordedValidator) Description() string {
	return "Checks that the deployment exported the directory and client identifiers"
}

func (v *OutputsRecordedValidator) Validate(ctx context.Context, ref StackRef, stack *Stack) ValidationCheck {
	start := time.Now()
	check := newCheck(v, SeverityWarning)

	names := []string{OutputUserPoolID, OutputUserPoolClientID}
	if stack != nil {
		names = stack.OutputNames()
	}

	var missing []string
	for _, name := range names {
		if ref.Outputs[name] == "" {
			missing = append(missing, name)
		}
	}

	check.Evidence["outputs"] = ref.Outputs
	check.Duration = time.Since(start)
	if len(missing) > 0 {
		check.Status = CheckStatusFailed
		check.Evidence["missing"] = missing
		check.Remediation = "Redeploy the stack to refresh its outputs"
		return check
	}
	check.Status = CheckStatusPassed
	return check
}

// RunValidation executes a set of validators and returns a report.
func RunValidation(ctx context.Context, ref StackRef, stack *Stack, validators []Validator) *ValidationReport {
	report := &ValidationReport{
		Ref:         ref,
		Checks:      make([]ValidationCheck, 0, len(validators)),
		ValidatedAt: time.Now(),
	}

	for _, v := range validators {
		report.Checks = append(report.Checks, v.Validate(ctx, ref, stack))
	}

	report.summarize()
	return report
}

// Merge appends other's checks to r and recomputes the summary.
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}
	r.Checks = append(r.Checks, other.Checks...)
	r.summarize()
}

// Filter keeps only the checks whose IDs are listed. An empty list keeps all.
func (r *ValidationReport) Filter(ids []string) {
	if len(ids) == 0 {
		return
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	kept := r.Checks[:0]
	for _, c := range r.Checks {
		if want[c.ID] {
			kept = append(kept, c)
		}
	}
	r.Checks = kept
	r.summarize()
}

func (r *ValidationReport) summarize() {
	r.Summary = ValidationSummary{}
	for _, check := range r.Checks {
		switch check.Status {
		case CheckStatusPassed:
			r.Summary.PassedChecks++
		case CheckStatusFailed:
			r.Summary.FailedChecks++
		case CheckStatusSkipped:
			r.Summary.SkippedChecks++
		}
		r.Summary.TotalChecks++
	}
	r.Summary.IsValid = r.IsValid()
}
