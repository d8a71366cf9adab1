package authstack

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory categorizes errors for handling and reporting.
type ErrorCategory string

const (
	// ErrCategoryAuth means the engine rejected the credentials.
	ErrCategoryAuth ErrorCategory = "auth"
	// ErrCategoryPermission means the credentials lack an IAM permission.
	ErrCategoryPermission ErrorCategory = "permission"
	// ErrCategoryNotOwned means steps-auth refused to touch resources it did not create.
	ErrCategoryNotOwned ErrorCategory = "not_owned"
	ErrCategoryNetwork  ErrorCategory = "network"
	// ErrCategoryValidation means the stack declaration or a request was rejected.
	ErrCategoryValidation ErrorCategory = "validation"
	ErrCategoryNotFound   ErrorCategory = "not_found"
	// ErrCategoryConflict means a name matched more than one resource, or a
	// stack operation is already running.
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryUnsupported means the engine lacks a capability.
	ErrCategoryUnsupported ErrorCategory = "unsupported"
	ErrCategoryRateLimit   ErrorCategory = "rate_limit"
	ErrCategoryInternal    ErrorCategory = "internal"
	ErrCategoryTimeout     ErrorCategory = "timeout"
)

// DetailHint is the Details key holding a suggested next step.
const DetailHint = "hint"

// Error is a structured error with category and context.
type Error struct {
	Category ErrorCategory

	Message string

	// Provider is the engine where the error occurred.
	Provider ProviderName

	Operation string

	ResourceType string
	ResourceID   string

	Cause error

	Retryable bool

	Details map[string]interface{}
}

// Error implements the error interface. The hint is left out; see Hint.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Provider, e.Category, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same category.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Category == other.Category
	}
	return false
}

// NewError creates a new Error.
func NewError(category ErrorCategory, message string) *Error {
	return &Error{
		Category: category,
		Message:  message,
		Details:  make(map[string]interface{}),
	}
}

// WithProvider sets the provider.
func (e *Error) WithProvider(p ProviderName) *Error {
	e.Provider = p
	return e
}

// WithOperation sets the operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithResource sets the resource type and ID.
func (e *Error) WithResource(resourceType, resourceID string) *Error {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// WithHint records a next step for the operator, such as a flag to pass.
func (e *Error) WithHint(hint string) *Error {
	return e.WithDetail(DetailHint, hint)
}

// Hint returns the hint carried by err, or "".
func Hint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if h, ok := e.Details[DetailHint].(string); ok {
			return h
		}
	}
	return ""
}

// ErrAuth reports credentials the engine would not accept.
func ErrAuth(message string) *Error {
	return NewError(ErrCategoryAuth, message).
		WithHint("Check AWS_PROFILE or aws.profile, and refresh expired SSO sessions")
}

// ErrPermission reports an IAM permission the caller lacks.
func ErrPermission(message string) *Error {
	return NewError(ErrCategoryPermission, message)
}

// ErrNotOwned refuses to destroy a deployment steps-auth did not create.
func ErrNotOwned(ref StackRef, reason string) *Error {
	return NewError(ErrCategoryNotOwned, fmt.Sprintf("deployment %s %s", ref.ID, reason)).
		WithProvider(ref.Provider).
		WithResource("deployment", ref.ID).
		WithHint("Pass --force to destroy it anyway; this deletes the user pool and every user in it")
}

// ErrUnsupported reports an engine without the capability an operation needs.
func ErrUnsupported(provider ProviderName, capability Capability) *Error {
	return NewError(ErrCategoryUnsupported, fmt.Sprintf("engine %s does not support %s", provider, capability)).
		WithProvider(provider).
		WithDetail("capability", string(capability))
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *Error {
	return NewError(ErrCategoryNetwork, message).WithRetryable(true)
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return NewError(ErrCategoryValidation, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, resourceID string) *Error {
	return NewError(ErrCategoryNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceID)).
		WithResource(resourceType, resourceID)
}

// ErrConflict reports a resource that cannot be acted on unambiguously.
func ErrConflict(resourceType, resourceID, reason string) *Error {
	return NewError(ErrCategoryConflict, fmt.Sprintf("%s %s: %s", resourceType, resourceID, reason)).
		WithResource(resourceType, resourceID)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *Error {
	return NewError(ErrCategoryRateLimit, message).WithRetryable(true)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *Error {
	return NewError(ErrCategoryInternal, message)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *Error {
	return NewError(ErrCategoryTimeout, message).WithRetryable(true)
}

// ErrCancelled is returned when a Confirm callback declines an operation.
var ErrCancelled = errors.New("destroy declined at confirmation")

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// ErrorProvider extracts the provider from an error.
func ErrorProvider(err error) ProviderName {
	var e *Error
	if errors.As(err, &e) {
		return e.Provider
	}
	return ""
}

// RollbackError reports a failed deploy together with the outcome of
// undoing the resources it had already created.
type RollbackError struct {
	// OriginalError is the error that triggered rollback.
	OriginalError error

	// RollbackErrors are errors encountered during rollback.
	RollbackErrors []error

	// CleanedResources lists resources that were successfully removed.
	CleanedResources []string

	// OrphanedResources lists resources that could not be removed.
	OrphanedResources []string
}

// Error implements the error interface.
func (e *RollbackError) Error() string {
	msg := fmt.Sprintf("deploy failed and was rolled back: %v", e.OriginalError)
	if len(e.CleanedResources) > 0 {
		msg = fmt.Sprintf("%s; removed %s", msg, strings.Join(e.CleanedResources, ", "))
	}
	if len(e.OrphanedResources) > 0 {
		msg = fmt.Sprintf("%s; left behind %s, delete by hand", msg, strings.Join(e.OrphanedResources, ", "))
	}
	return msg
}

// Unwrap returns the original error.
func (e *RollbackError) Unwrap() error {
	return e.OriginalError
}
