// Package errors generalizes the OperationError pattern into the control
// plane's error taxonomy: transient, illegal-transition,
// backend-reconcile-failure, backend-terminate-failure, deploy-timeout,
// build-timeout, validation, authorization. Sentinel errors are matched
// with errors.Is/errors.As, never by string comparison.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rise-sh/rise/internal/statemachine"
)

// OperationError is the common shape for any failure the control plane
// needs to log with a cause chain and map to an HTTP status.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error { return e.Cause }

// FailedTo wraps cause as "failed to <action>: <cause>". With a nil cause
// it returns a bare OperationError with no component/resource detail.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return &OperationError{Operation: action}
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated OperationError for callers
// that want to branch on Component/Resource later (e.g. metrics labels).
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{Operation: operation, Component: component, Resource: resource, Cause: cause}
}

// Wrapf mirrors fmt.Errorf(format+": %w", args..., err) but returns nil
// for a nil err, so call sites can unconditionally wrap a possibly-nil
// result without an extra branch.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// Chain joins the non-nil errors in errs into one error, or returns nil
// if every element was nil. Used by loops that keep going after a
// per-item failure but still want to report everything that went wrong.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return errors.New(msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}

func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

func TimeoutError(action, duration string) error {
	return fmt.Errorf("timeout while %s after %s", action, duration)
}

func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

func ParseError(resource, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", resource, format), "parser", "", cause)
}

// IsRetryable is a best-effort classifier for the transient error bucket:
// timeouts, refused or reset connections and unavailable services are
// retried silently by the next tick, everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"timeout", "connection refused", "connection reset", "service unavailable", "temporarily unavailable", "context deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Sentinel kinds for store and backend errors. Callers use errors.Is
// against these values (for the zero-argument kinds) or errors.As against
// the typed wrappers below (IllegalTransitionError, DeploymentNotFoundError).
var (
	// ErrConstraintViolation signals a DB constraint (unique/fk) was hit.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrSerialization signals a transaction was aborted by the database
	// due to a serialization conflict; safe to retry.
	ErrSerialization = errors.New("serialization failure")
)

// DeploymentNotFoundError is returned by store lookups that found no row.
type DeploymentNotFoundError struct {
	ID string
}

func (e *DeploymentNotFoundError) Error() string {
	return fmt.Sprintf("deployment not found: %s", e.ID)
}

func NewDeploymentNotFound(id string) error {
	return &DeploymentNotFoundError{ID: id}
}

func IsDeploymentNotFound(err error) bool {
	var e *DeploymentNotFoundError
	return errors.As(err, &e)
}

// IllegalTransitionError is returned by update_status when the requested
// edge isn't in the state machine's transition table. Callers treat it as
// benign and skip the item: a concurrent loop already moved the
// deployment out from under them.
type IllegalTransitionError struct {
	From statemachine.Status
	To   statemachine.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

func NewIllegalTransition(from, to statemachine.Status) error {
	return &IllegalTransitionError{From: from, To: to}
}

func IsIllegalTransition(err error) bool {
	var e *IllegalTransitionError
	return errors.As(err, &e)
}

func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

func IsSerializationFailure(err error) bool {
	return errors.Is(err, ErrSerialization)
}
