package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rise-sh/rise/internal/statemachine"
)

func TestOperationError(t *testing.T) {
	tests := []struct {
		name     string
		err      *OperationError
		expected string
	}{
		{
			name: "full error",
			err: &OperationError{
				Operation: "connect to database",
				Component: "postgres",
				Resource:  "deployments table",
				Cause:     fmt.Errorf("connection timeout"),
			},
			expected: "failed to connect to database, component: postgres, resource: deployments table, cause: connection timeout",
		},
		{
			name: "minimal error",
			err: &OperationError{
				Operation: "parse config",
				Cause:     fmt.Errorf("invalid yaml"),
			},
			expected: "failed to parse config, cause: invalid yaml",
		},
		{
			name: "no cause",
			err: &OperationError{
				Operation: "validate input",
				Component: "validator",
			},
			expected: "failed to validate input, component: validator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("OperationError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOperationError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := &OperationError{Operation: "test", Cause: cause}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("OperationError.Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := &OperationError{Operation: "test"}
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("OperationError.Unwrap() with no cause = %v, want nil", unwrapped)
	}
}

func TestFailedTo(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		cause    error
		expected string
	}{
		{name: "with cause", action: "connect to database", cause: fmt.Errorf("connection refused"), expected: "failed to connect to database: connection refused"},
		{name: "without cause", action: "start server", cause: nil, expected: "failed to start server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FailedTo(tt.action, tt.cause)
			if err.Error() != tt.expected {
				t.Errorf("FailedTo() = %q, want %q", err.Error(), tt.expected)
			}
		})
	}
}

func TestFailedToWithDetails(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := FailedToWithDetails("reconcile deployment", "kubernetes", "deployments/20260101-000000", cause)

	opErr, ok := err.(*OperationError)
	if !ok {
		t.Fatalf("FailedToWithDetails() should return *OperationError, got %T", err)
	}
	if opErr.Component != "kubernetes" {
		t.Errorf("Component = %q, want %q", opErr.Component, "kubernetes")
	}
	if opErr.Cause != cause {
		t.Errorf("Cause = %v, want %v", opErr.Cause, cause)
	}
}

func TestWrapf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		format   string
		args     []interface{}
		expected string
	}{
		{name: "wrap with message", err: fmt.Errorf("original error"), format: "reconciling %s", args: []interface{}{"d1"}, expected: "reconciling d1: original error"},
		{name: "nil error", err: nil, format: "should not wrap", args: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Wrapf(tt.err, tt.format, tt.args...)
			if tt.err == nil {
				if result != nil {
					t.Errorf("Wrapf(nil, ...) = %v, want nil", result)
				}
				return
			}
			if result.Error() != tt.expected {
				t.Errorf("Wrapf() = %q, want %q", result.Error(), tt.expected)
			}
		})
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name     string
		errors   []error
		expected string
		isNil    bool
	}{
		{name: "no errors", errors: []error{nil, nil}, isNil: true},
		{name: "single error", errors: []error{fmt.Errorf("single error"), nil}, expected: "single error"},
		{name: "multiple errors", errors: []error{fmt.Errorf("error 1"), fmt.Errorf("error 2"), nil}, expected: "multiple errors: error 1; error 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Chain(tt.errors...)
			if tt.isNil {
				if result != nil {
					t.Errorf("Chain() = %v, want nil", result)
				}
				return
			}
			if result.Error() != tt.expected {
				t.Errorf("Chain() = %q, want %q", result.Error(), tt.expected)
			}
		})
	}
}

func TestDatabaseError(t *testing.T) {
	err := DatabaseError("insert deployment", fmt.Errorf("duplicate key"))
	if !strings.Contains(err.Error(), "database") || !strings.Contains(err.Error(), "duplicate key") {
		t.Errorf("DatabaseError() = %q, want it to mention component and cause", err.Error())
	}
}

func TestNetworkError(t *testing.T) {
	err := NetworkError("call backend", "https://k8s.internal", fmt.Errorf("dial tcp: timeout"))
	if !strings.Contains(err.Error(), "https://k8s.internal") {
		t.Errorf("NetworkError() = %q, want it to mention the endpoint", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("image_ref", "must be a valid OCI reference")
	want := "validation failed for field image_ref: must be a valid OCI reference"
	if err.Error() != want {
		t.Errorf("ValidationError() = %q, want %q", err.Error(), want)
	}
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError("DATABASE_URL", "must not be empty")
	want := "configuration error for setting DATABASE_URL: must not be empty"
	if err.Error() != want {
		t.Errorf("ConfigurationError() = %q, want %q", err.Error(), want)
	}
}

func TestTimeoutError(t *testing.T) {
	err := TimeoutError("waiting for deployment healthy", "5m0s")
	want := "timeout while waiting for deployment healthy after 5m0s"
	if err.Error() != want {
		t.Errorf("TimeoutError() = %q, want %q", err.Error(), want)
	}
}

func TestAuthenticationError(t *testing.T) {
	err := AuthenticationError("expired token")
	want := "authentication failed: expired token"
	if err.Error() != want {
		t.Errorf("AuthenticationError() = %q, want %q", err.Error(), want)
	}
}

func TestAuthorizationError(t *testing.T) {
	err := AuthorizationError("stop", "deployments/20260101-000000")
	want := "authorization failed: insufficient permissions to stop deployments/20260101-000000"
	if err.Error() != want {
		t.Errorf("AuthorizationError() = %q, want %q", err.Error(), want)
	}
}

func TestParseError(t *testing.T) {
	err := ParseError("controller_metadata", "json", fmt.Errorf("unexpected end of JSON input"))
	if !strings.Contains(err.Error(), "parse controller_metadata as json") {
		t.Errorf("ParseError() = %q, want it to mention resource and format", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "timeout error", err: fmt.Errorf("request timeout"), expected: true},
		{name: "connection refused", err: fmt.Errorf("connection refused by server"), expected: true},
		{name: "service unavailable", err: fmt.Errorf("service unavailable"), expected: true},
		{name: "permanent error", err: fmt.Errorf("invalid syntax"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIllegalTransitionError(t *testing.T) {
	err := NewIllegalTransition(statemachine.Healthy, statemachine.Pending)

	if !strings.Contains(err.Error(), "Healthy -> Pending") {
		t.Errorf("IllegalTransitionError.Error() = %q, want it to mention Healthy -> Pending", err.Error())
	}
	if !IsIllegalTransition(err) {
		t.Errorf("IsIllegalTransition(err) = false, want true")
	}
	if IsIllegalTransition(fmt.Errorf("some other error")) {
		t.Errorf("IsIllegalTransition on unrelated error = true, want false")
	}
}

func TestDeploymentNotFoundError(t *testing.T) {
	err := NewDeploymentNotFound("20260101-000000")

	if !strings.Contains(err.Error(), "20260101-000000") {
		t.Errorf("DeploymentNotFoundError.Error() = %q, want it to mention the id", err.Error())
	}
	if !IsDeploymentNotFound(err) {
		t.Errorf("IsDeploymentNotFound(err) = false, want true")
	}
	if IsDeploymentNotFound(fmt.Errorf("unrelated")) {
		t.Errorf("IsDeploymentNotFound on unrelated error = true, want false")
	}
}

func TestConstraintAndSerializationSentinels(t *testing.T) {
	if !IsConstraintViolation(Wrapf(ErrConstraintViolation, "insert deployment")) {
		t.Error("expected wrapped ErrConstraintViolation to satisfy IsConstraintViolation")
	}
	if !IsSerializationFailure(Wrapf(ErrSerialization, "update deployment")) {
		t.Error("expected wrapped ErrSerialization to satisfy IsSerializationFailure")
	}
	if IsConstraintViolation(fmt.Errorf("unrelated")) {
		t.Error("IsConstraintViolation on unrelated error = true, want false")
	}
}
