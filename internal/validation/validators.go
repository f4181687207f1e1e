// Package validation holds the request-body validators the HTTP surface
// runs before anything reaches the store: struct-tag validation via
// go-playground/validator, plus the handful of Rise-specific formats
// (deployment group names, the CLI's ms|s|m|h expiry suffix grammar,
// image references) that don't fit a plain tag.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-containerregistry/pkg/name"
)

var groupPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9/_-]*[a-z0-9])?$`)

// validate is the single process-wide validator instance; go-playground's
// validator.Validate caches struct metadata internally and is documented
// safe for concurrent use once built, so one instance is shared.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct runs v's `validate` struct tags and returns the first failing
// field as a readable error; callers map this straight to a 400.
func Struct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed validation: %s", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// DeploymentGroup reports whether group is a legal deployment group
// name: spec.md §3 calls it a "short string", default "default"; Rise
// additionally allows preview-branch-shaped names like "preview/123".
func DeploymentGroup(group string) error {
	if group == "" {
		return fmt.Errorf("deployment group must not be empty")
	}
	if len(group) > 63 {
		return fmt.Errorf("deployment group must be 63 characters or fewer")
	}
	if !groupPattern.MatchString(group) {
		return fmt.Errorf("deployment group %q must be lowercase alphanumeric, optionally separated by '-', '_', or '/'", group)
	}
	return nil
}

// ProjectName validates a project's unique name the same way a
// Kubernetes namespace suffix must be valid, since the Kubernetes
// backend derives "project-<name>" directly from it (spec.md §4.4).
func ProjectName(n string) error {
	if n == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if len(n) > 63-len("project-") {
		return fmt.Errorf("project name must be %d characters or fewer", 63-len("project-"))
	}
	if !groupPattern.MatchString(n) || strings.Contains(n, "/") {
		return fmt.Errorf("project name %q must be lowercase alphanumeric, optionally separated by '-' or '_'", n)
	}
	return nil
}

// HTTPPort reports whether port is a legal TCP port for a deployment's
// container to listen on.
func HTTPPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ImageReference validates an image tag or digest reference using
// go-containerregistry's name package — the same dependency the
// Kubernetes backend uses to compute image_tag(deployment, project), so
// a malformed reference is rejected at the HTTP boundary instead of
// surfacing as a cryptic reconcile failure.
func ImageReference(ref string) error {
	if ref == "" {
		return nil
	}
	if _, err := name.ParseReference(ref); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return nil
}

// ImageDigest validates that digest is a well-formed "sha256:<hex>"
// content-addressed reference, per spec.md §3's image_digest invariant.
func ImageDigest(digest string) error {
	if digest == "" {
		return nil
	}
	if _, err := name.NewDigest("example.invalid/x@" + digest); err != nil {
		return fmt.Errorf("invalid image digest %q: %w", digest, err)
	}
	return nil
}

// ParseExpiry parses the CLI's expiry-string grammar (spec.md §6):
// an integer followed by one of ms|s|m|h. An empty string means "no
// expiry" and returns a nil duration with no error.
func ParseExpiry(s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	unit := s[len(s)-1:]
	var multiplier time.Duration
	numPart := s[:len(s)-1]
	switch {
	case strings.HasSuffix(s, "ms"):
		multiplier = time.Millisecond
		numPart = s[:len(s)-2]
	case unit == "s":
		multiplier = time.Second
	case unit == "m":
		multiplier = time.Minute
	case unit == "h":
		multiplier = time.Hour
	default:
		return nil, fmt.Errorf("expiry %q must end in ms, s, m, or h", s)
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("expiry %q must start with a positive integer", s)
	}

	d := time.Duration(n) * multiplier
	return &d, nil
}

const deploymentIDLayout = "20060102-150405"

// FormatDeploymentID renders t as Rise's YYYYMMDD-HHMMSS UTC deployment
// identifier (spec.md §3, §6).
func FormatDeploymentID(t time.Time) string {
	return t.UTC().Format(deploymentIDLayout)
}

// ParseDeploymentID parses a deployment_id string back into a UTC time,
// the inverse of FormatDeploymentID.
func ParseDeploymentID(s string) (time.Time, error) {
	t, err := time.Parse(deploymentIDLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deployment_id %q: %w", s, err)
	}
	return t.UTC(), nil
}
