package httpapi

import (
	"context"
	"time"

	"github.com/rise-sh/rise/internal/store"
)

// RegistryCredentials is the shape POST /deployments returns to the CLI
// so it can authenticate an image push (spec.md §6).
type RegistryCredentials struct {
	RegistryURL string     `json:"registry_url"`
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CredentialsProvider is the seam for the out-of-scope registry
// credential adapters (ECR / generic OCI, spec.md §1): the core only
// needs a way to ask "give me push credentials for this project",
// without caring whether they come from an OCI token exchange or a
// long-lived ECR IAM role.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context, project *store.Project) (RegistryCredentials, error)
}

// registryNotConfiguredError is returned by NoopCredentialsProvider, giving
// the 503 "no registry configured" response spec.md §6 requires when no
// concrete adapter has been wired in.
type registryNotConfiguredError struct{}

func (registryNotConfiguredError) Error() string { return "no registry configured" }

// NoopCredentialsProvider is the default CredentialsProvider: it always
// reports no registry configured, so a deployment unconditionally fails
// fast instead of returning a silently-useless credential tuple.
type NoopCredentialsProvider struct{}

func (NoopCredentialsProvider) GetCredentials(ctx context.Context, project *store.Project) (RegistryCredentials, error) {
	return RegistryCredentials{}, registryNotConfiguredError{}
}
