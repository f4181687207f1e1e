// Package backend defines the deployment runtime abstraction: the
// Kubernetes and Docker implementations both satisfy Backend, and the
// controller talks to whichever one is configured without knowing which.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

// ReconcileResult carries the outcome of a single Reconcile call: the
// status the deployment should move to, any controller-private progress
// metadata to persist, and an error message when the new status is Failed.
type ReconcileResult struct {
	Status             statemachine.Status
	ControllerMetadata map[string]interface{}
	ErrorMessage       string
}

// HealthStatus is the result of a HealthCheck call against a running
// deployment.
type HealthStatus struct {
	Healthy   bool
	Message   string
	LastCheck time.Time
	PodStatus map[string]interface{}
}

// DeploymentURLs are the externally reachable URLs for a deployment or,
// via GetProjectURLs, a project/group pair that has no deployment yet.
type DeploymentURLs struct {
	DefaultURL       string
	PrimaryURL       string
	CustomDomainURLs []string
}

// Backend is the runtime a deployment is reconciled against. Every method
// takes a context so the controller can bound each call with a deadline;
// implementations must be safe to call concurrently and idempotent under
// repeated calls with the same deployment, since the controller retries
// on every tick until a terminal status is reached.
type Backend interface {
	// Reconcile advances a deployment towards its desired running state.
	// Called repeatedly until the deployment reaches a terminal status.
	Reconcile(ctx context.Context, deployment *store.Deployment, project *store.Project) (ReconcileResult, error)

	// HealthCheck reports whether a Healthy or Unhealthy deployment's
	// workload is currently serving traffic.
	HealthCheck(ctx context.Context, deployment *store.Deployment) (HealthStatus, error)

	// Cancel cleans up a deployment that never provisioned infrastructure
	// (Cancelling status, pre-Pushed).
	Cancel(ctx context.Context, deployment *store.Deployment) error

	// Terminate deprovisions a deployment's infrastructure (Terminating
	// status, post-Pushed).
	Terminate(ctx context.Context, deployment *store.Deployment) error

	// GetDeploymentURLs computes the URLs a specific deployment is
	// reachable at.
	GetDeploymentURLs(ctx context.Context, deployment *store.Deployment, project *store.Project) (DeploymentURLs, error)

	// GetProjectURLs computes the URLs a project/group would be reachable
	// at before any deployment exists, for preview endpoints.
	GetProjectURLs(ctx context.Context, project *store.Project, deploymentGroup string) (DeploymentURLs, error)

	// StreamLogs streams raw log bytes from the deployment's workload.
	// The returned ReadCloser must be closed by the caller.
	StreamLogs(ctx context.Context, deployment *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error)
}
