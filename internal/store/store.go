package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rise-sh/rise/internal/statemachine"
)

// Store is the typed data-access layer the controller and the HTTP
// surface share. Every mutation method is a single SQL transaction;
// cross-row invariants (the active-deployment pointer) are enforced
// inside that same transaction.
type Store interface {
	CreateDeployment(ctx context.Context, params CreateDeploymentParams) (*Deployment, error)
	GetDeployment(ctx context.Context, id uuid.UUID) (*Deployment, error)
	GetDeploymentByDeploymentID(ctx context.Context, projectID uuid.UUID, deploymentID string) (*Deployment, error)
	ListDeployments(ctx context.Context, projectID uuid.UUID, group string) ([]*Deployment, error)

	FindNonTerminal(ctx context.Context, limit int) ([]*Deployment, error)
	FindNeedingReconcile(ctx context.Context, limit int) ([]*Deployment, error)
	FindByStatus(ctx context.Context, status statemachine.Status) ([]*Deployment, error)
	FindStuckPrePushedBefore(ctx context.Context, before time.Time, limit int) ([]*Deployment, error)
	FindActiveFor(ctx context.Context, projectID uuid.UUID, group string) (*Deployment, error)
	FindExpired(ctx context.Context, limit int) ([]*Deployment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus statemachine.Status) error
	MarkTerminating(ctx context.Context, id uuid.UUID, reason statemachine.TerminationReason) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
	MarkHealthy(ctx context.Context, id uuid.UUID) error
	MarkUnhealthy(ctx context.Context, id uuid.UUID, msg string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	MarkStopped(ctx context.Context, id uuid.UUID) error
	MarkSuperseded(ctx context.Context, id uuid.UUID) error
	MarkExpired(ctx context.Context, id uuid.UUID) error

	MarkAsActive(ctx context.Context, deploymentID, projectID uuid.UUID, group string) error
	ClearActiveIfMatches(ctx context.Context, projectID uuid.UUID, group string, deploymentID uuid.UUID) error
	ClearNeedsReconcile(ctx context.Context, id uuid.UUID) error
	UpdateControllerMetadata(ctx context.Context, id uuid.UUID, blob map[string]interface{}) error

	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	RecomputeProjectStatus(ctx context.Context, projectID uuid.UUID) error
	GetProjectCustomDomains(ctx context.Context, projectID uuid.UUID) ([]CustomDomain, error)

	GetDeploymentEnvVars(ctx context.Context, deploymentID uuid.UUID) ([]EnvVar, error)
	GetProjectEnvVars(ctx context.Context, projectID uuid.UUID) ([]EnvVar, error)
}
