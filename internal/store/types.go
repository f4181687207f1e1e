package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/rise-sh/rise/internal/statemachine"
)

// ProjectStatus is the calculated status of a project, a pure function
// of its deployments' current statuses.
type ProjectStatus string

const (
	ProjectRunning  ProjectStatus = "Running"
	ProjectStopped  ProjectStatus = "Stopped"
	ProjectDeploying ProjectStatus = "Deploying"
	ProjectFailed   ProjectStatus = "Failed"
	ProjectDeleting ProjectStatus = "Deleting"
)

// Visibility is a project's public/private flag.
type Visibility string

const (
	VisibilityPublic  Visibility = "Public"
	VisibilityPrivate Visibility = "Private"
)

// Project is the owning entity for a set of deployments.
type Project struct {
	ID               uuid.UUID
	Name             string
	Visibility       Visibility
	OwnerUserID      *uuid.UUID
	OwnerTeamID      *uuid.UUID
	CalculatedStatus ProjectStatus
	Finalizers       []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Deployment is the central entity of the reconciliation engine.
type Deployment struct {
	ID                 uuid.UUID
	DeploymentID       string
	ProjectID          uuid.UUID
	CreatedByUserID    uuid.UUID
	DeploymentGroup    string
	Status             statemachine.Status
	Image              string
	ImageDigest        string
	HTTPPort           int
	ExpiresAt          *time.Time
	DeployingStartedAt *time.Time
	ControllerMetadata map[string]interface{}
	ErrorMessage       string
	CompletedAt        *time.Time
	TerminationReason  statemachine.TerminationReason
	NeedsReconcile     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CustomDomain is a hostname attached to a project, usable once verified.
type CustomDomain struct {
	Hostname string
	Primary  bool
	Verified bool
}

// EnvVar is a single (key, value) pair, either a project's mutable
// setting or a deployment's immutable snapshot of one.
type EnvVar struct {
	Key         string
	Value       string
	IsSecret    bool
	IsProtected bool
}

// ActiveDeployment is the (project, group) -> deployment pointer.
type ActiveDeployment struct {
	ProjectID       uuid.UUID
	DeploymentGroup string
	DeploymentID    uuid.UUID
	UpdatedAt       time.Time
}

// CreateDeploymentParams is the validated input for creating a new
// deployment row, including the env-var snapshot taken at creation
// time (invariant: never mutated by later project env-var edits).
type CreateDeploymentParams struct {
	ProjectID       uuid.UUID       `validate:"required"`
	CreatedByUserID uuid.UUID       `validate:"required"`
	DeploymentGroup string          `validate:"required"`
	Image           string
	ImageDigest     string
	HTTPPort        int             `validate:"required,min=1,max=65535"`
	ExpiresAt       *time.Time
	EnvVars         []EnvVar
}
