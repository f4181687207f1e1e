package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rise-sh/rise/internal/backend"
	riseerrors "github.com/rise-sh/rise/internal/errors"
	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

// memStore is a minimal in-memory store.Store good enough to drive the
// controller's loops without a database. Like PostgresStore, only
// UpdateStatus enforces the legal-transition check; the Mark* family
// writes the status it's given unconditionally, since those calls record
// an outcome the caller already observed rather than request a transition.
type memStore struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]*store.Deployment
	projects    map[uuid.UUID]*store.Project
	active      map[string]uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		deployments: map[uuid.UUID]*store.Deployment{},
		projects:    map[uuid.UUID]*store.Project{},
		active:      map[string]uuid.UUID{},
	}
}

func activeKey(projectID uuid.UUID, group string) string {
	return projectID.String() + "/" + group
}

func (m *memStore) addProject(p *store.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

func (m *memStore) addDeployment(d *store.Deployment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments[d.ID] = d
}

func (m *memStore) CreateDeployment(ctx context.Context, params store.CreateDeploymentParams) (*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &store.Deployment{
		ID:              uuid.New(),
		DeploymentID:    uuid.New().String(),
		ProjectID:       params.ProjectID,
		CreatedByUserID: params.CreatedByUserID,
		DeploymentGroup: params.DeploymentGroup,
		Status:          statemachine.Pending,
		Image:           params.Image,
		ImageDigest:     params.ImageDigest,
		HTTPPort:        params.HTTPPort,
		ExpiresAt:       params.ExpiresAt,
	}
	m.deployments[d.ID] = d
	return d, nil
}

func (m *memStore) GetDeployment(ctx context.Context, id uuid.UUID) (*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return nil, riseerrors.NewDeploymentNotFound(id.String())
	}
	return d, nil
}

func (m *memStore) GetDeploymentByDeploymentID(ctx context.Context, projectID uuid.UUID, deploymentID string) (*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deployments {
		if d.ProjectID == projectID && d.DeploymentID == deploymentID {
			return d, nil
		}
	}
	return nil, riseerrors.NewDeploymentNotFound(deploymentID)
}

func (m *memStore) ListDeployments(ctx context.Context, projectID uuid.UUID, group string) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Deployment
	for _, d := range m.deployments {
		if d.ProjectID == projectID && d.DeploymentGroup == group {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) FindNonTerminal(ctx context.Context, limit int) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Deployment
	for _, d := range m.deployments {
		if !statemachine.IsTerminal(d.Status) {
			out = append(out, d)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) FindNeedingReconcile(ctx context.Context, limit int) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Deployment
	for _, d := range m.deployments {
		if d.NeedsReconcile {
			out = append(out, d)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) FindByStatus(ctx context.Context, status statemachine.Status) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Deployment
	for _, d := range m.deployments {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) FindStuckPrePushedBefore(ctx context.Context, before time.Time, limit int) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Deployment
	for _, d := range m.deployments {
		switch d.Status {
		case statemachine.Pending, statemachine.Building, statemachine.Pushing:
		default:
			continue
		}
		if d.UpdatedAt.Before(before) {
			out = append(out, d)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) FindActiveFor(ctx context.Context, projectID uuid.UUID, group string) (*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[activeKey(projectID, group)]
	if !ok {
		return nil, nil
	}
	return m.deployments[id], nil
}

func (m *memStore) FindExpired(ctx context.Context, limit int) ([]*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*store.Deployment
	for _, d := range m.deployments {
		if d.ExpiresAt != nil && d.ExpiresAt.Before(now) && !statemachine.IsTerminal(d.Status) {
			out = append(out, d)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus statemachine.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	if !statemachine.CanTransition(d.Status, newStatus) {
		return riseerrors.NewIllegalTransition(d.Status, newStatus)
	}
	d.Status = newStatus
	d.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) MarkTerminating(ctx context.Context, id uuid.UUID, reason statemachine.TerminationReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Terminating
	d.TerminationReason = reason
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Failed
	d.ErrorMessage = msg
	return nil
}

func (m *memStore) MarkHealthy(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Healthy
	return nil
}

func (m *memStore) MarkUnhealthy(ctx context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Unhealthy
	d.ErrorMessage = msg
	return nil
}

func (m *memStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Cancelled
	return nil
}

func (m *memStore) MarkStopped(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Stopped
	return nil
}

func (m *memStore) MarkSuperseded(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Superseded
	return nil
}

func (m *memStore) MarkExpired(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.Status = statemachine.Expired
	return nil
}

func (m *memStore) MarkAsActive(ctx context.Context, deploymentID, projectID uuid.UUID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[activeKey(projectID, group)] = deploymentID
	return nil
}

func (m *memStore) ClearActiveIfMatches(ctx context.Context, projectID uuid.UUID, group string, deploymentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := activeKey(projectID, group)
	if m.active[key] == deploymentID {
		delete(m.active, key)
	}
	return nil
}

func (m *memStore) ClearNeedsReconcile(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.NeedsReconcile = false
	return nil
}

func (m *memStore) UpdateControllerMetadata(ctx context.Context, id uuid.UUID, blob map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	d.ControllerMetadata = blob
	return nil
}

func (m *memStore) GetProject(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, errors.New("project not found")
	}
	return p, nil
}

func (m *memStore) GetProjectByName(ctx context.Context, name string) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, errors.New("project not found")
}

func (m *memStore) RecomputeProjectStatus(ctx context.Context, projectID uuid.UUID) error {
	return nil
}

func (m *memStore) GetProjectCustomDomains(ctx context.Context, projectID uuid.UUID) ([]store.CustomDomain, error) {
	return nil, nil
}

func (m *memStore) GetDeploymentEnvVars(ctx context.Context, deploymentID uuid.UUID) ([]store.EnvVar, error) {
	return nil, nil
}

func (m *memStore) GetProjectEnvVars(ctx context.Context, projectID uuid.UUID) ([]store.EnvVar, error) {
	return nil, nil
}

var _ store.Store = (*memStore)(nil)

// fakeBackend lets tests script the backend's response per call without
// standing up Kubernetes or Docker.
type fakeBackend struct {
	mu sync.Mutex

	reconcileResult backend.ReconcileResult
	reconcileErr    error
	reconcileCalls  int

	healthStatus backend.HealthStatus
	healthErr    error

	cancelErr      error
	cancelCalls    int
	terminateErr   error
	terminateCalls int
}

func (f *fakeBackend) Reconcile(ctx context.Context, d *store.Deployment, p *store.Project) (backend.ReconcileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileCalls++
	return f.reconcileResult, f.reconcileErr
}

func (f *fakeBackend) HealthCheck(ctx context.Context, d *store.Deployment) (backend.HealthStatus, error) {
	return f.healthStatus, f.healthErr
}

func (f *fakeBackend) Cancel(ctx context.Context, d *store.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeBackend) Terminate(ctx context.Context, d *store.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateCalls++
	return f.terminateErr
}

func (f *fakeBackend) GetDeploymentURLs(ctx context.Context, d *store.Deployment, p *store.Project) (backend.DeploymentURLs, error) {
	return backend.DeploymentURLs{}, nil
}

func (f *fakeBackend) GetProjectURLs(ctx context.Context, p *store.Project, group string) (backend.DeploymentURLs, error) {
	return backend.DeploymentURLs{}, nil
}

func (f *fakeBackend) StreamLogs(ctx context.Context, d *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	return nil, nil
}

var _ backend.Backend = (*fakeBackend)(nil)
