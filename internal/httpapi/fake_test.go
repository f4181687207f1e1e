package httpapi

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rise-sh/rise/internal/backend"
	riseerrors "github.com/rise-sh/rise/internal/errors"
	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

// memStore is a minimal in-memory store.Store for exercising the HTTP
// handlers without a database, modeled on internal/controller's fake of
// the same name. GetProject/GetProjectByName return sql.ErrNoRows on a
// miss, matching what PostgresStore actually wraps its "no such row"
// errors in.
type memStore struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]*store.Deployment
	projects    map[uuid.UUID]*store.Project
}

func newMemStore() *memStore {
	return &memStore{
		deployments: map[uuid.UUID]*store.Deployment{},
		projects:    map[uuid.UUID]*store.Project{},
	}
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
		DeploymentID:    time.Now().UTC().Format("20060102-150405"),
		ProjectID:       params.ProjectID,
		CreatedByUserID: params.CreatedByUserID,
		DeploymentGroup: params.DeploymentGroup,
		Status:          statemachine.Pending,
		Image:           params.Image,
		ImageDigest:     params.ImageDigest,
		HTTPPort:        params.HTTPPort,
		ExpiresAt:       params.ExpiresAt,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
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
		if d.ProjectID == projectID && (group == "" || d.DeploymentGroup == group) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) FindNonTerminal(ctx context.Context, limit int) ([]*store.Deployment, error) { return nil, nil }
func (m *memStore) FindNeedingReconcile(ctx context.Context, limit int) ([]*store.Deployment, error) {
	return nil, nil
}
func (m *memStore) FindByStatus(ctx context.Context, status statemachine.Status) ([]*store.Deployment, error) {
	return nil, nil
}
func (m *memStore) FindStuckPrePushedBefore(ctx context.Context, before time.Time, limit int) ([]*store.Deployment, error) {
	return nil, nil
}
func (m *memStore) FindActiveFor(ctx context.Context, projectID uuid.UUID, group string) (*store.Deployment, error) {
	return nil, nil
}
func (m *memStore) FindExpired(ctx context.Context, limit int) ([]*store.Deployment, error) {
	return nil, nil
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

func (m *memStore) MarkHealthy(ctx context.Context, id uuid.UUID) error       { return nil }
func (m *memStore) MarkUnhealthy(ctx context.Context, id uuid.UUID, msg string) error { return nil }
func (m *memStore) MarkCancelled(ctx context.Context, id uuid.UUID) error     { return nil }
func (m *memStore) MarkStopped(ctx context.Context, id uuid.UUID) error      { return nil }
func (m *memStore) MarkSuperseded(ctx context.Context, id uuid.UUID) error   { return nil }
func (m *memStore) MarkExpired(ctx context.Context, id uuid.UUID) error      { return nil }

func (m *memStore) MarkAsActive(ctx context.Context, deploymentID, projectID uuid.UUID, group string) error {
	return nil
}
func (m *memStore) ClearActiveIfMatches(ctx context.Context, projectID uuid.UUID, group string, deploymentID uuid.UUID) error {
	return nil
}
func (m *memStore) ClearNeedsReconcile(ctx context.Context, id uuid.UUID) error { return nil }
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
		return nil, riseerrors.FailedTo("find project", sql.ErrNoRows)
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
	return nil, riseerrors.FailedTo("find project", sql.ErrNoRows)
}

func (m *memStore) RecomputeProjectStatus(ctx context.Context, projectID uuid.UUID) error { return nil }

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

// fakeBackend is a no-op backend.Backend; the HTTP surface only calls
// StreamLogs directly, the rest belongs to the controller's loops.
type fakeBackend struct {
	logBody string
	logErr  error
}

func (f *fakeBackend) Reconcile(ctx context.Context, d *store.Deployment, p *store.Project) (backend.ReconcileResult, error) {
	return backend.ReconcileResult{}, nil
}
func (f *fakeBackend) HealthCheck(ctx context.Context, d *store.Deployment) (backend.HealthStatus, error) {
	return backend.HealthStatus{}, nil
}
func (f *fakeBackend) Cancel(ctx context.Context, d *store.Deployment) error    { return nil }
func (f *fakeBackend) Terminate(ctx context.Context, d *store.Deployment) error { return nil }
func (f *fakeBackend) GetDeploymentURLs(ctx context.Context, d *store.Deployment, p *store.Project) (backend.DeploymentURLs, error) {
	return backend.DeploymentURLs{}, nil
}
func (f *fakeBackend) GetProjectURLs(ctx context.Context, p *store.Project, group string) (backend.DeploymentURLs, error) {
	return backend.DeploymentURLs{}, nil
}
func (f *fakeBackend) StreamLogs(ctx context.Context, d *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	return io.NopCloser(strings.NewReader(f.logBody)), nil
}

var _ backend.Backend = (*fakeBackend)(nil)

// fakeCreds is a CredentialsProvider that always hands out a fixed
// credential tuple, standing in for a configured registry adapter.
type fakeCreds struct{}

func (fakeCreds) GetCredentials(ctx context.Context, project *store.Project) (RegistryCredentials, error) {
	return RegistryCredentials{RegistryURL: "registry.internal", Username: "rise"}, nil
}
