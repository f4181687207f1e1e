package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

type fakeBackend struct {
	reconcileErr error
	calls        int
}

func (f *fakeBackend) Reconcile(ctx context.Context, d *store.Deployment, p *store.Project) (ReconcileResult, error) {
	f.calls++
	if f.reconcileErr != nil {
		return ReconcileResult{}, f.reconcileErr
	}
	return ReconcileResult{Status: statemachine.Healthy}, nil
}

func (f *fakeBackend) HealthCheck(ctx context.Context, d *store.Deployment) (HealthStatus, error) {
	return HealthStatus{Healthy: true}, nil
}
func (f *fakeBackend) Cancel(ctx context.Context, d *store.Deployment) error    { return nil }
func (f *fakeBackend) Terminate(ctx context.Context, d *store.Deployment) error { return nil }
func (f *fakeBackend) GetDeploymentURLs(ctx context.Context, d *store.Deployment, p *store.Project) (DeploymentURLs, error) {
	return DeploymentURLs{}, nil
}
func (f *fakeBackend) GetProjectURLs(ctx context.Context, p *store.Project, group string) (DeploymentURLs, error) {
	return DeploymentURLs{}, nil
}
func (f *fakeBackend) StreamLogs(ctx context.Context, d *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	return nil, nil
}

func TestWithBreaker_PassesThroughOnSuccess(t *testing.T) {
	fake := &fakeBackend{}
	b := WithBreaker(fake, DefaultBreakerConfig("test"))

	result, err := b.Reconcile(context.Background(), &store.Deployment{}, &store.Project{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Status != statemachine.Healthy {
		t.Errorf("Status = %v, want Healthy", result.Status)
	}
}

func TestWithBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	fake := &fakeBackend{reconcileErr: errors.New("backend unreachable")}
	cfg := DefaultBreakerConfig("test")
	cfg.ConsecutiveTrips = 2
	cfg.Timeout = time.Hour
	b := WithBreaker(fake, cfg)

	for i := 0; i < 2; i++ {
		if _, err := b.Reconcile(context.Background(), &store.Deployment{}, &store.Project{}); err == nil {
			t.Fatalf("Reconcile() call %d: expected error", i)
		}
	}

	_, err := b.Reconcile(context.Background(), &store.Deployment{}, &store.Project{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Reconcile() after trip = %v, want ErrOpenState", err)
	}
	if fake.calls != 2 {
		t.Errorf("underlying backend called %d times, want 2 (breaker should short-circuit the 3rd)", fake.calls)
	}
}
