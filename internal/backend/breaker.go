package backend

import (
	"context"
	"io"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rise-sh/rise/internal/store"
)

// BreakerConfig tunes the circuit breaker wrapping a Backend.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ConsecutiveTrips uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30 seconds half-open.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		ConsecutiveTrips: 5,
	}
}

// WithBreaker wraps a Backend so every call trips a shared
// gobreaker.CircuitBreaker. Once open, calls fail fast with
// gobreaker.ErrOpenState instead of blocking behind the backend's own
// timeout, so an outage in one backend can't stall all six controller
// loops behind slow per-call deadlines.
func WithBreaker(b Backend, cfg BreakerConfig) Backend {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveTrips
		},
	}
	return &breakerBackend{inner: b, cb: gobreaker.NewCircuitBreaker(settings)}
}

type breakerBackend struct {
	inner Backend
	cb    *gobreaker.CircuitBreaker
}

func (b *breakerBackend) Reconcile(ctx context.Context, deployment *store.Deployment, project *store.Project) (ReconcileResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Reconcile(ctx, deployment, project)
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return result.(ReconcileResult), nil
}

func (b *breakerBackend) HealthCheck(ctx context.Context, deployment *store.Deployment) (HealthStatus, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.HealthCheck(ctx, deployment)
	})
	if err != nil {
		return HealthStatus{}, err
	}
	return result.(HealthStatus), nil
}

func (b *breakerBackend) Cancel(ctx context.Context, deployment *store.Deployment) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Cancel(ctx, deployment)
	})
	return err
}

func (b *breakerBackend) Terminate(ctx context.Context, deployment *store.Deployment) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Terminate(ctx, deployment)
	})
	return err
}

func (b *breakerBackend) GetDeploymentURLs(ctx context.Context, deployment *store.Deployment, project *store.Project) (DeploymentURLs, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetDeploymentURLs(ctx, deployment, project)
	})
	if err != nil {
		return DeploymentURLs{}, err
	}
	return result.(DeploymentURLs), nil
}

func (b *breakerBackend) GetProjectURLs(ctx context.Context, project *store.Project, deploymentGroup string) (DeploymentURLs, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetProjectURLs(ctx, project, deploymentGroup)
	})
	if err != nil {
		return DeploymentURLs{}, err
	}
	return result.(DeploymentURLs), nil
}

func (b *breakerBackend) StreamLogs(ctx context.Context, deployment *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.StreamLogs(ctx, deployment, follow, tailLines, timestamps, sinceSeconds)
	})
	if err != nil {
		return nil, err
	}
	return result.(io.ReadCloser), nil
}
