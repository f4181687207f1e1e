// Package controller runs the five background loops that drive every
// deployment from Pending through to a terminal status: reconcile,
// health check, termination, cancellation, and expiration. It is a
// direct structural port of the original Rust DeploymentController.
package controller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/backend"
	"github.com/rise-sh/rise/internal/config"
	"github.com/rise-sh/rise/internal/store"
)

// Controller owns the reconciliation loops. It holds no lifecycle state
// beyond what's needed to start/stop loops; all durable state lives in
// the store.
type Controller struct {
	store   store.Store
	backend backend.Backend
	cfg     config.ControllerConfig
	lease   Lease
	metrics *Metrics
	tracer  trace.Tracer
	notify  Notifier
	logger  *zap.Logger
}

// New builds a Controller. lease, metrics, notify, and logger may be
// nil/zero-valued: a nil lease defaults to NoopLease, a nil notify
// defaults to NoopNotifier, a nil logger defaults to zap.NewNop().
func New(st store.Store, be backend.Backend, cfg config.ControllerConfig, lease Lease, metrics *Metrics, notify Notifier, logger *zap.Logger) *Controller {
	if lease == nil {
		lease = NoopLease
	}
	if notify == nil {
		notify = NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:   st,
		backend: be,
		cfg:     cfg,
		lease:   lease,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/rise-sh/rise/internal/controller"),
		notify:  notify,
		logger:  logger,
	}
}

// Start spawns the five background loops (reconcile fires three
// operations per tick, per reconcileLoop) and returns immediately. Every
// loop exits when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go c.reconcileLoop(ctx)
	go c.healthCheckLoop(ctx)
	go c.terminationLoop(ctx)
	go c.cancellationLoop(ctx)
	go c.expirationLoop(ctx)
}

// runLoop ticks interval, calling fn on every tick. When immediate is
// true, fn also runs once before the first tick, matching the health
// check loop's "check now, then wait" shape — every other loop instead
// waits out the first interval before its first tick.
func (c *Controller) runLoop(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		ok, err := c.lease.TryAcquire(ctx, name, interval)
		if err != nil {
			c.logger.Warn("lease acquisition failed, proceeding without mutual exclusion", zap.String("loop", name), zap.Error(err))
			ok = true
		}
		if !ok {
			if c.metrics != nil {
				c.metrics.LeaseSkippedTotal.WithLabelValues(name).Inc()
			}
			return
		}

		start := time.Now()
		tickCtx, span := c.tracer.Start(ctx, name+".tick")
		fn(tickCtx)
		span.End()
		if c.metrics != nil {
			c.metrics.TickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}

	if immediate {
		run()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
