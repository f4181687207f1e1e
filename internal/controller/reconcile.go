package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

func (c *Controller) reconcileLoop(ctx context.Context) {
	c.logger.Info("deployment reconciliation loop started")
	c.runLoop(ctx, "reconcile", c.cfg.ReconcileInterval, false, func(ctx context.Context) {
		if err := c.reconcileDeployments(ctx); err != nil {
			c.logger.Error("error in reconciliation loop", zap.Error(err))
		}
		if err := c.checkDeploymentTimeouts(ctx); err != nil {
			c.logger.Error("error checking deployment timeouts", zap.Error(err))
		}
		if err := c.queueFailedDeploymentsForCleanup(ctx); err != nil {
			c.logger.Error("error queueing failed deployments for cleanup", zap.Error(err))
		}
	})
}

// reconcileDeployments processes the Pushed and Deploying deployments
// FindNonTerminal returns, plus any Healthy/Unhealthy deployment
// explicitly flagged needs_reconcile (e.g. after an env var or custom
// domain change).
func (c *Controller) reconcileDeployments(ctx context.Context) error {
	deployments, err := c.store.FindNonTerminal(ctx, c.cfg.ReconcileBatchSize)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if err := c.reconcileSingleDeployment(ctx, d); err != nil {
			c.logger.Error("failed to reconcile deployment", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
		}
	}

	flagged, err := c.store.FindNeedingReconcile(ctx, c.cfg.ReconcileBatchSize)
	if err != nil {
		return err
	}
	if len(flagged) > 0 {
		c.logger.Info("found deployments with needs_reconcile flag set", zap.Int("count", len(flagged)))
	}
	for _, d := range flagged {
		c.logger.Info("reconciling deployment due to needs_reconcile flag", zap.String("deployment_id", d.DeploymentID), zap.String("status", string(d.Status)))
		if err := c.reconcileSingleDeployment(ctx, d); err != nil {
			c.logger.Error("failed to reconcile deployment", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
		}
	}
	return nil
}

// reconcileSingleDeployment calls the backend and writes back its
// result. The ordering of the active-pointer swap below (query the old
// active deployment, THEN mark the new one Healthy, THEN supersede the
// old one) is load-bearing: querying after marking Healthy would return
// the new deployment itself.
func (c *Controller) reconcileSingleDeployment(ctx context.Context, d *store.Deployment) error {
	if d.Status == statemachine.Terminating || d.Status == statemachine.Cancelling {
		return nil
	}

	if d.Status == statemachine.Deploying && d.DeployingStartedAt != nil {
		if time.Since(*d.DeployingStartedAt) > c.cfg.DeployTimeout {
			c.logger.Warn("deployment timed out in Deploying state, marking Terminating",
				zap.String("deployment_id", d.DeploymentID), zap.Duration("elapsed", time.Since(*d.DeployingStartedAt)))
			if err := c.store.MarkTerminating(ctx, d.ID, statemachine.ReasonFailed); err != nil {
				return err
			}
			return c.store.RecomputeProjectStatus(ctx, d.ProjectID)
		}
	}

	project, err := c.store.GetProject(ctx, d.ProjectID)
	if err != nil {
		return err
	}

	result, err := c.backend.Reconcile(ctx, d, project)
	if err != nil {
		return err
	}
	newStatus := result.Status

	if err := c.store.UpdateStatus(ctx, d.ID, result.Status); err != nil {
		// The deployment may have moved to Terminating/Cancelling
		// concurrently; that's expected, not an error worth propagating.
		c.logger.Debug("failed to update deployment status, deployment may have moved to a cleanup state",
			zap.String("deployment_id", d.DeploymentID), zap.Error(err))
		return nil
	}

	if err := c.store.UpdateControllerMetadata(ctx, d.ID, result.ControllerMetadata); err != nil {
		return err
	}

	switch {
	case result.ErrorMessage != "":
		if err := c.store.MarkFailed(ctx, d.ID, result.ErrorMessage); err != nil {
			return err
		}
	case newStatus == statemachine.Healthy:
		if err := c.promoteToActive(ctx, d, project); err != nil {
			return err
		}
	}

	if err := c.store.RecomputeProjectStatus(ctx, project.ID); err != nil {
		return err
	}

	if d.NeedsReconcile {
		if err := c.store.ClearNeedsReconcile(ctx, d.ID); err != nil {
			return err
		}
		c.logger.Debug("cleared needs_reconcile flag", zap.String("deployment_id", d.DeploymentID))
	}
	return nil
}

// promoteToActive runs the Healthy transition: find the group's current
// active deployment before this one takes over, mark this one Healthy
// and active, then supersede whatever it replaced.
func (c *Controller) promoteToActive(ctx context.Context, d *store.Deployment, project *store.Project) error {
	activeInGroup, err := c.store.FindActiveFor(ctx, d.ProjectID, d.DeploymentGroup)
	if err != nil {
		return err
	}

	if err := c.store.MarkHealthy(ctx, d.ID); err != nil {
		return err
	}

	if activeInGroup != nil && activeInGroup.ID != d.ID && !statemachine.IsTerminal(activeInGroup.Status) {
		c.logger.Info("deployment replacing previous active deployment in group, marking old as Terminating",
			zap.String("new_deployment_id", d.DeploymentID), zap.String("old_deployment_id", activeInGroup.DeploymentID), zap.String("group", d.DeploymentGroup))
		if err := c.store.MarkTerminating(ctx, activeInGroup.ID, statemachine.ReasonSuperseded); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.SupersedeTotal.Inc()
		}
	}

	others, err := c.store.ListDeployments(ctx, project.ID, d.DeploymentGroup)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == d.ID {
			continue
		}
		if !statemachine.IsActive(other.Status) || statemachine.IsTerminal(other.Status) {
			continue
		}
		c.logger.Info("cleaning up non-active deployment in group, marking Terminating",
			zap.String("deployment_id", other.DeploymentID), zap.String("group", d.DeploymentGroup))
		if err := c.store.MarkTerminating(ctx, other.ID, statemachine.ReasonSuperseded); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.SupersedeTotal.Inc()
		}
	}

	return c.store.MarkAsActive(ctx, d.ID, project.ID, d.DeploymentGroup)
}

// checkDeploymentTimeouts fails deployments stuck in a pre-Pushed state
// for too long, the case of a CLI interrupted mid build/push.
func (c *Controller) checkDeploymentTimeouts(ctx context.Context) error {
	threshold := time.Now().Add(-10 * time.Minute)
	stuck, err := c.store.FindStuckPrePushedBefore(ctx, threshold, 50)
	if err != nil {
		return err
	}

	for _, d := range stuck {
		c.logger.Warn("deployment stuck in pre-Pushed state for over 10 minutes, marking Failed",
			zap.String("deployment_id", d.DeploymentID), zap.String("status", string(d.Status)))
		msg := fmt.Sprintf("deployment timed out after 10 minutes in %s state; this usually means the CLI was interrupted during build/push", d.Status)
		if err := c.store.MarkFailed(ctx, d.ID, msg); err != nil {
			c.logger.Error("failed to mark deployment as failed", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
			continue
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			c.logger.Error("failed to update project status", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
		}
	}
	return nil
}

// queueFailedDeploymentsForCleanup moves Failed deployments that may
// still hold infrastructure (e.g. a pod crash after a successful
// reconcile) into Terminating, so the terminate loop cleans them up.
// Deployments already routed through termination carry ReasonFailed and
// are skipped to avoid looping.
func (c *Controller) queueFailedDeploymentsForCleanup(ctx context.Context) error {
	failed, err := c.store.FindByStatus(ctx, statemachine.Failed)
	if err != nil {
		return err
	}

	for _, d := range failed {
		if d.TerminationReason == statemachine.ReasonFailed {
			continue
		}
		c.logger.Info("queueing failed deployment for cleanup", zap.String("deployment_id", d.DeploymentID))
		if err := c.store.MarkTerminating(ctx, d.ID, statemachine.ReasonFailed); err != nil {
			return err
		}
	}
	return nil
}
