package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/statemachine"
)

func (c *Controller) cancellationLoop(ctx context.Context) {
	c.logger.Info("deployment cancellation loop started")
	c.runLoop(ctx, "cancellation", c.cfg.CancelInterval, false, func(ctx context.Context) {
		if err := c.processCancellingDeployments(ctx); err != nil {
			c.logger.Error("error in cancellation loop", zap.Error(err))
		}
	})
}

// processCancellingDeployments cleans up every Cancelling deployment —
// pre-infrastructure, so Cancel has build artifacts to remove but no
// running workload.
func (c *Controller) processCancellingDeployments(ctx context.Context) error {
	cancelling, err := c.store.FindByStatus(ctx, statemachine.Cancelling)
	if err != nil {
		return err
	}

	for _, d := range cancelling {
		if err := c.backend.Cancel(ctx, d); err != nil {
			c.logger.Error("failed to cancel deployment", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
			continue
		}
		c.logger.Info("successfully cancelled deployment", zap.String("deployment_id", d.DeploymentID))

		if err := c.store.MarkCancelled(ctx, d.ID); err != nil {
			return err
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			return err
		}
	}
	return nil
}
