package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

func (c *Controller) terminationLoop(ctx context.Context) {
	c.logger.Info("deployment termination loop started")
	c.runLoop(ctx, "termination", c.cfg.TerminateInterval, false, func(ctx context.Context) {
		if err := c.processTerminatingDeployments(ctx); err != nil {
			c.logger.Error("error in termination loop", zap.Error(err))
		}
	})
}

// processTerminatingDeployments deprovisions every Terminating
// deployment's infrastructure, then assigns the terminal status its
// termination_reason maps to.
func (c *Controller) processTerminatingDeployments(ctx context.Context) error {
	terminating, err := c.store.FindByStatus(ctx, statemachine.Terminating)
	if err != nil {
		return err
	}

	for _, d := range terminating {
		if err := c.backend.Terminate(ctx, d); err != nil {
			c.logger.Error("failed to terminate deployment", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
			continue
		}
		c.logger.Info("successfully terminated deployment", zap.String("deployment_id", d.DeploymentID))

		if err := c.markTerminal(ctx, d); err != nil {
			return err
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) markTerminal(ctx context.Context, d *store.Deployment) error {
	switch d.TerminationReason {
	case statemachine.ReasonSuperseded:
		return c.store.MarkSuperseded(ctx, d.ID)
	case statemachine.ReasonUserStopped:
		return c.store.MarkStopped(ctx, d.ID)
	case statemachine.ReasonFailed:
		msg := d.ErrorMessage
		if msg == "" {
			msg = "deployment failed"
		}
		if err := c.store.MarkFailed(ctx, d.ID, msg); err != nil {
			return err
		}
		if nerr := c.notify.NotifyFailed(ctx, d.DeploymentID, d.ProjectID.String(), msg); nerr != nil {
			c.logger.Warn("failed to send failure notification", zap.String("deployment_id", d.DeploymentID), zap.Error(nerr))
		}
		return nil
	case statemachine.ReasonExpired:
		return c.store.MarkExpired(ctx, d.ID)
	case statemachine.ReasonCancelled:
		return c.store.MarkCancelled(ctx, d.ID)
	case "":
		return c.store.MarkStopped(ctx, d.ID)
	default:
		return c.store.MarkStopped(ctx, d.ID)
	}
}
