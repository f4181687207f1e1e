package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/statemachine"
)

func (c *Controller) expirationLoop(ctx context.Context) {
	c.logger.Info("deployment expiration loop started")
	c.runLoop(ctx, "expiration", c.cfg.ExpirationInterval, false, func(ctx context.Context) {
		if err := c.cleanupExpiredDeployments(ctx); err != nil {
			c.logger.Error("error in expiration loop", zap.Error(err))
		}
	})
}

// cleanupExpiredDeployments queues every deployment past its expires_at
// into Terminating with ReasonExpired; the terminate loop assigns the
// final Expired status once backend cleanup succeeds.
func (c *Controller) cleanupExpiredDeployments(ctx context.Context) error {
	expired, err := c.store.FindExpired(ctx, 50)
	if err != nil {
		return err
	}

	for _, d := range expired {
		c.logger.Info("deployment has expired, marking Terminating", zap.String("deployment_id", d.DeploymentID), zap.String("group", d.DeploymentGroup))
		if err := c.store.MarkTerminating(ctx, d.ID, statemachine.ReasonExpired); err != nil {
			return err
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			return err
		}
	}

	if len(expired) > 0 {
		c.logger.Info("cleaned up expired deployments", zap.Int("count", len(expired)))
	}
	return nil
}
