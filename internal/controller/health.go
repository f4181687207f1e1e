package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/rise-sh/rise/internal/backend"
	"github.com/rise-sh/rise/internal/statemachine"
)

func (c *Controller) healthCheckLoop(ctx context.Context) {
	c.logger.Info("deployment health check loop started")
	c.runLoop(ctx, "health", c.cfg.HealthInterval, true, func(ctx context.Context) {
		if err := c.checkDeploymentHealth(ctx); err != nil {
			c.logger.Error("error checking deployment health", zap.Error(err))
		}
		if err := c.monitorUnhealthyDeployments(ctx); err != nil {
			c.logger.Error("error monitoring unhealthy deployments", zap.Error(err))
		}
	})
}

// checkDeploymentHealth runs HealthCheck against every Healthy
// deployment. A failing check demotes it to Unhealthy, never straight to
// Failed — it may still recover.
func (c *Controller) checkDeploymentHealth(ctx context.Context) error {
	healthy, err := c.store.FindByStatus(ctx, statemachine.Healthy)
	if err != nil {
		return err
	}

	for _, d := range healthy {
		health, err := c.backend.HealthCheck(ctx, d)
		if err != nil {
			c.logger.Warn("health check error", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
			continue
		}

		metadata := mergeHealthMetadata(d.ControllerMetadata, health)
		if err := c.store.UpdateControllerMetadata(ctx, d.ID, metadata); err != nil {
			return err
		}

		if health.Healthy {
			continue
		}

		msg := health.Message
		if msg == "" {
			msg = "health check failed"
		}
		c.logger.Warn("deployment is now unhealthy", zap.String("deployment_id", d.DeploymentID), zap.String("reason", msg))
		if err := c.store.MarkUnhealthy(ctx, d.ID, msg); err != nil {
			return err
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

// monitorUnhealthyDeployments re-checks every Unhealthy deployment.
// Deployments stay Unhealthy indefinitely until they recover on their
// own or are explicitly terminated elsewhere — this loop never fails one.
func (c *Controller) monitorUnhealthyDeployments(ctx context.Context) error {
	unhealthy, err := c.store.FindByStatus(ctx, statemachine.Unhealthy)
	if err != nil {
		return err
	}

	for _, d := range unhealthy {
		health, err := c.backend.HealthCheck(ctx, d)
		if err != nil {
			c.logger.Warn("health check error for unhealthy deployment", zap.String("deployment_id", d.DeploymentID), zap.Error(err))
			continue
		}

		if !health.Healthy {
			continue
		}

		c.logger.Info("deployment has recovered, marking Healthy", zap.String("deployment_id", d.DeploymentID))
		if err := c.store.MarkHealthy(ctx, d.ID); err != nil {
			return err
		}
		if err := c.store.RecomputeProjectStatus(ctx, d.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

// mergeHealthMetadata records the latest health check under "health" (and
// "pod_status" when the backend reported one) in a copy of metadata,
// leaving every other key untouched.
func mergeHealthMetadata(metadata map[string]interface{}, health backend.HealthStatus) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	out["health"] = map[string]interface{}{
		"healthy":    health.Healthy,
		"message":    health.Message,
		"last_check": health.LastCheck.Format("2006-01-02T15:04:05Z07:00"),
	}
	if health.PodStatus != nil {
		out["pod_status"] = health.PodStatus
	}
	return out
}
