package controller

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/rise-sh/rise/internal/config"
)

// Notifier is told about deployments the terminate loop marks Failed.
// It is never load-bearing for the state machine: a Notifier error is
// logged and otherwise ignored.
type Notifier interface {
	NotifyFailed(ctx context.Context, deploymentID, projectName, reason string) error
}

// NoopNotifier is used when config.Slack.Enabled is false.
type NoopNotifier struct{}

func (NoopNotifier) NotifyFailed(ctx context.Context, deploymentID, projectName, reason string) error {
	return nil
}

// SlackNotifier posts a one-line message to a configured Slack webhook
// when a deployment is marked Failed, purely as observability.
type SlackNotifier struct {
	webhookURL string
	channel    string
}

// NewSlackNotifier builds a Notifier from config, or NoopNotifier when
// Slack isn't enabled.
func NewSlackNotifier(cfg config.SlackConfig) Notifier {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return NoopNotifier{}
	}
	return &SlackNotifier{webhookURL: cfg.WebhookURL, channel: cfg.Channel}
}

func (n *SlackNotifier) NotifyFailed(ctx context.Context, deploymentID, projectName, reason string) error {
	text := fmt.Sprintf(":x: deployment `%s` in project `%s` failed: %s", deploymentID, projectName, reason)
	msg := &slack.WebhookMessage{Text: text}
	if n.channel != "" {
		msg.Channel = n.channel
	}
	return slack.PostWebhookContext(ctx, n.webhookURL, msg)
}
