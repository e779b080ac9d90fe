package alerting

import (
	"context"
	"fmt"
	"net/http"

	"Kessan/internal/domain/models"
	apphttp "Kessan/pkg/http"
	applogger "Kessan/pkg/logger"
)

// Notifier delivers alert transitions to an external channel.
type Notifier interface {
	Notify(ctx context.Context, event *models.AlertEvent) error
}

// WebhookNotifier posts Slack-compatible payloads to an incoming webhook.
type WebhookNotifier struct {
	client     *apphttp.Client
	webhookURL string
	channel    string
}

func NewWebhookNotifier(client *apphttp.Client, webhookURL, channel string) *WebhookNotifier {
	return &WebhookNotifier{
		client:     client,
		webhookURL: webhookURL,
		channel:    channel,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event *models.AlertEvent) error {
	icon := ":white_check_mark:"
	verb := "resolved"
	if event.State == models.AlertTriggered {
		icon = ":rotating_light:"
		verb = "triggered"
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("%s alert %s %s: %s", icon, event.Alert, verb, event.Message),
	}
	if n.channel != "" {
		payload["channel"] = n.channel
	}

	return n.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:  http.MethodPost,
		URL:     n.webhookURL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, nil)
}

// MultiNotifier fans one event out to every channel, keeping going past
// individual delivery failures.
type MultiNotifier struct {
	logger    *applogger.Logger
	notifiers []Notifier
}

func NewMultiNotifier(lgr *applogger.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{logger: lgr, notifiers: notifiers}
}

func (m *MultiNotifier) Notify(ctx context.Context, event *models.AlertEvent) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			lastErr = err
			m.logger.Error("alert notification failed",
				applogger.String("alert", event.Alert),
				applogger.Error(err))
		}
	}
	return lastErr
}
