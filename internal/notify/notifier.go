// Package notify forwards notable agent events to an operator webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/model"
)

// Notification is the webhook payload for a single forwarded event.
type Notification struct {
	Event     string         `json:"event"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// severities maps the event types worth waking an operator for. Everything
// else on the bus stays local.
var severities = map[string]string{
	model.EventSkillFailed:       "warning",
	model.EventIntelFailed:       "high",
	model.EventReinvestFailed:    "high",
	model.EventReinvestCompleted: "info",
}

// Notifier subscribes to the event bus and posts selected events to a
// webhook. An empty webhook URL disables it entirely.
type Notifier struct {
	webhookURL string
	bus        *bus.Bus
	client     *http.Client
}

// New creates a Notifier posting to webhookURL.
func New(webhookURL string, b *bus.Bus) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		bus:        b,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Run consumes bus events until ctx is cancelled. Delivery failures are
// logged and skipped; the notifier never blocks agent progress.
func (n *Notifier) Run(ctx context.Context) error {
	if n.webhookURL == "" {
		zap.L().Info("notify: no webhook configured, notifier disabled")
		return nil
	}

	events, cancel := n.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			severity, wanted := severities[ev.Type]
			if !wanted {
				continue
			}
			if err := n.send(ctx, Notification{
				Event:     ev.Type,
				Severity:  severity,
				Details:   ev.Data,
				Timestamp: ev.Timestamp,
			}); err != nil {
				zap.L().Error("notify: failed to deliver webhook",
					zap.String("event", ev.Type),
					zap.Error(err))
				continue
			}
			zap.L().Debug("notify: webhook delivered",
				zap.String("event", ev.Type),
				zap.String("severity", severity))
		}
	}
}

func (n *Notifier) send(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
