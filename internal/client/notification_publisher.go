package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// Event types published under notifications.ap.<event_type>.
const (
	EventApproverAssigned  = "approver_assigned"
	EventApprovalEscalated = "approval_escalated"
)

// Publisher is the subset of *nats.Conn the notification publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes approver selection events to NATS for
// consumption by the be-plt-notifications service.
//
// All publish operations are non-fatal. Errors are logged but never
// propagated, so notification failures never interrupt selection.
type NotificationPublisher struct {
	nats Publisher
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id,omitempty"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNotificationPublisher creates a publisher. A nil conn disables publishing.
func NewNotificationPublisher(conn Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: conn, log: log}
}

// PublishSelection announces a successful selection to the chosen approver.
// Escalated selections are published as approval_escalated.
func (p *NotificationPublisher) PublishSelection(ctx context.Context, req selection.Request, res selection.Result) {
	if !res.OK() {
		return
	}

	eventType := EventApproverAssigned
	severity := "info"
	payload := map[string]any{
		"level":            int(res.Level),
		"selection_method": string(res.Method),
		"payment_amount":   int64(req.Amount),
		"workload":         res.Workload,
	}
	if res.Escalation != nil {
		eventType = EventApprovalEscalated
		severity = "warning"
		payload["escalated_from_level"] = int(res.Escalation.FromLevel)
		payload["escalation_reason"] = res.Escalation.Reason
	}

	resourceType, resourceID := "task", req.TaskID
	if resourceID == "" {
		resourceType, resourceID = "payment_request", req.PaymentRequestID
	}

	p.publish(ctx, &NotificationEvent{
		EventType:    eventType,
		Recipients:   []string{res.Selected.ID},
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IsActionable: true,
		Severity:     severity,
		Category:     "ap_approval",
		Payload:      payload,
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, event *NotificationEvent) {
	if p == nil || p.nats == nil {
		return
	}
	if len(event.Recipients) == 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.ap.%s", event.EventType)
	if err := p.nats.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", event.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", event.ResourceID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
