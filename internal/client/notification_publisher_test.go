package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

type capturePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *capturePublisher) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

func TestPublishSelection_Assigned(t *testing.T) {
	pub := &capturePublisher{}
	p := NewNotificationPublisher(pub, zerolog.Nop())

	p.PublishSelection(context.Background(),
		selection.Request{TaskID: "task-1", Amount: 1500},
		selection.Result{
			Outcome:  selection.OutcomeSelected,
			Selected: selection.Candidate{ID: "u1"},
			Method:   selection.MethodWorkloadBalanced,
			Level:    1,
		})

	require.Equal(t, []string{"notifications.ap.approver_assigned"}, pub.subjects)
	var ev NotificationEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, []string{"u1"}, ev.Recipients)
	assert.Equal(t, "task", ev.ResourceType)
	assert.Equal(t, "task-1", ev.ResourceID)
	assert.Equal(t, "WORKLOAD_BALANCED", ev.Payload["selection_method"])
}

func TestPublishSelection_Escalated(t *testing.T) {
	pub := &capturePublisher{}
	p := NewNotificationPublisher(pub, zerolog.Nop())

	p.PublishSelection(context.Background(),
		selection.Request{PaymentRequestID: "pr-1", Amount: 900000},
		selection.Result{
			Outcome:    selection.OutcomeSelected,
			Selected:   selection.Candidate{ID: "ea1"},
			Method:     selection.MethodEscalated,
			Level:      3,
			Escalation: &selection.EscalationDecision{Escalate: true, FromLevel: 2, TargetLevel: 3, Reason: "amount exceeds threshold"},
		})

	require.Equal(t, []string{"notifications.ap.approval_escalated"}, pub.subjects)
	var ev NotificationEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, "payment_request", ev.ResourceType)
	assert.Equal(t, "warning", ev.Severity)
	assert.Equal(t, float64(2), ev.Payload["escalated_from_level"])
}

func TestPublishSelection_SkipsFailures(t *testing.T) {
	pub := &capturePublisher{}
	NewNotificationPublisher(pub, zerolog.Nop()).PublishSelection(context.Background(),
		selection.Request{}, selection.Result{Outcome: selection.OutcomeNoCandidates})
	assert.Empty(t, pub.subjects)
}

func TestPublishSelection_NonFatal(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats: connection closed")}
	p := NewNotificationPublisher(pub, zerolog.Nop())
	assert.NotPanics(t, func() {
		p.PublishSelection(context.Background(), selection.Request{TaskID: "t"},
			selection.Result{Outcome: selection.OutcomeSelected, Selected: selection.Candidate{ID: "u1"}})
	})
	assert.Len(t, pub.subjects, 1)

	var nilPub *NotificationPublisher
	assert.NotPanics(t, func() {
		nilPub.PublishSelection(context.Background(), selection.Request{},
			selection.Result{Outcome: selection.OutcomeSelected, Selected: selection.Candidate{ID: "u1"}})
	})
}
