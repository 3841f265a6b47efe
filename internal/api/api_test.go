package api

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

func TestStructRoundTrip(t *testing.T) {
	in := SelectApproverRequest{
		Level:              2,
		Amount:             750000,
		RequestedApprovers: []string{"u1", "u2"},
		TaskID:             "task-1",
		Metadata:           map[string]any{"source": "api"},
	}
	s, err := ToStruct(in)
	require.NoError(t, err)
	assert.Equal(t, float64(2), s.Fields["level"].GetNumberValue())

	var out SelectApproverRequest
	require.NoError(t, FromStruct(s, &out))
	assert.Equal(t, in, out)
}

func TestFromStructNil(t *testing.T) {
	var out SelectApproverRequest
	require.NoError(t, FromStruct(nil, &out))
	assert.Zero(t, out)
}

func TestFromResult(t *testing.T) {
	res := selection.Result{
		Outcome:  selection.OutcomeSelected,
		Selected: selection.Candidate{ID: "ea1", DisplayName: "erin", Role: "ENTERPRISE_ADMIN"},
		Method:   selection.MethodEscalated,
		Workload: 4,
		Level:    3,
		Escalation: &selection.EscalationDecision{
			Escalate: true, FromLevel: 2, TargetLevel: 3, Threshold: 500000, Reason: "over threshold",
		},
		AuditWarning: &selection.AuditWarning{RecordID: "r1", Err: errors.New("db down")},
	}

	out := FromResult(res)
	assert.Equal(t, "ea1", out.ApproverID)
	assert.Equal(t, "ESCALATED", out.Method)
	assert.Equal(t, 3, out.Level)
	require.NotNil(t, out.Escalation)
	assert.Equal(t, 2, out.Escalation.FromLevel)
	assert.Equal(t, int64(500000), out.Escalation.Threshold)
	assert.Contains(t, out.AuditWarning, "db down")
}

func TestToRequest(t *testing.T) {
	req := SelectApproverRequest{Level: 1, Amount: 10, RequestedApprovers: []string{"a"}, PaymentRequestID: "pr"}.ToRequest()
	assert.Equal(t, selection.Level(1), req.Level)
	assert.Equal(t, selection.Money(10), req.Amount)
	assert.Equal(t, []string{"a"}, req.Requested)
	assert.Equal(t, "pr", req.PaymentRequestID)
	assert.Nil(t, req.Pool)
}

func TestFromApproverConfig_SnakeCaseJSON(t *testing.T) {
	limit := int64(25000)
	b, err := json.Marshal(FromApproverConfig(&repository.ApproverConfiguration{
		ID: "c1", UserID: "u1", Level: 2, IsAvailable: true, AutoAssign: false,
		ApprovalLimit: &limit, Priority: 4, IsActive: true,
	}))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, true, fields["is_available"])
	assert.Equal(t, false, fields["auto_assign"])
	assert.Equal(t, float64(25000), fields["approval_limit"])
	assert.NotContains(t, fields, "UserID")
}

func TestFromMethodCounts(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := FromMethodCounts(since, map[selection.Method]int{
		selection.MethodRequested: 2,
		selection.MethodEscalated: 1,
	})
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, since, out.Since)
	assert.Equal(t, map[string]int{"REQUESTED": 2, "WORKLOAD_BALANCED": 0, "ESCALATED": 1}, out.ByMethod)
}

func TestFromApprovalLevels(t *testing.T) {
	out := FromApprovalLevels([]*repository.ApprovalLevel{{ID: "l3", Level: 3, RoleName: "ENTERPRISE_ADMIN"}})
	assert.Equal(t, []ApprovalLevelEntry{{ID: "l3", Level: 3, RoleName: "ENTERPRISE_ADMIN"}}, out)
}
