// Package api defines the wire types shared by the HTTP handler, the gRPC
// service and its client.
package api

import (
	"time"

	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// SelectApproverRequest asks for an approver at a hierarchy level.
type SelectApproverRequest struct {
	Level              int            `json:"level"`
	Amount             int64          `json:"amount"`
	RequestedApprovers []string       `json:"requested_approvers,omitempty"`
	TaskID             string         `json:"task_id,omitempty"`
	PaymentRequestID   string         `json:"payment_request_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Escalation describes an amount-triggered hop to the top tier.
type Escalation struct {
	FromLevel   int    `json:"from_level"`
	TargetLevel int    `json:"target_level"`
	Threshold   int64  `json:"threshold"`
	Reason      string `json:"reason"`
}

// SelectApproverResponse is the chosen approver.
type SelectApproverResponse struct {
	ApproverID   string      `json:"approver_id"`
	DisplayName  string      `json:"display_name"`
	Role         string      `json:"role"`
	Method       string      `json:"selection_method"`
	Workload     int         `json:"workload"`
	Level        int         `json:"level"`
	Escalation   *Escalation `json:"escalation,omitempty"`
	AuditWarning string      `json:"audit_warning,omitempty"`
}

// WorkloadStat is one approver's queue and decision history.
type WorkloadStat struct {
	ApproverID    string  `json:"approver_id"`
	Username      string  `json:"username"`
	Email         string  `json:"email,omitempty"`
	Role          string  `json:"role"`
	PendingTasks  int     `json:"pending_tasks"`
	TotalApproved int     `json:"total_approved"`
	TotalRejected int     `json:"total_rejected"`
	ApprovalRate  float64 `json:"approval_rate"`
}

// WorkloadStatsResponse wraps the stats list.
type WorkloadStatsResponse struct {
	Stats []WorkloadStat `json:"stats"`
}

// SelectionLogEntry is one audit record as returned by the history endpoint.
type SelectionLogEntry struct {
	ID                 string         `json:"id"`
	TaskID             string         `json:"task_id,omitempty"`
	PaymentRequestID   string         `json:"payment_request_id,omitempty"`
	Level              int            `json:"level"`
	SelectedApproverID string         `json:"selected_approver_id"`
	RequestedApprovers []string       `json:"requested_approvers"`
	AvailableApprovers []string       `json:"available_approvers"`
	Method             string         `json:"selection_method"`
	PaymentAmount      int64          `json:"payment_amount"`
	ApproverWorkload   int            `json:"approver_workload"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ApproverConfigRequest creates or replaces one approver's policy at a level.
type ApproverConfigRequest struct {
	UserID        string `json:"user_id"`
	Level         int    `json:"level"`
	IsAvailable   *bool  `json:"is_available,omitempty"`
	AutoAssign    *bool  `json:"auto_assign,omitempty"`
	ApprovalLimit *int64 `json:"approval_limit,omitempty"`
	Priority      int    `json:"priority"`
}

// ApproverConfigResponse is a stored approver policy row.
type ApproverConfigResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Level         int       `json:"level"`
	IsAvailable   bool      `json:"is_available"`
	AutoAssign    bool      `json:"auto_assign"`
	ApprovalLimit *int64    `json:"approval_limit"`
	Priority      int       `json:"priority"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ApprovalLevelEntry maps a tier to its approving role.
type ApprovalLevelEntry struct {
	ID       string `json:"id"`
	Level    int    `json:"level"`
	RoleName string `json:"role_name"`
}

// SelectionSummaryResponse counts selections per method since a point in time.
type SelectionSummaryResponse struct {
	Since    time.Time      `json:"since"`
	Total    int            `json:"total"`
	ByMethod map[string]int `json:"by_method"`
}

// ToRequest converts the wire request into an engine request without a pool.
func (r SelectApproverRequest) ToRequest() selection.Request {
	return selection.Request{
		Requested:        r.RequestedApprovers,
		Amount:           selection.Money(r.Amount),
		Level:            selection.Level(r.Level),
		TaskID:           r.TaskID,
		PaymentRequestID: r.PaymentRequestID,
		Metadata:         r.Metadata,
	}
}

// FromResult converts a successful engine result.
func FromResult(res selection.Result) SelectApproverResponse {
	out := SelectApproverResponse{
		ApproverID:  res.Selected.ID,
		DisplayName: res.Selected.DisplayName,
		Role:        res.Selected.Role,
		Method:      string(res.Method),
		Workload:    res.Workload,
		Level:       int(res.Level),
	}
	if res.Escalation != nil {
		out.Escalation = &Escalation{
			FromLevel:   int(res.Escalation.FromLevel),
			TargetLevel: int(res.Escalation.TargetLevel),
			Threshold:   int64(res.Escalation.Threshold),
			Reason:      res.Escalation.Reason,
		}
	}
	if res.AuditWarning != nil {
		out.AuditWarning = res.AuditWarning.Error()
	}
	return out
}

// FromWorkloadStats converts repository stats.
func FromWorkloadStats(stats []*repository.ApproverWorkloadStats) WorkloadStatsResponse {
	out := WorkloadStatsResponse{Stats: make([]WorkloadStat, 0, len(stats))}
	for _, s := range stats {
		out.Stats = append(out.Stats, WorkloadStat{
			ApproverID:    s.Approver.ID,
			Username:      s.Approver.Username,
			Email:         s.Approver.Email,
			Role:          s.Approver.Role,
			PendingTasks:  s.PendingTasks,
			TotalApproved: s.TotalApproved,
			TotalRejected: s.TotalRejected,
			ApprovalRate:  s.ApprovalRate,
		})
	}
	return out
}

// FromAuditRecords converts audit records.
func FromAuditRecords(recs []*selection.AuditRecord) []SelectionLogEntry {
	out := make([]SelectionLogEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, SelectionLogEntry{
			ID:                 r.ID,
			TaskID:             r.TaskID,
			PaymentRequestID:   r.PaymentRequestID,
			Level:              int(r.Level),
			SelectedApproverID: r.SelectedApproverID,
			RequestedApprovers: r.RequestedApprovers,
			AvailableApprovers: r.AvailableApprovers,
			Method:             string(r.Method),
			PaymentAmount:      int64(r.PaymentAmount),
			ApproverWorkload:   r.ApproverWorkload,
			Metadata:           r.Metadata,
			CreatedAt:          r.CreatedAt,
		})
	}
	return out
}

// FromApproverConfig converts a repository configuration row.
func FromApproverConfig(cfg *repository.ApproverConfiguration) ApproverConfigResponse {
	return ApproverConfigResponse{
		ID:            cfg.ID,
		UserID:        cfg.UserID,
		Level:         cfg.Level,
		IsAvailable:   cfg.IsAvailable,
		AutoAssign:    cfg.AutoAssign,
		ApprovalLimit: cfg.ApprovalLimit,
		Priority:      cfg.Priority,
		IsActive:      cfg.IsActive,
		CreatedAt:     cfg.CreatedAt,
		UpdatedAt:     cfg.UpdatedAt,
	}
}

// FromApprovalLevels converts level rows.
func FromApprovalLevels(levels []*repository.ApprovalLevel) []ApprovalLevelEntry {
	out := make([]ApprovalLevelEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, ApprovalLevelEntry{ID: l.ID, Level: l.Level, RoleName: l.RoleName})
	}
	return out
}

// FromMethodCounts converts per-method selection counts. Every method is
// present, with zero when it produced no selections.
func FromMethodCounts(since time.Time, counts map[selection.Method]int) SelectionSummaryResponse {
	out := SelectionSummaryResponse{
		Since: since,
		ByMethod: map[string]int{
			string(selection.MethodRequested):        0,
			string(selection.MethodWorkloadBalanced): 0,
			string(selection.MethodEscalated):        0,
		},
	}
	for m, n := range counts {
		out.ByMethod[string(m)] = n
		out.Total += n
	}
	return out
}
