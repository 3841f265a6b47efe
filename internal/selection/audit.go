package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditRecord is one immutable row describing a selection decision.
type AuditRecord struct {
	ID                 string         `json:"id"`
	TaskID             string         `json:"task_id,omitempty"`
	PaymentRequestID   string         `json:"payment_request_id,omitempty"`
	Level              Level          `json:"level"`
	SelectedApproverID string         `json:"selected_approver_id"`
	RequestedApprovers []string       `json:"requested_approvers"`
	AvailableApprovers []string       `json:"available_approvers"`
	Method             Method         `json:"selection_method"`
	PaymentAmount      Money          `json:"payment_amount"`
	ApproverWorkload   int            `json:"approver_workload"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// AuditSink appends audit records. Implementations must support concurrent
// appends.
type AuditSink interface {
	Append(ctx context.Context, rec *AuditRecord) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, rec *AuditRecord) error

func (f AuditSinkFunc) Append(ctx context.Context, rec *AuditRecord) error {
	return f(ctx, rec)
}

// AuditWarning reports a failed, non-fatal audit append.
type AuditWarning struct {
	RecordID string
	Err      error
}

func (w *AuditWarning) Error() string {
	return "selection audit write failed: " + w.Err.Error()
}

func (w *AuditWarning) Unwrap() error {
	return w.Err
}

// AuditRecorder writes audit records on a best-effort basis.
type AuditRecorder struct {
	sink AuditSink
	log  zerolog.Logger
}

// NewAuditRecorder wraps sink. A nil sink discards records.
func NewAuditRecorder(sink AuditSink, log zerolog.Logger) *AuditRecorder {
	return &AuditRecorder{sink: sink, log: log}
}

// Record appends rec. Failures, including a panicking sink, are logged and
// returned as a warning value; they never become an error for the caller.
func (r *AuditRecorder) Record(ctx context.Context, rec *AuditRecord) (warning *AuditWarning) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RequestedApprovers == nil {
		rec.RequestedApprovers = []string{}
	}
	if r.sink == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			warning = r.warn(rec, fmt.Errorf("audit sink panic: %v", p))
		}
	}()
	if err := r.sink.Append(ctx, rec); err != nil {
		return r.warn(rec, err)
	}
	return nil
}

func (r *AuditRecorder) warn(rec *AuditRecord, err error) *AuditWarning {
	r.log.Warn().Err(err).
		Str("record_id", rec.ID).
		Int("hierarchy_level", int(rec.Level)).
		Str("selected_approver_id", rec.SelectedApproverID).
		Str("selection_method", string(rec.Method)).
		Msg("Failed to write approver selection log entry")
	return &AuditWarning{RecordID: rec.ID, Err: err}
}
