package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// SelectionLogRepository appends and reads immutable approver selection log
// entries. It implements selection.AuditSink.
type SelectionLogRepository struct {
	db DB
}

// NewSelectionLogRepository creates a new SelectionLogRepository.
func NewSelectionLogRepository(db DB) *SelectionLogRepository {
	return &SelectionLogRepository{db: db}
}

// Append inserts one selection log entry. The table has a delete-prevention
// trigger so this is the only mutation operation exposed.
func (r *SelectionLogRepository) Append(ctx context.Context, rec *selection.AuditRecord) error {
	var metadataJSON []byte
	if rec.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal selection metadata")
		}
	}

	query := `
		INSERT INTO approver_selection_logs
		    (id, task_id, payment_request_id, level,
		     selected_approver_id, requested_approvers, available_approvers,
		     selection_method, payment_amount, approver_workload,
		     metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7,
		        $8, $9, $10,
		        $11)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		nullable(rec.TaskID),
		nullable(rec.PaymentRequestID),
		int(rec.Level),
		rec.SelectedApproverID,
		rec.RequestedApprovers,
		rec.AvailableApprovers,
		string(rec.Method),
		int64(rec.PaymentAmount),
		rec.ApproverWorkload,
		metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append selection log")
	}
	return nil
}

// ListByLevel returns the most recent entries for a level, newest first.
func (r *SelectionLogRepository) ListByLevel(ctx context.Context, level, limit int) ([]*selection.AuditRecord, error) {
	query := `
		SELECT id, task_id, payment_request_id, level,
		       selected_approver_id, requested_approvers, available_approvers,
		       selection_method, payment_amount, approver_workload,
		       metadata, created_at
		FROM approver_selection_logs
		WHERE level = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, level, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list selection logs")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByApprover returns the entries that selected a given approver, newest first.
func (r *SelectionLogRepository) ListByApprover(ctx context.Context, approverID string, limit int) ([]*selection.AuditRecord, error) {
	query := `
		SELECT id, task_id, payment_request_id, level,
		       selected_approver_id, requested_approvers, available_approvers,
		       selection_method, payment_amount, approver_workload,
		       metadata, created_at
		FROM approver_selection_logs
		WHERE selected_approver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, approverID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approver selection logs")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CountSince returns how many selections each method produced since t.
func (r *SelectionLogRepository) CountSince(ctx context.Context, since time.Time) (map[selection.Method]int, error) {
	query := `
		SELECT selection_method, COUNT(*)
		FROM approver_selection_logs
		WHERE created_at >= $1
		GROUP BY selection_method
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count selection logs")
	}
	defer rows.Close()

	counts := make(map[selection.Method]int)
	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan selection count")
		}
		counts[selection.Method(method)] = n
	}
	return counts, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *SelectionLogRepository) scanRows(rows pgx.Rows) ([]*selection.AuditRecord, error) {
	var records []*selection.AuditRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read selection logs")
	}
	return records, nil
}

func (r *SelectionLogRepository) scanRecord(sc rowScanner) (*selection.AuditRecord, error) {
	rec := &selection.AuditRecord{}
	var (
		taskID, paymentRequestID *string
		level                    int
		method                   string
		amount                   int64
		metadataJSON             []byte
	)

	err := sc.Scan(
		&rec.ID,
		&taskID,
		&paymentRequestID,
		&level,
		&rec.SelectedApproverID,
		&rec.RequestedApprovers,
		&rec.AvailableApprovers,
		&method,
		&amount,
		&rec.ApproverWorkload,
		&metadataJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan selection log")
	}

	rec.TaskID = deref(taskID)
	rec.PaymentRequestID = deref(paymentRequestID)
	rec.Level = selection.Level(level)
	rec.Method = selection.Method(method)
	rec.PaymentAmount = selection.Money(amount)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal selection metadata")
		}
	}
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
