// Package sqlite is a file-backed selection log for running without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so created_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SelectionLog stores selection audit records in SQLite. It implements
// selection.AuditSink.
type SelectionLog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway log.
func Open(path string) (*SelectionLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	return NewSelectionLog(db)
}

// NewSelectionLog wraps db and creates the table if missing.
func NewSelectionLog(db *sql.DB) (*SelectionLog, error) {
	s := &SelectionLog{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate selection log: %w", err)
	}
	return s, nil
}

func (s *SelectionLog) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS approver_selection_logs (
		id TEXT PRIMARY KEY,
		task_id TEXT,
		payment_request_id TEXT,
		level INTEGER NOT NULL,
		selected_approver_id TEXT NOT NULL,
		requested_approvers JSON NOT NULL,
		available_approvers JSON NOT NULL,
		selection_method TEXT NOT NULL,
		payment_amount INTEGER NOT NULL DEFAULT 0,
		approver_workload INTEGER NOT NULL DEFAULT 0,
		metadata JSON,
		created_at TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying database.
func (s *SelectionLog) Close() error {
	return s.db.Close()
}

// Append inserts rec, stamping CreatedAt.
func (s *SelectionLog) Append(ctx context.Context, rec *selection.AuditRecord) error {
	requested, err := json.Marshal(nonNil(rec.RequestedApprovers))
	if err != nil {
		return fmt.Errorf("marshal requested approvers: %w", err)
	}
	available, err := json.Marshal(nonNil(rec.AvailableApprovers))
	if err != nil {
		return fmt.Errorf("marshal available approvers: %w", err)
	}
	var metadata sql.NullString
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	createdAt := s.now().UTC()
	query := `INSERT INTO approver_selection_logs (
		id, task_id, payment_request_id, level, selected_approver_id,
		requested_approvers, available_approvers, selection_method,
		payment_amount, approver_workload, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, nullString(rec.TaskID), nullString(rec.PaymentRequestID), int(rec.Level),
		rec.SelectedApproverID, string(requested), string(available), string(rec.Method),
		int64(rec.PaymentAmount), rec.ApproverWorkload, metadata, createdAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert selection log: %w", err)
	}
	rec.CreatedAt = createdAt
	return nil
}

// List returns the most recent records, newest first.
func (s *SelectionLog) List(ctx context.Context, limit int) ([]*selection.AuditRecord, error) {
	query := `
		SELECT id, task_id, payment_request_id, level, selected_approver_id,
		       requested_approvers, available_approvers, selection_method,
		       payment_amount, approver_workload, metadata, created_at
		FROM approver_selection_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	return s.query(ctx, query, limit)
}

// ListByLevel returns the most recent records for a level, newest first.
func (s *SelectionLog) ListByLevel(ctx context.Context, level, limit int) ([]*selection.AuditRecord, error) {
	query := `
		SELECT id, task_id, payment_request_id, level, selected_approver_id,
		       requested_approvers, available_approvers, selection_method,
		       payment_amount, approver_workload, metadata, created_at
		FROM approver_selection_logs
		WHERE level = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	return s.query(ctx, query, level, limit)
}

// ListByApprover returns the most recent records that selected approverID,
// newest first.
func (s *SelectionLog) ListByApprover(ctx context.Context, approverID string, limit int) ([]*selection.AuditRecord, error) {
	query := `
		SELECT id, task_id, payment_request_id, level, selected_approver_id,
		       requested_approvers, available_approvers, selection_method,
		       payment_amount, approver_workload, metadata, created_at
		FROM approver_selection_logs
		WHERE selected_approver_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	return s.query(ctx, query, approverID, limit)
}

// CountSince returns how many selections each method produced since t.
func (s *SelectionLog) CountSince(ctx context.Context, since time.Time) (map[selection.Method]int, error) {
	query := `
		SELECT selection_method, COUNT(*)
		FROM approver_selection_logs
		WHERE created_at >= ?
		GROUP BY selection_method
	`
	rows, err := s.db.QueryContext(ctx, query, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("count selection log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[selection.Method]int)
	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, fmt.Errorf("scan selection count: %w", err)
		}
		counts[selection.Method(method)] = n
	}
	return counts, rows.Err()
}

func (s *SelectionLog) query(ctx context.Context, query string, args ...any) ([]*selection.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query selection log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*selection.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*selection.AuditRecord, error) {
	var (
		rec                  selection.AuditRecord
		taskID, paymentReqID sql.NullString
		level                int
		requested, available string
		method               string
		amount               int64
		metadata             sql.NullString
		createdAt            string
	)
	if err := rows.Scan(&rec.ID, &taskID, &paymentReqID, &level, &rec.SelectedApproverID,
		&requested, &available, &method, &amount, &rec.ApproverWorkload, &metadata, &createdAt); err != nil {
		return nil, fmt.Errorf("scan selection log: %w", err)
	}

	rec.TaskID = taskID.String
	rec.PaymentRequestID = paymentReqID.String
	rec.Level = selection.Level(level)
	rec.Method = selection.Method(method)
	rec.PaymentAmount = selection.Money(amount)
	if err := json.Unmarshal([]byte(requested), &rec.RequestedApprovers); err != nil {
		return nil, fmt.Errorf("decode requested approvers: %w", err)
	}
	if err := json.Unmarshal([]byte(available), &rec.AvailableApprovers); err != nil {
		return nil, fmt.Errorf("decode available approvers: %w", err)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
