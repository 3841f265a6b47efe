package repository

import (
	"context"

	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// ApproverDirectoryRepository reads candidate approvers and their open-task
// counts. Pools are ordered by username so repeated reads of unchanged data
// yield the same candidate order.
type ApproverDirectoryRepository struct {
	db DB
}

// NewApproverDirectoryRepository creates a new ApproverDirectoryRepository.
func NewApproverDirectoryRepository(db DB) *ApproverDirectoryRepository {
	return &ApproverDirectoryRepository{db: db}
}

// FetchCandidatePool returns the active users holding the role configured
// for level. An unconfigured level yields an empty pool, not an error.
func (r *ApproverDirectoryRepository) FetchCandidatePool(ctx context.Context, level int) ([]selection.Candidate, error) {
	query := `
		SELECT u.id, u.username, u.email, u.role, COUNT(t.id) AS pending_tasks
		FROM users u
		JOIN approval_levels al
		  ON al.role_name = u.role
		 AND al.level = $1
		 AND al.is_active = TRUE
		LEFT JOIN tasks t
		  ON t.assignee_id = u.id
		 AND t.status = 'PENDING'
		WHERE u.is_active = TRUE
		GROUP BY u.id, u.username, u.email, u.role
		ORDER BY u.username ASC, u.id ASC
	`
	return r.fetch(ctx, query, level)
}

// FetchByRole returns the active users holding role, used for the top-tier
// escalation pool.
func (r *ApproverDirectoryRepository) FetchByRole(ctx context.Context, role string) ([]selection.Candidate, error) {
	query := `
		SELECT u.id, u.username, u.email, u.role, COUNT(t.id) AS pending_tasks
		FROM users u
		LEFT JOIN tasks t
		  ON t.assignee_id = u.id
		 AND t.status = 'PENDING'
		WHERE u.is_active = TRUE
		  AND u.role = $1
		GROUP BY u.id, u.username, u.email, u.role
		ORDER BY u.username ASC, u.id ASC
	`
	return r.fetch(ctx, query, role)
}

func (r *ApproverDirectoryRepository) fetch(ctx context.Context, query string, arg any) ([]selection.Candidate, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to fetch approvers")
	}
	defer rows.Close()

	var pool []selection.Candidate
	for rows.Next() {
		a, err := scanApprover(rows)
		if err != nil {
			return nil, err
		}
		pool = append(pool, a.Candidate())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approvers")
	}
	return pool, nil
}

// Candidate converts an Approver into the selection engine's read view.
func (a Approver) Candidate() selection.Candidate {
	return selection.Candidate{
		ID:          a.ID,
		DisplayName: a.Username,
		Role:        a.Role,
		Workload:    a.PendingTasks,
	}
}

func scanApprover(sc rowScanner) (Approver, error) {
	var a Approver
	var email *string
	if err := sc.Scan(&a.ID, &a.Username, &email, &a.Role, &a.PendingTasks); err != nil {
		return a, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approver")
	}
	a.Email = deref(email)
	return a, nil
}
