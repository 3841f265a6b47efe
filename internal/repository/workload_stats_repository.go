package repository

import (
	"context"
	"math"

	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
)

// WorkloadStatsRepository aggregates per-approver queue and decision counts.
type WorkloadStatsRepository struct {
	db DB
}

// NewWorkloadStatsRepository creates a new WorkloadStatsRepository.
func NewWorkloadStatsRepository(db DB) *WorkloadStatsRepository {
	return &WorkloadStatsRepository{db: db}
}

// GetApproverWorkloadStats returns one entry per active user in ApproverRoles.
// Pending counts come from assigned tasks; approved and rejected counts come
// from the approval actions the user recorded.
func (r *WorkloadStatsRepository) GetApproverWorkloadStats(ctx context.Context) ([]*ApproverWorkloadStats, error) {
	query := `
		SELECT u.id, u.username, u.email, u.role,
		       COALESCE(q.pending, 0)   AS pending,
		       COALESCE(d.approved, 0)  AS approved,
		       COALESCE(d.rejected, 0)  AS rejected
		FROM users u
		LEFT JOIN LATERAL (
		    SELECT COUNT(*) AS pending
		    FROM tasks t
		    WHERE t.assignee_id = u.id AND t.status = 'PENDING'
		) q ON TRUE
		LEFT JOIN LATERAL (
		    SELECT COUNT(*) FILTER (WHERE a.action = 'APPROVED') AS approved,
		           COUNT(*) FILTER (WHERE a.action = 'REJECTED') AS rejected
		    FROM approvals a
		    WHERE a.approver_id = u.id
		) d ON TRUE
		WHERE u.is_active = TRUE
		  AND u.role = ANY($1)
		ORDER BY u.username ASC
	`

	rows, err := r.db.Query(ctx, query, ApproverRoles)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query workload stats")
	}
	defer rows.Close()

	var stats []*ApproverWorkloadStats
	for rows.Next() {
		s := &ApproverWorkloadStats{}
		var email *string
		if err := rows.Scan(
			&s.Approver.ID,
			&s.Approver.Username,
			&email,
			&s.Approver.Role,
			&s.PendingTasks,
			&s.TotalApproved,
			&s.TotalRejected,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workload stats")
		}
		s.Approver.Email = deref(email)
		s.Approver.PendingTasks = s.PendingTasks
		s.ApprovalRate = ApprovalRate(s.TotalApproved, s.TotalRejected)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read workload stats")
	}
	return stats, nil
}

// ApprovalRate is approved/(approved+rejected) as a percentage rounded to two
// decimals, or 0 with no decisions.
func ApprovalRate(approved, rejected int) float64 {
	total := approved + rejected
	if total == 0 {
		return 0
	}
	return math.Round(float64(approved)/float64(total)*10000) / 100
}
