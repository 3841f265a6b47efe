package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
)

// ApprovalLevelRepository reads the approval_levels table that maps tiers to roles.
type ApprovalLevelRepository struct {
	db DB
}

// NewApprovalLevelRepository creates a new ApprovalLevelRepository.
func NewApprovalLevelRepository(db DB) *ApprovalLevelRepository {
	return &ApprovalLevelRepository{db: db}
}

// IsConfigured reports whether an active level row exists for (level, role).
func (r *ApprovalLevelRepository) IsConfigured(ctx context.Context, level int, role string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_levels
			WHERE level = $1 AND role_name = $2 AND is_active = TRUE
		)
	`

	var ok bool
	if err := r.db.QueryRow(ctx, query, level, role).Scan(&ok); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check approval level")
	}
	return ok, nil
}

// GetByLevel returns the active level row for a tier.
func (r *ApprovalLevelRepository) GetByLevel(ctx context.Context, level int) (*ApprovalLevel, error) {
	query := `
		SELECT id, level, role_name, is_active, created_at, updated_at
		FROM approval_levels
		WHERE level = $1 AND is_active = TRUE
		ORDER BY created_at ASC
		LIMIT 1
	`

	l := &ApprovalLevel{}
	err := r.db.QueryRow(ctx, query, level).Scan(
		&l.ID, &l.Level, &l.RoleName, &l.IsActive, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_level", strconv.Itoa(level))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval level")
	}
	return l, nil
}

// List returns every active level in ascending order.
func (r *ApprovalLevelRepository) List(ctx context.Context) ([]*ApprovalLevel, error) {
	query := `
		SELECT id, level, role_name, is_active, created_at, updated_at
		FROM approval_levels
		WHERE is_active = TRUE
		ORDER BY level ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval levels")
	}
	defer rows.Close()

	var levels []*ApprovalLevel
	for rows.Next() {
		l := &ApprovalLevel{}
		if err := rows.Scan(&l.ID, &l.Level, &l.RoleName, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval level")
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval levels")
	}
	return levels, nil
}
