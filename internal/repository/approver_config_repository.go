package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// ApproverConfigRepository handles CRUD for approver_configurations.
// There is at most one row per (user_id, level).
type ApproverConfigRepository struct {
	db DB
}

// NewApproverConfigRepository creates a new ApproverConfigRepository.
func NewApproverConfigRepository(db DB) *ApproverConfigRepository {
	return &ApproverConfigRepository{db: db}
}

// Upsert inserts or replaces the configuration for (user_id, level).
func (r *ApproverConfigRepository) Upsert(ctx context.Context, cfg *ApproverConfiguration) error {
	if cfg.UserID == "" {
		return errors.InvalidInput("user_id", "is required")
	}
	if cfg.Level < 0 {
		return errors.InvalidInput("level", "must not be negative")
	}
	if cfg.ApprovalLimit != nil && *cfg.ApprovalLimit < 0 {
		return errors.InvalidInput("approval_limit", "must not be negative")
	}

	query := `
		INSERT INTO approver_configurations
		    (user_id, level, is_available, auto_assign,
		     approval_limit, priority, is_active)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		ON CONFLICT (user_id, level) DO UPDATE
		SET is_available   = EXCLUDED.is_available,
		    auto_assign    = EXCLUDED.auto_assign,
		    approval_limit = EXCLUDED.approval_limit,
		    priority       = EXCLUDED.priority,
		    is_active      = EXCLUDED.is_active,
		    updated_at     = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		cfg.UserID,
		cfg.Level,
		cfg.IsAvailable,
		cfg.AutoAssign,
		cfg.ApprovalLimit,
		cfg.Priority,
		cfg.IsActive,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert approver configuration")
	}
	return nil
}

// Get retrieves the configuration for one (user_id, level).
func (r *ApproverConfigRepository) Get(ctx context.Context, userID string, level int) (*ApproverConfiguration, error) {
	query := `
		SELECT id, user_id, level, is_available, auto_assign,
		       FLOOR(approval_limit)::BIGINT, priority, is_active, created_at, updated_at
		FROM approver_configurations
		WHERE user_id = $1 AND level = $2
	`

	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, userID, level))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approver_configuration", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approver configuration")
	}
	return cfg, nil
}

// ListForLevel returns the active configurations at a level for the given users.
func (r *ApproverConfigRepository) ListForLevel(ctx context.Context, userIDs []string, level int) ([]*ApproverConfiguration, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, level, is_available, auto_assign,
		       FLOOR(approval_limit)::BIGINT, priority, is_active, created_at, updated_at
		FROM approver_configurations
		WHERE user_id = ANY($1) AND level = $2 AND is_active = TRUE
		ORDER BY user_id ASC
	`

	rows, err := r.db.Query(ctx, query, userIDs, level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approver configurations")
	}
	defer rows.Close()

	var configs []*ApproverConfiguration
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approver configuration")
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approver configurations")
	}
	return configs, nil
}

// GetForLevel loads the active configurations at a level into a constraint
// snapshot for one selection call.
func (r *ApproverConfigRepository) GetForLevel(ctx context.Context, userIDs []string, level int) (selection.Constraints, error) {
	configs, err := r.ListForLevel(ctx, userIDs, level)
	if err != nil {
		return nil, err
	}
	return ToConstraints(configs), nil
}

// Delete removes the configuration for (user_id, level).
func (r *ApproverConfigRepository) Delete(ctx context.Context, userID string, level int) error {
	query := `
		DELETE FROM approver_configurations
		WHERE user_id = $1 AND level = $2
	`

	tag, err := r.db.Exec(ctx, query, userID, level)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approver configuration")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approver_configuration", userID)
	}
	return nil
}

// ToConstraints converts configuration rows into a selection snapshot.
// Inactive rows are skipped so the default policy applies to them.
func ToConstraints(configs []*ApproverConfiguration) selection.Constraints {
	out := make(selection.Constraints, len(configs))
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		var limit *selection.Money
		if cfg.ApprovalLimit != nil {
			m := selection.Money(*cfg.ApprovalLimit)
			limit = &m
		}
		out[selection.ConstraintKey{ApproverID: cfg.UserID, Level: selection.Level(cfg.Level)}] = selection.Constraint{
			Available:     cfg.IsAvailable,
			AutoAssign:    cfg.AutoAssign,
			ApprovalLimit: limit,
			Priority:      cfg.Priority,
		}
	}
	return out
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *ApproverConfigRepository) scanConfig(row rowScanner) (*ApproverConfiguration, error) {
	cfg := &ApproverConfiguration{}
	err := row.Scan(
		&cfg.ID,
		&cfg.UserID,
		&cfg.Level,
		&cfg.IsAvailable,
		&cfg.AutoAssign,
		&cfg.ApprovalLimit,
		&cfg.Priority,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
