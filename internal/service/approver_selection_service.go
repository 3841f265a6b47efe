package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/cache"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/config"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/logger"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/tracing"
	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// ApproverDirectory reads candidate pools.
type ApproverDirectory interface {
	FetchCandidatePool(ctx context.Context, level int) ([]selection.Candidate, error)
	FetchByRole(ctx context.Context, role string) ([]selection.Candidate, error)
}

// LevelCatalog reads the tier-to-role mapping.
type LevelCatalog interface {
	IsConfigured(ctx context.Context, level int, role string) (bool, error)
	GetByLevel(ctx context.Context, level int) (*repository.ApprovalLevel, error)
	List(ctx context.Context) ([]*repository.ApprovalLevel, error)
}

// ConstraintStore reads and writes per-(approver, level) policy.
type ConstraintStore interface {
	GetForLevel(ctx context.Context, userIDs []string, level int) (selection.Constraints, error)
	Get(ctx context.Context, userID string, level int) (*repository.ApproverConfiguration, error)
	Upsert(ctx context.Context, cfg *repository.ApproverConfiguration) error
	Delete(ctx context.Context, userID string, level int) error
}

// SelectionHistory reads back the selection audit log.
type SelectionHistory interface {
	ListByLevel(ctx context.Context, level, limit int) ([]*selection.AuditRecord, error)
	ListByApprover(ctx context.Context, approverID string, limit int) ([]*selection.AuditRecord, error)
	CountSince(ctx context.Context, since time.Time) (map[selection.Method]int, error)
}

// WorkloadStatsSource aggregates approver queues.
type WorkloadStatsSource interface {
	GetApproverWorkloadStats(ctx context.Context) ([]*repository.ApproverWorkloadStats, error)
}

// SelectionNotifier is told about every successful selection.
type SelectionNotifier interface {
	PublishSelection(ctx context.Context, req selection.Request, res selection.Result)
}

const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	defaultSummaryWindow = 24 * time.Hour
)

// policyState is swapped atomically when the selection policy changes.
type policyState struct {
	engine *selection.Engine
	policy config.SelectionConfig
}

// ApproverSelectionService loads candidate pools and constraint snapshots,
// runs the selection engine and publishes the outcome.
type ApproverSelectionService struct {
	directory   ApproverDirectory
	levels      LevelCatalog
	constraints ConstraintStore
	sink        selection.AuditSink
	history     SelectionHistory
	stats       WorkloadStatsSource
	notifier    SelectionNotifier
	cache       *cache.ConstraintCache
	state       atomic.Pointer[policyState]
	now         func() time.Time
	log         *logger.Logger
}

// NewApproverSelectionService creates a new ApproverSelectionService.
func NewApproverSelectionService(
	directory ApproverDirectory,
	levels LevelCatalog,
	constraints ConstraintStore,
	sink selection.AuditSink,
	policy config.SelectionConfig,
	log *logger.Logger,
) *ApproverSelectionService {
	s := &ApproverSelectionService{
		directory:   directory,
		levels:      levels,
		constraints: constraints,
		sink:        sink,
		now:         time.Now,
		log:         log,
	}
	s.ApplyPolicy(policy)
	return s
}

// WithHistory sets the audit log reader.
func (s *ApproverSelectionService) WithHistory(h SelectionHistory) *ApproverSelectionService {
	s.history = h
	return s
}

// WithWorkloadStats sets the workload statistics source.
func (s *ApproverSelectionService) WithWorkloadStats(w WorkloadStatsSource) *ApproverSelectionService {
	s.stats = w
	return s
}

// WithNotifier sets the selection notifier.
func (s *ApproverSelectionService) WithNotifier(n SelectionNotifier) *ApproverSelectionService {
	s.notifier = n
	return s
}

// WithConstraintCache fronts constraint reads with c.
func (s *ApproverSelectionService) WithConstraintCache(c *cache.ConstraintCache) *ApproverSelectionService {
	s.cache = c
	return s
}

// ApplyPolicy rebuilds the engine for policy. In-flight selections finish
// with the engine they started with.
func (s *ApproverSelectionService) ApplyPolicy(policy config.SelectionConfig) {
	rules := selection.Rules{
		EscalationThreshold: selection.Money(policy.EscalationThreshold),
		TopTier:             selection.Level(policy.TopTierLevel),
		LimitFallback:       policy.LimitFallback,
	}
	engine := selection.NewEngine(rules, s.sink, s.log.WithComponent("selection").Logger)
	s.state.Store(&policyState{engine: engine, policy: policy})

	s.log.Info().
		Int64("escalation_threshold", policy.EscalationThreshold).
		Int("top_tier_level", policy.TopTierLevel).
		Str("top_tier_role", policy.TopTierRole).
		Bool("limit_fallback", policy.LimitFallback).
		Msg("Selection policy applied")
}

// Policy returns the active selection policy.
func (s *ApproverSelectionService) Policy() config.SelectionConfig {
	return s.state.Load().policy
}

// SelectApprover picks one approver for req.Level, escalating high-value
// items from the penultimate tier to the top tier.
func (s *ApproverSelectionService) SelectApprover(ctx context.Context, req api.SelectApproverRequest) (selection.Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ApproverSelectionService.SelectApprover",
		trace.WithAttributes(
			attribute.Int("approval.level", req.Level),
			attribute.Int64("approval.amount", req.Amount),
			attribute.Int("approval.requested", len(req.RequestedApprovers)),
		))
	defer span.End()

	res, err := s.selectApprover(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("approval.approver_id", res.Selected.ID),
		attribute.String("approval.method", string(res.Method)),
		attribute.Int("approval.selected_level", int(res.Level)),
	)
	return res, nil
}

func (s *ApproverSelectionService) selectApprover(ctx context.Context, req api.SelectApproverRequest) (selection.Result, error) {
	if req.Level < 0 {
		return selection.Result{}, errors.InvalidInput("level", "must not be negative")
	}
	if req.Amount < 0 {
		return selection.Result{}, errors.InvalidInput("amount", "must not be negative")
	}

	st := s.state.Load()
	request := req.ToRequest()

	pool, err := s.directory.FetchCandidatePool(ctx, req.Level)
	if err != nil {
		return selection.Result{}, err
	}

	topTierPool, err := s.topTierPool(ctx, st, request)
	if err != nil {
		return selection.Result{}, err
	}

	constraints, err := s.snapshot(ctx, pool, req.Level)
	if err != nil {
		return selection.Result{}, err
	}
	if len(topTierPool) > 0 {
		top, err := s.snapshot(ctx, topTierPool, st.policy.TopTierLevel)
		if err != nil {
			return selection.Result{}, err
		}
		for k, v := range top {
			constraints[k] = v
		}
	}

	request.Pool = pool
	res := st.engine.SelectWithEscalation(ctx, selection.EscalationRequest{
		Request:     request,
		TopTierPool: topTierPool,
	}, constraints)

	if !res.OK() {
		s.log.Warn().
			Int("hierarchy_level", req.Level).
			Int64("amount", req.Amount).
			Str("outcome", string(res.Outcome)).
			Msg("No approver selected")
		return res, &errors.Error{
			Code:    errors.ErrCodePrecondition,
			Message: res.Err().Error(),
			Cause:   res.Err(),
		}
	}

	if s.notifier != nil {
		s.notifier.PublishSelection(ctx, request, res)
	}
	return res, nil
}

// topTierPool loads the escalation pool only when the amount and level
// would trigger escalation. An unconfigured top tier yields an empty pool.
func (s *ApproverSelectionService) topTierPool(ctx context.Context, st *policyState, req selection.Request) ([]selection.Candidate, error) {
	if !st.engine.Decider().ShouldEscalate(req.Amount, req.Level, true).Escalate {
		return nil, nil
	}

	configured, err := s.levels.IsConfigured(ctx, st.policy.TopTierLevel, st.policy.TopTierRole)
	if err != nil {
		return nil, err
	}
	if !configured {
		s.log.Debug().
			Int("top_tier_level", st.policy.TopTierLevel).
			Str("top_tier_role", st.policy.TopTierRole).
			Msg("Top tier not configured; escalation skipped")
		return nil, nil
	}
	return s.directory.FetchByRole(ctx, st.policy.TopTierRole)
}

func (s *ApproverSelectionService) snapshot(ctx context.Context, pool []selection.Candidate, level int) (selection.Constraints, error) {
	ids := make([]string, 0, len(pool))
	for _, c := range pool {
		ids = append(ids, c.ID)
	}
	var (
		snap selection.Constraints
		err  error
	)
	if s.cache != nil {
		snap, err = s.cache.Snapshot(ctx, ids, level, s.constraints.GetForLevel)
	} else {
		snap, err = s.constraints.GetForLevel(ctx, ids, level)
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = selection.Constraints{}
	}
	return snap, nil
}

// GetWorkloadStats returns per-approver queue and decision statistics.
func (s *ApproverSelectionService) GetWorkloadStats(ctx context.Context) ([]*repository.ApproverWorkloadStats, error) {
	if s.stats == nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "workload statistics are not available")
	}
	return s.stats.GetApproverWorkloadStats(ctx)
}

// GetSelectionHistory returns recent selection log entries for a level.
func (s *ApproverSelectionService) GetSelectionHistory(ctx context.Context, level, limit int) ([]*selection.AuditRecord, error) {
	if s.history == nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "selection history is not available")
	}
	if level < 0 {
		return nil, errors.InvalidInput("level", "must not be negative")
	}
	return s.history.ListByLevel(ctx, level, clampLimit(limit))
}

// GetApproverSelectionHistory returns recent selections of one approver.
func (s *ApproverSelectionService) GetApproverSelectionHistory(ctx context.Context, approverID string, limit int) ([]*selection.AuditRecord, error) {
	if s.history == nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "selection history is not available")
	}
	if approverID == "" {
		return nil, errors.InvalidInput("approver_id", "is required")
	}
	return s.history.ListByApprover(ctx, approverID, clampLimit(limit))
}

// SummarizeSelections counts selections per method over the trailing window.
// A non-positive window means the last 24 hours.
func (s *ApproverSelectionService) SummarizeSelections(ctx context.Context, window time.Duration) (time.Time, map[selection.Method]int, error) {
	if s.history == nil {
		return time.Time{}, nil, errors.New(errors.ErrCodeUnavailable, "selection history is not available")
	}
	if window <= 0 {
		window = defaultSummaryWindow
	}
	since := s.now().Add(-window)
	counts, err := s.history.CountSince(ctx, since)
	if err != nil {
		return time.Time{}, nil, err
	}
	return since, counts, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return limit
}

// ListApprovalLevels returns the configured tiers.
func (s *ApproverSelectionService) ListApprovalLevels(ctx context.Context) ([]*repository.ApprovalLevel, error) {
	return s.levels.List(ctx)
}

// GetApprovalLevel returns the active row for one tier.
func (s *ApproverSelectionService) GetApprovalLevel(ctx context.Context, level int) (*repository.ApprovalLevel, error) {
	if level < 0 {
		return nil, errors.InvalidInput("level", "must not be negative")
	}
	return s.levels.GetByLevel(ctx, level)
}

// GetApproverConfig returns an approver's stored policy at a level.
func (s *ApproverSelectionService) GetApproverConfig(ctx context.Context, userID string, level int) (*repository.ApproverConfiguration, error) {
	if userID == "" {
		return nil, errors.InvalidInput("user_id", "is required")
	}
	return s.constraints.Get(ctx, userID, level)
}

// ConfigureApprover creates or replaces an approver's policy at a level.
// Availability and auto-assign default to true when omitted.
func (s *ApproverSelectionService) ConfigureApprover(ctx context.Context, req api.ApproverConfigRequest) (*repository.ApproverConfiguration, error) {
	cfg := &repository.ApproverConfiguration{
		UserID:        req.UserID,
		Level:         req.Level,
		IsAvailable:   true,
		AutoAssign:    true,
		ApprovalLimit: req.ApprovalLimit,
		Priority:      req.Priority,
		IsActive:      true,
	}
	if req.IsAvailable != nil {
		cfg.IsAvailable = *req.IsAvailable
	}
	if req.AutoAssign != nil {
		cfg.AutoAssign = *req.AutoAssign
	}

	if err := s.constraints.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.Level)
	}

	s.log.Info().
		Str("approver_id", cfg.UserID).
		Int("hierarchy_level", cfg.Level).
		Bool("available", cfg.IsAvailable).
		Bool("auto_assign", cfg.AutoAssign).
		Int("priority", cfg.Priority).
		Msg("Approver configuration saved")
	return cfg, nil
}

// RemoveApproverConfig deletes an approver's policy at a level; the default
// policy applies afterwards.
func (s *ApproverSelectionService) RemoveApproverConfig(ctx context.Context, userID string, level int) error {
	if err := s.constraints.Delete(ctx, userID, level); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, level)
	}
	return nil
}
