package selection

import (
	"cmp"
	"context"
	"slices"

	"github.com/rs/zerolog"
)

// Rules are the configurable business rules of the engine.
type Rules struct {
	EscalationThreshold Money
	TopTier             Level
	// LimitFallback selects from the unfiltered pool when the eligibility
	// filter excludes every candidate.
	LimitFallback bool
}

// DefaultRules returns the reference deployment's rules.
func DefaultRules() Rules {
	return Rules{
		EscalationThreshold: DefaultEscalationThreshold,
		TopTier:             DefaultTopTier,
		LimitFallback:       true,
	}
}

// Engine picks one approver per request.
type Engine struct {
	rules    Rules
	decider  Decider
	recorder *AuditRecorder
	log      zerolog.Logger
}

// NewEngine creates an Engine that audits through sink.
func NewEngine(rules Rules, sink AuditSink, log zerolog.Logger) *Engine {
	return &Engine{
		rules:    rules,
		decider:  Decider{Threshold: rules.EscalationThreshold, TopTier: rules.TopTier},
		recorder: NewAuditRecorder(sink, log),
		log:      log,
	}
}

// Decider returns the engine's escalation decider.
func (e *Engine) Decider() Decider {
	return e.decider
}

// EscalationRequest is a Request plus the top-tier pool escalation may route
// to. An empty TopTierPool means the top tier is not configured.
type EscalationRequest struct {
	Request
	TopTierPool []Candidate
}

// SelectWithEscalation consults the escalation decider first. When it fires,
// the top-tier pool is used with no requested approvers and the result is
// tagged ESCALATED; otherwise the request is routed normally.
func (e *Engine) SelectWithEscalation(ctx context.Context, req EscalationRequest, lookup ConstraintLookup) Result {
	dec := e.decider.ShouldEscalate(req.Amount, req.Level, len(req.TopTierPool) > 0)
	if !dec.Escalate {
		return e.Select(ctx, req.Request, lookup)
	}

	e.log.Info().
		Int("from_level", int(dec.FromLevel)).
		Int("target_level", int(dec.TargetLevel)).
		Int64("amount", int64(req.Amount)).
		Int64("threshold", int64(dec.Threshold)).
		Msg("Escalating approval to top tier")

	metadata := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["escalated_from_level"] = int(dec.FromLevel)
	metadata["escalation_reason"] = dec.Reason
	metadata["escalation_threshold"] = int64(dec.Threshold)

	escalated := Request{
		Pool:             req.TopTierPool,
		Amount:           req.Amount,
		Level:            dec.TargetLevel,
		TaskID:           req.TaskID,
		PaymentRequestID: req.PaymentRequestID,
		Metadata:         metadata,
	}
	res := e.selectAs(ctx, escalated, lookup, MethodEscalated)
	res.Escalation = &dec
	return res
}

// Select runs the layered filter-then-rank algorithm over req.Pool.
func (e *Engine) Select(ctx context.Context, req Request, lookup ConstraintLookup) Result {
	return e.selectAs(ctx, req, lookup, MethodWorkloadBalanced)
}

// selectAs runs the selection stages; fallbackMethod tags results that did
// not come from the requested-approver pass.
func (e *Engine) selectAs(ctx context.Context, req Request, lookup ConstraintLookup, fallbackMethod Method) Result {
	if len(req.Pool) == 0 {
		e.log.Debug().Int("hierarchy_level", int(req.Level)).Msg("No approvers available for selection")
		return Result{Outcome: OutcomeNoCandidates, Level: req.Level}
	}

	policies := e.snapshot(ctx, req.Pool, req.Level, lookup)

	if winner, ok := e.requestedPass(req, policies); ok {
		return e.finish(ctx, req, winner, MethodRequested)
	}

	eligible := e.eligible(req, policies)
	if len(eligible) == 0 {
		if !e.rules.LimitFallback {
			e.log.Warn().
				Int("hierarchy_level", int(req.Level)).
				Int64("amount", int64(req.Amount)).
				Msg("No approvers eligible and limit fallback disabled")
			return Result{Outcome: OutcomeNoEligible, Level: req.Level}
		}
		e.log.Debug().
			Int("hierarchy_level", int(req.Level)).
			Msg("No approvers eligible after limit filtering; using full pool")
		eligible = req.Pool
	}

	ranked := byPriority(eligible, policies)
	return e.finish(ctx, req, PickLeastLoaded(ranked), fallbackMethod)
}

// snapshot resolves each candidate's policy once per call.
func (e *Engine) snapshot(ctx context.Context, pool []Candidate, level Level, lookup ConstraintLookup) map[string]Policy {
	policies := make(map[string]Policy, len(pool))
	for _, c := range pool {
		if _, seen := policies[c.ID]; seen {
			continue
		}
		if lookup == nil {
			policies[c.ID] = DefaultPolicy
			continue
		}
		policies[c.ID] = Resolve(lookup.LookupConstraint(ctx, c.ID, level))
	}
	return policies
}

// requestedPass honors explicitly requested approvers who are in the pool
// and available.
func (e *Engine) requestedPass(req Request, policies map[string]Policy) (Candidate, bool) {
	if len(req.Requested) == 0 {
		return Candidate{}, false
	}
	wanted := make(map[string]struct{}, len(req.Requested))
	for _, id := range req.Requested {
		wanted[id] = struct{}{}
	}

	var matches []Candidate
	for _, c := range req.Pool {
		if _, ok := wanted[c.ID]; !ok {
			continue
		}
		if !policies[c.ID].Available {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		e.log.Debug().
			Int("hierarchy_level", int(req.Level)).
			Strs("requested", req.Requested).
			Msg("None of the requested approvers are available at this level")
		return Candidate{}, false
	}
	return PickLeastLoaded(matches), true
}

// eligible drops unavailable, non-auto-assign and over-limit candidates.
func (e *Engine) eligible(req Request, policies map[string]Policy) []Candidate {
	out := make([]Candidate, 0, len(req.Pool))
	for _, c := range req.Pool {
		p := policies[c.ID]
		switch {
		case !p.Available:
			e.log.Debug().Str("approver_id", c.ID).Msg("Skipping approver: unavailable")
		case !p.AutoAssign:
			e.log.Debug().Str("approver_id", c.ID).Msg("Skipping approver: auto-assign disabled")
		case !p.Permits(req.Amount):
			e.log.Debug().
				Str("approver_id", c.ID).
				Int64("amount", int64(req.Amount)).
				Int64("limit", int64(*p.ApprovalLimit)).
				Msg("Skipping approver: amount exceeds approval limit")
		default:
			out = append(out, c)
		}
	}
	return out
}

// byPriority returns a copy sorted by priority, highest first, keeping input
// order among equal priorities.
func byPriority(candidates []Candidate, policies map[string]Policy) []Candidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		return cmp.Compare(policies[b.ID].Priority, policies[a.ID].Priority)
	})
	return ranked
}

func (e *Engine) finish(ctx context.Context, req Request, winner Candidate, method Method) Result {
	available := make([]string, len(req.Pool))
	for i, c := range req.Pool {
		available[i] = c.ID
	}

	rec := &AuditRecord{
		TaskID:             req.TaskID,
		PaymentRequestID:   req.PaymentRequestID,
		Level:              req.Level,
		SelectedApproverID: winner.ID,
		RequestedApprovers: slices.Clone(req.Requested),
		AvailableApprovers: available,
		Method:             method,
		PaymentAmount:      req.Amount,
		ApproverWorkload:   winner.Workload,
		Metadata:           req.Metadata,
	}
	warning := e.recorder.Record(ctx, rec)

	e.log.Info().
		Int("hierarchy_level", int(req.Level)).
		Str("approver_id", winner.ID).
		Str("approver", winner.DisplayName).
		Str("selection_method", string(method)).
		Int("workload", winner.Workload).
		Int("pool_size", len(req.Pool)).
		Msg("Approver selected")

	return Result{
		Outcome:      OutcomeSelected,
		Selected:     winner,
		Method:       method,
		Workload:     winner.Workload,
		Level:        req.Level,
		AuditWarning: warning,
	}
}
