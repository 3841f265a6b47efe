// Package selection decides which approver at a hierarchy level receives a
// pending approval. It filters and ranks a caller-supplied candidate pool,
// escalates high-value items from the penultimate tier to the top tier, and
// appends one audit record per successful decision.
//
// The package performs no I/O of its own: constraint lookups and audit
// appends are capabilities injected by the host.
package selection

import (
	"context"
	"errors"
)

// Money is an amount in whole currency units. Zero means "no amount
// constraint".
type Money int64

// Level is a zero-indexed hierarchy tier; higher is more senior.
type Level int

// Candidate is a read-only view of an approver eligible at a level.
type Candidate struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	// Workload is the count of currently open tasks assigned to the approver.
	Workload int `json:"workload"`
}

// Constraint is the per-(approver, level) policy override.
type Constraint struct {
	Available     bool   `json:"available"`
	AutoAssign    bool   `json:"auto_assign"`
	ApprovalLimit *Money `json:"approval_limit,omitempty"` // nil = unbounded
	Priority      int    `json:"priority"`
}

// Policy is a constraint with defaults applied.
type Policy struct {
	Available     bool
	AutoAssign    bool
	ApprovalLimit *Money
	Priority      int
	Configured    bool
}

// DefaultPolicy is used for approvers with no constraint record.
var DefaultPolicy = Policy{Available: true, AutoAssign: true}

// Resolve applies defaults to an optional constraint.
func Resolve(c Constraint, found bool) Policy {
	if !found {
		return DefaultPolicy
	}
	return Policy{
		Available:     c.Available,
		AutoAssign:    c.AutoAssign,
		ApprovalLimit: c.ApprovalLimit,
		Priority:      c.Priority,
		Configured:    true,
	}
}

// Permits reports whether amount fits under the policy's ceiling.
func (p Policy) Permits(amount Money) bool {
	if amount <= 0 || p.ApprovalLimit == nil {
		return true
	}
	return *p.ApprovalLimit >= amount
}

// ConstraintLookup reads the constraint for an approver at a level. A false
// second return means no record exists and the default policy applies.
type ConstraintLookup interface {
	LookupConstraint(ctx context.Context, approverID string, level Level) (Constraint, bool)
}

// ConstraintKey identifies a constraint record.
type ConstraintKey struct {
	ApproverID string
	Level      Level
}

// Constraints is an in-memory snapshot keyed by (approver, level).
type Constraints map[ConstraintKey]Constraint

func (c Constraints) LookupConstraint(_ context.Context, approverID string, level Level) (Constraint, bool) {
	v, ok := c[ConstraintKey{ApproverID: approverID, Level: level}]
	return v, ok
}

// Method records how an approver was chosen.
type Method string

const (
	MethodRequested        Method = "REQUESTED"
	MethodWorkloadBalanced Method = "WORKLOAD_BALANCED"
	MethodEscalated        Method = "ESCALATED"
)

// Outcome classifies a Result.
type Outcome string

const (
	OutcomeSelected     Outcome = "SELECTED"
	OutcomeNoCandidates Outcome = "NO_CANDIDATES"
	// OutcomeNoEligible only occurs when limit fallback is disabled.
	OutcomeNoEligible Outcome = "NO_ELIGIBLE"
)

var (
	// ErrNoCandidates is returned for an empty candidate pool.
	ErrNoCandidates = errors.New("no eligible approver configured for this level")
	// ErrNoEligible is returned when every candidate was filtered out and the
	// unfiltered fallback is disabled.
	ErrNoEligible = errors.New("no approver at this level is eligible for this amount")
)

// Request is the input to one selection decision.
type Request struct {
	Pool      []Candidate
	Requested []string
	Amount    Money
	Level     Level

	// Optional references copied into the audit record.
	TaskID           string
	PaymentRequestID string
	Metadata         map[string]any
}

// Result is the output of one selection decision.
type Result struct {
	Outcome  Outcome   `json:"outcome"`
	Selected Candidate `json:"selected"`
	Method   Method    `json:"method,omitempty"`
	// Workload is the winner's open-task count observed at decision time.
	Workload int `json:"workload"`
	// Level is the tier the approver was selected at; differs from the
	// request level when the item was escalated.
	Level      Level               `json:"level"`
	Escalation *EscalationDecision `json:"escalation,omitempty"`
	// AuditWarning is set when the audit append failed. It never changes
	// the decision.
	AuditWarning *AuditWarning `json:"-"`
}

// OK reports whether an approver was selected.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSelected
}

// Err returns the failure reason, or nil on success.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeSelected:
		return nil
	case OutcomeNoEligible:
		return ErrNoEligible
	default:
		return ErrNoCandidates
	}
}
