package scenario

import "github.com/pesio-ai/be-ap-approver-selection/internal/selection"

// Approver is one pool member.
type Approver struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	Role     string `yaml:"role,omitempty"`
	Workload int    `yaml:"workload"`
}

// Constraint is a per-(approver, level) policy row. Omitted booleans
// default to true.
type Constraint struct {
	ApproverID    string `yaml:"approver_id"`
	Level         int    `yaml:"level"`
	Available     *bool  `yaml:"available,omitempty"`
	AutoAssign    *bool  `yaml:"auto_assign,omitempty"`
	ApprovalLimit *int64 `yaml:"approval_limit,omitempty"`
	Priority      int    `yaml:"priority,omitempty"`
}

// Policy overrides the engine rules. Omitted fields keep the defaults.
type Policy struct {
	EscalationThreshold *int64 `yaml:"escalation_threshold,omitempty"`
	TopTierLevel        *int   `yaml:"top_tier_level,omitempty"`
	LimitFallback       *bool  `yaml:"limit_fallback,omitempty"`
}

// Expect is the optional assertion of a case.
type Expect struct {
	Approver  string `yaml:"approver,omitempty"`
	Method    string `yaml:"method,omitempty"`
	Outcome   string `yaml:"outcome,omitempty"`
	Level     *int   `yaml:"level,omitempty"`
	Escalated *bool  `yaml:"escalated,omitempty"`
}

// Case is one selection request.
type Case struct {
	Name      string   `yaml:"name,omitempty"`
	Level     int      `yaml:"level"`
	Amount    int64    `yaml:"amount,omitempty"`
	Requested []string `yaml:"requested,omitempty"`
	// Pool overrides the scenario pool for this case.
	Pool   []Approver `yaml:"pool,omitempty"`
	Expect *Expect    `yaml:"expect,omitempty"`
}

// Scenario is a named collection of selection cases sharing a pool.
type Scenario struct {
	Name        string       `yaml:"name"`
	Policy      Policy       `yaml:"policy,omitempty"`
	Pool        []Approver   `yaml:"pool"`
	TopTierPool []Approver   `yaml:"top_tier_pool,omitempty"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
	Cases       []Case       `yaml:"cases"`
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Outcome    string `json:"outcome"`
	ApproverID string `json:"approver_id,omitempty"`
	Method     string `json:"selection_method,omitempty"`
	Level      int    `json:"level"`
	Workload   int    `json:"workload"`
	Escalated  bool   `json:"escalated"`
	Reason     string `json:"reason,omitempty"`
	Checked    bool   `json:"checked"`
	Passed     bool   `json:"passed"`
	Mismatch   string `json:"mismatch,omitempty"`
}

// RunResult is the outcome of all cases in one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}

// Rules applies the policy overrides to base.
func (p Policy) Rules(base selection.Rules) selection.Rules {
	if p.EscalationThreshold != nil {
		base.EscalationThreshold = selection.Money(*p.EscalationThreshold)
	}
	if p.TopTierLevel != nil {
		base.TopTier = selection.Level(*p.TopTierLevel)
	}
	if p.LimitFallback != nil {
		base.LimitFallback = *p.LimitFallback
	}
	return base
}
