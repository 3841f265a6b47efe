package selection

import "fmt"

const (
	// DefaultEscalationThreshold is the amount above which items at the
	// penultimate tier jump to the top tier.
	DefaultEscalationThreshold Money = 500000
	// DefaultTopTier is the top authority tier in the four-tier scheme.
	DefaultTopTier Level = 3
)

// EscalationDecision is the transient result of Decider.ShouldEscalate.
type EscalationDecision struct {
	Escalate    bool   `json:"escalate"`
	FromLevel   Level  `json:"from_level"`
	TargetLevel Level  `json:"target_level"`
	Threshold   Money  `json:"threshold"`
	Reason      string `json:"reason,omitempty"`
}

// Decider evaluates amount-triggered escalation.
type Decider struct {
	Threshold Money
	TopTier   Level
}

// NewDecider returns a Decider with the reference thresholds.
func NewDecider() Decider {
	return Decider{Threshold: DefaultEscalationThreshold, TopTier: DefaultTopTier}
}

// ShouldEscalate fires only for items at the tier directly below the top tier
// whose amount strictly exceeds the threshold, and only when the top tier has
// someone to route to.
func (d Decider) ShouldEscalate(amount Money, level Level, topTierConfigured bool) EscalationDecision {
	dec := EscalationDecision{
		FromLevel:   level,
		TargetLevel: d.TopTier,
		Threshold:   d.Threshold,
	}
	if !topTierConfigured {
		return dec
	}
	if level != d.TopTier-1 || amount <= d.Threshold {
		return dec
	}
	dec.Escalate = true
	dec.Reason = fmt.Sprintf("amount %d exceeds escalation threshold %d at level %d", amount, d.Threshold, level)
	return dec
}
