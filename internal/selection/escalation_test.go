package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecider_ShouldEscalate(t *testing.T) {
	tests := []struct {
		name       string
		amount     Money
		level      Level
		configured bool
		expect     bool
	}{
		{"above threshold at penultimate tier", 600000, 2, true, true},
		{"exactly at threshold", 500000, 2, true, false},
		{"one above threshold", 500001, 2, true, true},
		{"top tier not configured", 600000, 2, false, false},
		{"level 0", 9000000, 0, true, false},
		{"level 1", 9000000, 1, true, false},
		{"already at top tier", 9000000, 3, true, false},
		{"zero amount", 0, 2, true, false},
	}

	d := NewDecider()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dec := d.ShouldEscalate(tc.amount, tc.level, tc.configured)
			assert.Equal(t, tc.expect, dec.Escalate)
			assert.Equal(t, tc.level, dec.FromLevel)
			assert.Equal(t, Level(3), dec.TargetLevel)
			if tc.expect {
				assert.Contains(t, dec.Reason, "exceeds escalation threshold")
			} else {
				assert.Empty(t, dec.Reason)
			}
		})
	}
}

func TestDecider_CustomTiers(t *testing.T) {
	d := Decider{Threshold: 1000, TopTier: 5}
	assert.True(t, d.ShouldEscalate(1001, 4, true).Escalate)
	assert.False(t, d.ShouldEscalate(1001, 2, true).Escalate)
	assert.Equal(t, Level(5), d.ShouldEscalate(1001, 4, true).TargetLevel)
}
