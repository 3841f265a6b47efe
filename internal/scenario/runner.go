// Package scenario runs approver selection offline against YAML fixtures.
package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("scenario %s has no cases", path)
	}
	return &s, nil
}

// Run evaluates every case with a fresh engine built from the scenario
// policy. Each successful case appends one record to sink, which may be nil.
func Run(ctx context.Context, s *Scenario, sink selection.AuditSink, log zerolog.Logger) *RunResult {
	engine := selection.NewEngine(s.Policy.Rules(selection.DefaultRules()), sink, log)
	constraints := s.constraints()

	result := &RunResult{Name: s.Name, Total: len(s.Cases)}
	for i, c := range s.Cases {
		pool := s.Pool
		if len(c.Pool) > 0 {
			pool = c.Pool
		}
		req := selection.EscalationRequest{
			Request: selection.Request{
				Pool:      candidates(pool),
				Requested: c.Requested,
				Amount:    selection.Money(c.Amount),
				Level:     selection.Level(c.Level),
				TaskID:    fmt.Sprintf("%s#%d", s.Name, i+1),
				Metadata:  map[string]any{"source": "scenario"},
			},
			TopTierPool: candidates(s.TopTierPool),
		}
		res := engine.SelectWithEscalation(ctx, req, constraints)

		cr := CaseResult{
			Index:      i + 1,
			Name:       c.Name,
			Outcome:    string(res.Outcome),
			ApproverID: res.Selected.ID,
			Method:     string(res.Method),
			Level:      int(res.Level),
			Workload:   res.Workload,
			Escalated:  res.Escalation != nil,
			Passed:     true,
		}
		if res.Escalation != nil {
			cr.Reason = res.Escalation.Reason
		}
		if c.Expect != nil {
			cr.Checked = true
			cr.Mismatch = c.Expect.check(cr)
			cr.Passed = cr.Mismatch == ""
		}
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(ctx context.Context, path string, sink selection.AuditSink, log zerolog.Logger) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	r := Run(ctx, s, sink, log)
	r.File = path
	return r, nil
}

func (e Expect) check(cr CaseResult) string {
	var diffs []string
	if e.Outcome != "" && !strings.EqualFold(e.Outcome, cr.Outcome) {
		diffs = append(diffs, fmt.Sprintf("outcome %s, got %s", e.Outcome, cr.Outcome))
	}
	if e.Approver != "" && e.Approver != cr.ApproverID {
		diffs = append(diffs, fmt.Sprintf("approver %s, got %s", e.Approver, cr.ApproverID))
	}
	if e.Method != "" && !strings.EqualFold(e.Method, cr.Method) {
		diffs = append(diffs, fmt.Sprintf("method %s, got %s", e.Method, cr.Method))
	}
	if e.Level != nil && *e.Level != cr.Level {
		diffs = append(diffs, fmt.Sprintf("level %d, got %d", *e.Level, cr.Level))
	}
	if e.Escalated != nil && *e.Escalated != cr.Escalated {
		diffs = append(diffs, fmt.Sprintf("escalated %t, got %t", *e.Escalated, cr.Escalated))
	}
	if len(diffs) == 0 {
		return ""
	}
	return "expected " + strings.Join(diffs, "; ")
}

func (s *Scenario) constraints() selection.Constraints {
	out := make(selection.Constraints, len(s.Constraints))
	for _, c := range s.Constraints {
		con := selection.Constraint{
			Available:  c.Available == nil || *c.Available,
			AutoAssign: c.AutoAssign == nil || *c.AutoAssign,
			Priority:   c.Priority,
		}
		if c.ApprovalLimit != nil {
			m := selection.Money(*c.ApprovalLimit)
			con.ApprovalLimit = &m
		}
		out[selection.ConstraintKey{ApproverID: c.ApproverID, Level: selection.Level(c.Level)}] = con
	}
	return out
}

func candidates(in []Approver) []selection.Candidate {
	if len(in) == 0 {
		return nil
	}
	out := make([]selection.Candidate, len(in))
	for i, a := range in {
		out[i] = selection.Candidate{ID: a.ID, DisplayName: a.Name, Role: a.Role, Workload: a.Workload}
	}
	return out
}
