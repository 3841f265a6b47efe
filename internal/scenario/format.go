package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a run result as human-readable text.
func FormatText(r *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario %q: %d case", r.Name, r.Total)
	if r.Total != 1 {
		b.WriteString("s")
	}
	b.WriteString("\n\n")

	for _, c := range r.Cases {
		status := "    "
		if c.Checked {
			status = "PASS"
			if !c.Passed {
				status = "FAIL"
			}
		}
		label := c.Name
		if label == "" {
			label = fmt.Sprintf("case %d", c.Index)
		}
		if c.ApproverID == "" {
			fmt.Fprintf(&b, "  %s  %-28s %s\n", status, label, c.Outcome)
		} else {
			fmt.Fprintf(&b, "  %s  %-28s %-12s level=%d method=%s workload=%d\n",
				status, label, c.ApproverID, c.Level, c.Method, c.Workload)
		}
		if c.Escalated {
			fmt.Fprintf(&b, "        escalated: %s\n", c.Reason)
		}
		if c.Mismatch != "" {
			fmt.Fprintf(&b, "        %s\n", c.Mismatch)
		}
	}

	fmt.Fprintf(&b, "\n%d of %d cases passed.\n", r.Passed, r.Total)
	return b.String()
}

// FormatJSON renders a run result as JSON.
func FormatJSON(r *RunResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
