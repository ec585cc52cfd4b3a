package train

import (
	"fmt"
	"strings"
)

// Render formats the modeling result as markdown, matching the report
// style of the profiling tools.
func (r *Result) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## AUTOMATED MODELING WORKFLOW\n")
	fmt.Fprintf(&b, "Target: %s\n", r.Target)
	fmt.Fprintf(&b, "Task: %s\n", r.Task)
	fmt.Fprintf(&b, "Rows Used: %d (train=%d, test=%d)\n", r.RowsUsed, r.TrainRows, r.TestRows)
	fmt.Fprintf(&b, "Seed: %d\n", r.Seed)
	if len(r.Classes) > 0 {
		fmt.Fprintf(&b, "Classes: %s\n", strings.Join(r.Classes, ", "))
	}

	b.WriteString("\n### Feature Pipeline\n")
	if len(r.Spec.Numeric) > 0 {
		fmt.Fprintf(&b, "- numeric (median impute + standardize): %s\n", strings.Join(r.Spec.Numeric, ", "))
	}
	if len(r.Spec.Categorical) > 0 {
		fmt.Fprintf(&b, "- categorical (mode impute + one-hot): %s\n", strings.Join(r.Spec.Categorical, ", "))
	}
	if len(r.Spec.Dropped) > 0 {
		fmt.Fprintf(&b, "- dropped: %s\n", strings.Join(r.Spec.Dropped, ", "))
	}
	fmt.Fprintf(&b, "- encoded feature count: %d\n", len(r.Features))

	b.WriteString("\n### Model Results\n")
	for _, m := range r.Models {
		parts := make([]string, len(m.Metrics))
		for i, metric := range m.Metrics {
			parts[i] = fmt.Sprintf("%s=%.4f", metric.Name, metric.Value)
		}
		marker := ""
		if m.Name == r.Best {
			marker = " (best)"
		}
		fmt.Fprintf(&b, "- %s%s: %s\n", m.Name, marker, strings.Join(parts, " "))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n### Warnings\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
