package profile

import (
	"fmt"
	"strings"
)

// Render formats the overview the way the assistant expects: a markdown
// block with schema, stats and a small sample table.
func (r *OverviewReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## DATASET OVERVIEW\n")
	fmt.Fprintf(&b, "Path: %s\n", r.Path)
	fmt.Fprintf(&b, "Format: %s\n", r.Format)
	fmt.Fprintf(&b, "File Size: %s\n", r.FileSize)
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n\n", r.Columns)

	b.WriteString("### Schema\n")
	for _, s := range r.Stats {
		fmt.Fprintf(&b, "- %s: %s (distinct=%d, missing=%d)\n", s.Name, s.Type, s.Distinct, s.Missing)
	}

	b.WriteString("\n### Column Stats\n")
	for _, s := range r.Stats {
		switch {
		case s.Type == "numeric":
			fmt.Fprintf(&b, "- %s: min=%.4g max=%.4g mean=%.4g std=%.4g\n",
				s.Name, s.Min, s.Max, s.Mean, s.Std)
		case len(s.TopCategories) > 0:
			parts := make([]string, len(s.TopCategories))
			for i, c := range s.TopCategories {
				parts[i] = fmt.Sprintf("%s(%d)", c.Value, c.Count)
			}
			fmt.Fprintf(&b, "- %s: top %s\n", s.Name, strings.Join(parts, ", "))
		}
	}

	fmt.Fprintf(&b, "\n### Sample (up to %d rows)\n", len(r.Sample))
	if len(r.Sample) == 0 {
		b.WriteString("(dataset sample returned 0 rows)\n")
		return b.String()
	}
	names := make([]string, len(r.Stats))
	for i, s := range r.Stats {
		names[i] = s.Name
	}
	b.WriteString(strings.Join(names, " | "))
	b.WriteByte('\n')
	for _, row := range r.Sample {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}

// Render formats the quality report as markdown.
func (r *QualityReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## DATASET QUALITY REPORT\n")
	fmt.Fprintf(&b, "Path: %s\n", r.Path)
	fmt.Fprintf(&b, "Rows Analyzed: %d\n", r.Rows)
	fmt.Fprintf(&b, "Duplicate Rows: %d\n\n", r.DuplicateRows)

	b.WriteString("### Missing Values\n")
	any := false
	for _, c := range r.Columns {
		if c.MissingRatio > 0 {
			fmt.Fprintf(&b, "- %s: %.2f%%\n", c.Name, c.MissingRatio*100)
			any = true
		}
	}
	if !any {
		b.WriteString("(no missing values detected)\n")
	}

	b.WriteString("\n### Cardinality\n")
	for _, c := range r.Columns {
		flags := ""
		if c.NearConstant {
			flags = " [near-constant]"
		}
		if c.NearUnique {
			flags = " [near-unique]"
		}
		fmt.Fprintf(&b, "- %s: %d distinct%s\n", c.Name, c.Distinct, flags)
	}
	return b.String()
}

// Render formats the correlation report as markdown.
func (r *CorrelationReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## DATASET CORRELATION REPORT\n")
	fmt.Fprintf(&b, "Path: %s\n", r.Path)
	if r.Target != "" {
		fmt.Fprintf(&b, "\n### Correlations vs target '%s'\n", r.Target)
	} else {
		b.WriteString("\n### Top correlation pairs\n")
	}
	if len(r.Entries) == 0 {
		b.WriteString("(no correlation pairs above threshold)\n")
		return b.String()
	}
	for _, e := range r.Entries {
		if r.Target != "" {
			fmt.Fprintf(&b, "- %s: %.4f\n", e.Feature, e.Coefficient)
		} else {
			fmt.Fprintf(&b, "- %s ~ %s: %.4f\n", e.Feature, e.Other, e.Coefficient)
		}
	}
	return b.String()
}
