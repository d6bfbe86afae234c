package bulkdiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxRenderedChanges bounds per-entity detail in text output so a huge batch
// stays readable.
const maxRenderedChanges = 20

// Text renders the report as a plain terminal summary.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diff report: %s\n", r.EntityType)
	fmt.Fprintf(&b, "  unchanged: %d\n  changed:   %d\n  new:       %d\n  missing:   %d\n",
		r.Unchanged, r.Changed, r.New, r.Missing)
	fmt.Fprintf(&b, "  conflicts: %d warning, %d blocking\n", r.WarningConflicts, r.BlockingConflicts)
	if r.CanAutoPromote() {
		b.WriteString("  auto-promote: yes\n")
	} else {
		b.WriteString("  auto-promote: NO (blocking conflicts present)\n")
	}

	rendered := 0
	for i := range r.Diffs {
		d := &r.Diffs[i]
		if d.Status != StatusChanged {
			continue
		}
		for _, c := range d.Changes {
			if rendered >= maxRenderedChanges {
				fmt.Fprintf(&b, "  ... and more (see --json for the full report)\n")
				return b.String()
			}
			marker := " "
			if c.IsConflict {
				marker = "!"
				if c.Severity == SeverityBlock {
					marker = "X"
				}
			}
			fmt.Fprintf(&b, "  %s %s.%s: %v -> %v\n", marker, d.Key, c.Field, c.Old, c.New)
			rendered++
		}
	}
	return b.String()
}

// Markdown renders the report as a markdown document for review threads.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Diff report: %s\n\n", r.EntityType)
	b.WriteString("| Status | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| unchanged | %d |\n| changed | %d |\n| new | %d |\n| missing | %d |\n",
		r.Unchanged, r.Changed, r.New, r.Missing)
	fmt.Fprintf(&b, "| warning conflicts | %d |\n| blocking conflicts | %d |\n\n",
		r.WarningConflicts, r.BlockingConflicts)

	if r.Changed > 0 {
		b.WriteString("### Changes\n\n| Key | Field | Old | New | Conflict |\n|---|---|---|---|---|\n")
		for i := range r.Diffs {
			d := &r.Diffs[i]
			for _, c := range d.Changes {
				conflict := ""
				if c.IsConflict {
					conflict = string(c.Severity)
				}
				fmt.Fprintf(&b, "| %s | %s | %v | %v | %s |\n", d.Key, c.Field, c.Old, c.New, conflict)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// JSON renders the full report, including every per-entity diff.
func (r *Report) JSON() (string, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
