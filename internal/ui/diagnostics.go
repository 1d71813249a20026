package ui

import (
	"fmt"
	"strings"

	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/session"
)

// LabelDiagnostics describes the label rule and shows how it maps the
// first few labels.
func LabelDiagnostics(rule string, samples []plan.LabelSample) []string {
	lines := []string{
		fmt.Sprintf("Applying friendly name rule: %s", rule),
		"Sample friendly name mappings:",
	}
	for _, s := range samples {
		line := fmt.Sprintf("  %q -> %q", s.Original, s.New)
		if s.Unchanged {
			line += " " + Hint("[unchanged]")
		}
		lines = append(lines, line)
	}
	return lines
}

// OutcomeLine is the one-line report for an update.
func OutcomeLine(o session.Outcome) string {
	if !o.Success {
		return Errorf("Failed to update entity '%s': %s", o.ID, o.Error)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity '%s'", o.ID)
	if o.NewID != "" {
		fmt.Fprintf(&sb, " renamed to '%s'", o.NewID)
	}
	if o.Label != "" {
		fmt.Fprintf(&sb, " with friendly name '%s'", o.Label)
	}
	sb.WriteString(" successfully!")
	return Success(sb.String())
}
