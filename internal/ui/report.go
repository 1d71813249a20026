package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/session"
)

// Report summarizes an apply run.
type Report struct {
	RunID        int64
	Host         string
	Source       plan.Source
	Planned      int
	Outcomes     []session.Outcome
	ChannelError string
	Duration     time.Duration
}

// Counts returns the number of successful and failed outcomes.
func (r Report) Counts() (succeeded, failed int) {
	for _, o := range r.Outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Summary is the closing one-line summary printed after an apply.
func (r Report) Summary() string {
	succeeded, failed := r.Counts()
	noun := "entities"
	if r.Planned == 1 {
		noun = "entity"
	}
	msg := fmt.Sprintf("Renamed %d of %d %s", succeeded, r.Planned, noun)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	if skipped := r.Planned - len(r.Outcomes); skipped > 0 {
		msg += fmt.Sprintf(", %d not sent", skipped)
	}
	if failed > 0 || r.ChannelError != "" {
		return Warning(msg)
	}
	return Success(msg)
}

// Markdown renders the run as a markdown document.
func (r Report) Markdown() string {
	succeeded, failed := r.Counts()

	var sb strings.Builder
	sb.WriteString("# Rename run")
	if r.RunID > 0 {
		fmt.Fprintf(&sb, " %d", r.RunID)
	}
	sb.WriteString("\n\n")
	if r.Host != "" {
		fmt.Fprintf(&sb, "- **Host:** `%s`\n", r.Host)
	}
	if r.Source != "" {
		fmt.Fprintf(&sb, "- **Source:** %s\n", r.Source)
	}
	fmt.Fprintf(&sb, "- **Planned:** %d\n", r.Planned)
	fmt.Fprintf(&sb, "- **Succeeded:** %d\n", succeeded)
	fmt.Fprintf(&sb, "- **Failed:** %d\n", failed)
	if r.Duration > 0 {
		fmt.Fprintf(&sb, "- **Duration:** %s\n", r.Duration.Round(time.Millisecond))
	}
	if r.ChannelError != "" {
		fmt.Fprintf(&sb, "\n> Connection lost: %s. Rows after the last outcome were not sent.\n", r.ChannelError)
	}

	if len(r.Outcomes) > 0 {
		sb.WriteString("\n## Outcomes\n\n")
		sb.WriteString("| # | Entity | New Entity ID | Friendly Name | Result |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for i, o := range r.Outcomes {
			result := "ok"
			if !o.Success {
				result = "failed: " + o.Error
			}
			fmt.Fprintf(&sb, "| %d | `%s` | %s | %s | %s |\n",
				i+1, o.ID, codeOrDash(o.NewID), cellOrDash(o.Label), escapeCell(result))
		}
	}
	return sb.String()
}

func codeOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + s + "`"
}

func cellOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return escapeCell(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
