package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hassrename/hren/internal/plan"
)

// Plan table headers.
const (
	HeaderLabel    = "Friendly Name"
	HeaderID       = "Current Entity ID"
	HeaderNewID    = "New Entity ID"
	HeaderNewLabel = "New Friendly Name"
)

// PlanRows returns the plan as display cells, dot-aligned. With
// showLabels a fourth New Friendly Name column is added; it is blank
// unless the plan has an active label rule.
func PlanRows(p *plan.Plan, showLabels bool) [][]string {
	labelsActive := p.LabelRuleActive()
	rows := make([][]string, 0, p.Len())
	for _, r := range p.Rows {
		cells := []string{r.OriginalLabel, r.ID, r.NewID}
		if showLabels {
			newLabel := ""
			if labelsActive {
				newLabel = r.NewLabel
			}
			cells = append(cells, newLabel)
		}
		rows = append(rows, cells)
	}
	return AlignOnDot(rows)
}

// PlanTable renders the plan for review.
func PlanTable(p *plan.Plan, showLabels bool) string {
	headers := []string{HeaderLabel, HeaderID, HeaderNewID}
	if showLabels {
		headers = append(headers, HeaderNewLabel)
	}

	return Table(headers, PlanRows(p, showLabels))
}

// Table renders rows under an accented header with a muted rule and no
// column borders.
func Table(headers []string, rows [][]string) string {
	tbl := table.New().
		Border(lipgloss.Border{
			Top:    "─",
			Bottom: "─",
			Left:   "",
			Right:  "",
			Middle: "─",
		}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderRow(false).
		BorderColumn(false).
		BorderStyle(Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle()
			if row == table.HeaderRow {
				style = AccentBold
			}
			if col < len(headers)-1 {
				style = style.PaddingRight(2)
			}
			return style
		}).
		Headers(headers...).
		Rows(rows...)

	return tbl.Render()
}
