package ui

import (
	"strings"
	"unicode/utf8"
)

// AlignOnDot lines up the first "." of every cell in a column that has
// one, left-padding the text before it to the widest such prefix in that
// column. Cells without a dot are left alone. The input is not modified.
func AlignOnDot(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}

	out := make([][]string, len(rows))
	cols := 0
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
		if len(row) > cols {
			cols = len(row)
		}
	}

	for col := 0; col < cols; col++ {
		width := -1
		for _, row := range out {
			if col >= len(row) {
				continue
			}
			if before, _, ok := strings.Cut(row[col], "."); ok {
				if n := utf8.RuneCountInString(before); n > width {
					width = n
				}
			}
		}
		if width < 0 {
			continue
		}
		for _, row := range out {
			if col >= len(row) {
				continue
			}
			before, after, ok := strings.Cut(row[col], ".")
			if !ok {
				continue
			}
			pad := width - utf8.RuneCountInString(before)
			row[col] = strings.Repeat(" ", pad) + before + "." + after
		}
	}
	return out
}
