package store

import (
	"fmt"
	"strings"
)

// FormatMarkdown renders res as a markdown table for chat transcripts and
// agent tool output.
func FormatMarkdown(res *Result) string {
	if res == nil || len(res.Rows) == 0 {
		return "No results found.\n"
	}

	var b strings.Builder
	b.WriteString("| ")
	for _, col := range res.Columns {
		b.WriteString(escapeCell(col))
		b.WriteString(" | ")
	}
	b.WriteString("\n|")
	for range res.Columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	for _, row := range res.Rows {
		b.WriteString("| ")
		for _, val := range row {
			switch v := val.(type) {
			case nil:
				b.WriteString("NULL")
			case float64:
				b.WriteString(fmt.Sprintf("%.2f", v))
			case float32:
				b.WriteString(fmt.Sprintf("%.2f", v))
			default:
				b.WriteString(escapeCell(fmt.Sprint(v)))
			}
			b.WriteString(" | ")
		}
		b.WriteString("\n")
	}

	if res.Truncated {
		b.WriteString(fmt.Sprintf("\n*(Showing first %d results)*\n", len(res.Rows)))
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
