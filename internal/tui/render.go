package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/assistant"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
)

// renderMarkdown renders markdown content with glamour for terminal display
func renderMarkdown(content string, width int) (string, error) {
	// Account for borders, padding, and glamour's internal gutter
	const glamourGutter = 2
	const borderWidth = 4

	renderWidth := width - borderWidth - glamourGutter
	if renderWidth < 40 {
		renderWidth = 40
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// BarChart creates a horizontal bar chart
func BarChart(label string, value, max float64, width int, color lipgloss.Color) string {
	if max == 0 {
		max = value
	}

	percentage := 0.0
	if max > 0 {
		percentage = value / max
	}
	if percentage > 1 {
		percentage = 1
	}

	filledWidth := int(float64(width) * percentage)
	if filledWidth < 0 {
		filledWidth = 0
	}
	if filledWidth > width {
		filledWidth = width
	}

	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", width-filledWidth)

	barStyle := lipgloss.NewStyle().Foreground(color)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	return fmt.Sprintf("%s %s%s %.0f",
		label,
		barStyle.Render(filled),
		emptyStyle.Render(empty),
		value,
	)
}

// rowCountBars draws one bar per table, scaled to the largest table.
func rowCountBars(counts map[string]int64, labelWidth, barWidth int) string {
	if len(counts) == 0 {
		return ""
	}
	names := make([]string, 0, len(counts))
	var largest int64
	for name, n := range counts {
		names = append(names, name)
		if n > largest {
			largest = n
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		label := name
		if len(label) > labelWidth {
			label = label[:labelWidth-1] + "…"
		}
		b.WriteString(BarChart(fmt.Sprintf("%-*s", labelWidth, label), float64(counts[name]), float64(largest), barWidth, lipgloss.Color("62")))
		b.WriteString("\n")
	}
	return b.String()
}

func answerMarkdown(ans *assistant.Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ans.Question)
	if ans.SQL != "" {
		fmt.Fprintf(&b, "## SQL\n\n```sql\n%s\n```\n\n", ans.SQL)
	}
	if ans.Preview != "" {
		fmt.Fprintf(&b, "## Data Preview\n\n%s\n", ans.Preview)
	}
	if ans.SQLError != "" {
		fmt.Fprintf(&b, "> SQL step failed: %s\n\n", ans.SQLError)
	}
	if ans.Report != nil {
		if ans.Report.Summary != "" {
			fmt.Fprintf(&b, "## Report\n\n%s\n\n", ans.Report.Summary)
		}
		if ans.Report.Analysis != "" {
			fmt.Fprintf(&b, "## Analysis\n\n%s\n", ans.Report.Analysis)
		}
	}
	return b.String()
}

func ingestMarkdown(res *ingest.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Loaded into %s\n\n", res.StoreID)
	if res.Cached {
		b.WriteString("_Sources unchanged since the last load; nothing was rewritten._\n\n")
	}
	b.WriteString("| table | rows | columns | source |\n|---|---|---|---|\n")
	for _, t := range res.Tables {
		fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", t.Table, t.Rows, t.Columns, t.Source)
	}
	return b.String()
}

func detailMarkdown(d *catalog.TableDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%d rows, %d columns\n\n", d.TableName, d.RowCount, d.ColumnCount)
	b.WriteString("| column | type | nullable |\n|---|---|---|\n")
	for _, c := range d.Columns {
		fmt.Fprintf(&b, "| %s | %s | %t |\n", c.Name, c.Type, c.Nullable)
	}
	return b.String()
}
