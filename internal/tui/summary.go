package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"comiconv/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows lists the totals of a batch run.
func SummaryRows(s processor.Summary, elapsed time.Duration) []SummaryRow {
	return []SummaryRow{
		{Label: "Archives converted", Value: fmt.Sprintf("%d/%d", s.Converted, s.Total)},
		{Label: "Archives failed", Value: humanize.Comma(int64(s.Errors))},
		{Label: "Pages converted", Value: humanize.Comma(int64(s.Images - s.Failed))},
		{Label: "Pages kept as-is", Value: humanize.Comma(int64(s.Failed))},
		{Label: "Space saved", Value: formatSaved(s.BytesSaved)},
		{Label: "Elapsed", Value: elapsed.Round(time.Millisecond).String()},
	}
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", TextStyle.Render(label), ValueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// RenderFailures lists the archives that could not be converted, one per
// line with the error kind, or returns "" when there are none.
func RenderFailures(reports []processor.Report) string {
	var lines []string
	for _, r := range reports {
		if r.Err == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			FailedStyle.Render(processor.ErrorKind(r.Err)),
			TextStyle.Render(r.Path),
			MutedStyle.Render(r.Err.Error()),
		))
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
