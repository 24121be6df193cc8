package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/inreach/pkg/types"
)

// console prints run progress for the operator
type console struct {
	mu         sync.Mutex
	w          io.Writer
	confirmKey string
	skipKey    string
}

func newConsole(w io.Writer, confirmKey, skipKey string) *console {
	return &console{w: w, confirmKey: confirmKey, skipKey: skipKey}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// Listen renders one run event as a progress line.
func (c *console) Listen(e *types.RunEvent) {
	switch e.Type {
	case types.EventTypeRunStart:
		c.printf("%s\n", headerStyle.Render(fmt.Sprintf("▶ Run %d: %s", e.RunID, e.Message)))
	case types.EventTypeBatchStart:
		c.printf("%s\n", mutedStyle.Render(fmt.Sprintf("── batch %d", e.Batch)))
	case types.EventTypeRowOutcome:
		c.printf("%s\n", formatOutcome(e))
	case types.EventTypeGateWaiting:
		c.printf("%s\n", skippedStyle.Render(fmt.Sprintf("  ⏸  %s: review the draft in the browser (%s sends, %s skips)", e.Row.DisplayName(), c.confirmKey, c.skipKey)))
	case types.EventTypeQuotaExhausted:
		c.printf("%s\n", skippedStyle.Render(fmt.Sprintf("⏳ Daily limit reached, resuming at %s", e.Until.Format("Mon 15:04"))))
	case types.EventTypeBatchSkipped:
		c.printf("%s\n", failedStyle.Render("  ✗ "+e.Message))
	}
}

func formatOutcome(e *types.RunEvent) string {
	rec := e.Record
	label := rec.ProfileURL
	if e.Row != nil {
		label = e.Row.DisplayName()
	}

	var icon string
	switch rec.Status {
	case types.EmailSent:
		icon = "✓"
	case types.EmailSkipped:
		icon = "–"
	default:
		icon = "✗"
	}

	line := fmt.Sprintf("  %s #%d %s", icon, rec.RowIndex, label)
	if rec.Error != "" {
		line += mutedStyle.Render(" (" + rec.Error + ")")
	}
	return statusStyle(string(rec.Status)).Render(line)
}

// Summary prints the final result box.
func (c *console) Summary(r *types.RunResult) {
	c.printf("\n%s\n", renderSummary(r))
}

func renderSummary(r *types.RunResult) string {
	var b strings.Builder
	b.WriteString(statusStyle(string(r.Status)).Bold(true).Render(fmt.Sprintf("Run %d %s", r.RunID, r.Status)))
	b.WriteString("\n")
	b.WriteString(textStyle.Render(r.Message))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d",
		sentStyle.Render("Sent"), r.Sent,
		skippedStyle.Render("Skipped"), r.Skipped,
		failedStyle.Render("Failed"), r.Failed))
	if !r.EndedAt.IsZero() {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("   in %s", r.EndedAt.Sub(r.StartedAt).Round(time.Second))))
	}
	return summaryBoxStyle(r.Success()).Render(b.String())
}

// renderRuns lays out the run history as a table
func renderRuns(runs []*types.Run) string {
	if len(runs) == 0 {
		return mutedStyle.Render("No runs recorded yet.")
	}

	headers := []string{"RUN", "FILE", "STATUS", "STARTED", "ENDED", "LAST ROW", "ERROR"}
	cells := make([][]string, 0, len(runs))
	for _, run := range runs {
		ended := "-"
		if run.EndedAt != nil {
			ended = run.EndedAt.Format("2006-01-02 15:04")
		}
		last := "-"
		if run.LastProcessedRow >= 0 {
			last = fmt.Sprintf("%d", run.LastProcessedRow)
		}
		cells = append(cells, []string{
			fmt.Sprintf("%d", run.ID),
			run.FileName,
			string(run.Status),
			run.StartedAt.Format("2006-01-02 15:04"),
			ended,
			last,
			truncate(run.Error, 48),
		})
	}
	return renderTable(headers, cells, 2)
}

// renderEmails lays out the records of one run
func renderEmails(recs []*types.EmailRecord) string {
	if len(recs) == 0 {
		return mutedStyle.Render("No rows recorded for this run.")
	}

	headers := []string{"ROW", "PROFILE", "STATUS", "REASON", "SUBJECT", "ERROR"}
	cells := make([][]string, 0, len(recs))
	for _, rec := range recs {
		cells = append(cells, []string{
			fmt.Sprintf("%d", rec.RowIndex),
			truncate(rec.ProfileURL, 48),
			string(rec.Status),
			string(rec.Reason),
			truncate(rec.Subject, 32),
			truncate(rec.Error, 40),
		})
	}
	return renderTable(headers, cells, 2)
}

// renderTable pads columns to equal width. statusCol is colored by value.
func renderTable(headers []string, cells [][]string, statusCol int) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(cells)+1)
	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = columnHeaderStyle.Width(widths[i] + 2).Render(h)
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, head...))

	for _, row := range cells {
		out := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle
			if i == statusCol {
				style = statusStyle(cell).PaddingRight(2)
			}
			out[i] = style.Width(widths[i] + 2).Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, out...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
