package outreach

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/inreach/pkg/types"
)

// ArtifactWriter handles writing run summary artifacts
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
	}
}

// RunSummary contains a complete summary of one run
type RunSummary struct {
	RunID     int64           `json:"run_id"`
	FileName  string          `json:"file_name"`
	Status    types.RunStatus `json:"status"`
	Message   string          `json:"message"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Metrics   RunMetrics      `json:"metrics"`
	Records   []RecordSummary `json:"records"`
}

// RunMetrics contains run counters
type RunMetrics struct {
	Dispatched     int `json:"dispatched"`
	Sent           int `json:"sent"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	Batches        int `json:"batches"`
	SkippedBatches int `json:"skipped_batches"`
	QuotaWaits     int `json:"quota_waits"`
}

// RecordSummary is one row outcome in the summary
type RecordSummary struct {
	RowIndex   int               `json:"row_index"`
	ProfileURL string            `json:"profile_url"`
	Status     types.EmailStatus `json:"status"`
	Reason     types.Reason      `json:"reason,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// WriteAll writes the JSON report and the markdown summary
func (w *ArtifactWriter) WriteAll(summary *RunSummary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteRunJSON(summary); err != nil {
		return fmt.Errorf("failed to write run JSON: %w", err)
	}

	if err := w.WriteSummaryMarkdown(summary); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	return nil
}

func (w *ArtifactWriter) path(summary *RunSummary, ext string) string {
	return filepath.Join(w.outputDir, fmt.Sprintf("run-%d.%s", summary.RunID, ext))
}

// WriteRunJSON writes the full run summary as JSON
func (w *ArtifactWriter) WriteRunJSON(summary *RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if writeErr := os.WriteFile(w.path(summary, "json"), data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write run JSON: %w", writeErr)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *RunSummary) error {
	var md strings.Builder

	md.WriteString(fmt.Sprintf("# Outreach Run %d\n\n", summary.RunID))
	md.WriteString(fmt.Sprintf("**Source:** %s\n\n", summary.FileName))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Ended:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration.Round(time.Second)))

	md.WriteString("## Result\n\n")
	if summary.Status == types.RunCompleted {
		md.WriteString("✅ " + summary.Message + "\n\n")
	} else {
		md.WriteString("❌ " + summary.Message + "\n\n")
	}

	md.WriteString("## Metrics\n\n")
	md.WriteString(fmt.Sprintf("- **Rows Dispatched:** %d\n", summary.Metrics.Dispatched))
	md.WriteString(fmt.Sprintf("- **Sent:** %d\n", summary.Metrics.Sent))
	md.WriteString(fmt.Sprintf("- **Skipped:** %d\n", summary.Metrics.Skipped))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", summary.Metrics.Failed))
	md.WriteString(fmt.Sprintf("- **Batches:** %d (%d skipped)\n", summary.Metrics.Batches, summary.Metrics.SkippedBatches))
	md.WriteString(fmt.Sprintf("- **Quota Waits:** %d\n", summary.Metrics.QuotaWaits))

	if len(summary.Records) > 0 {
		md.WriteString("\n## Rows\n\n")
		md.WriteString("| Row | Profile | Status | Reason | Error |\n")
		md.WriteString("|---|---|---|---|---|\n")
		for _, rec := range summary.Records {
			md.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				rec.RowIndex, rec.ProfileURL, rec.Status, rec.Reason, escapeCell(rec.Error)))
		}
	}

	if writeErr := os.WriteFile(w.path(summary, "md"), []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}
	return nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
