package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/types"
)

func TestConsoleListen(t *testing.T) {
	var buf bytes.Buffer
	out := newConsole(&buf, "Enter", "Backspace")
	row := types.ProfileRow{Index: 4, FirstName: "Jane", LastName: "Doe", ProfileURL: "https://www.linkedin.com/in/jane"}

	out.Listen(&types.RunEvent{Type: types.EventTypeRunStart, RunID: 7, Message: "leads.csv"})
	out.Listen(&types.RunEvent{Type: types.EventTypeGateWaiting, Row: &row})
	out.Listen(&types.RunEvent{
		Type:   types.EventTypeRowOutcome,
		Row:    &row,
		Record: &types.EmailRecord{RowIndex: 4, Status: types.EmailSkipped, Error: "no recipient channel"},
	})
	out.Listen(&types.RunEvent{Type: types.EventTypeQuotaExhausted, Until: time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local)})

	got := buf.String()
	for _, want := range []string{"Run 7: leads.csv", "Enter sends", "#4 Jane Doe", "no recipient channel", "resuming at Tue 00:00"} {
		assert.Contains(t, got, want)
	}
}

func TestRenderRuns(t *testing.T) {
	ended := time.Date(2024, 3, 4, 11, 0, 0, 0, time.Local)
	runs := []*types.Run{
		{ID: 2, FileName: "leads.csv", Status: types.RunRunning, StartedAt: ended, LastProcessedRow: -1},
		{ID: 1, FileName: "leads.csv", Status: types.RunFailed, StartedAt: ended.Add(-time.Hour), EndedAt: &ended, Error: "browser session launch failed", LastProcessedRow: 9},
	}

	table := renderRuns(runs)
	lines := strings.Split(table, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "Running")
	assert.Contains(t, lines[2], "launch failed")
	assert.Contains(t, lines[2], "9")

	assert.Contains(t, renderRuns(nil), "No runs")
}

func TestRenderEmails(t *testing.T) {
	recs := []*types.EmailRecord{
		{RowIndex: 0, ProfileURL: "https://www.linkedin.com/in/a", Status: types.EmailSent, Subject: "Hello"},
		{RowIndex: 1, ProfileURL: "https://www.linkedin.com/in/b", Status: types.EmailFailed, Reason: types.ReasonTimeout, Error: "timeout"},
	}
	table := renderEmails(recs)
	assert.Contains(t, table, "Hello")
	assert.Contains(t, table, "timeout")
	assert.Contains(t, renderEmails(nil), "No rows")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}

func TestRunFlagsOverrideOnlyWhatIsSet(t *testing.T) {
	flags, fs, err := parseRunFlags([]string{"-gate", "-daily-limit", "-1", "leads.csv"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Run.BatchSize = 7
	flags.apply(fs, cfg)

	assert.True(t, cfg.Gate.Enabled)
	assert.Equal(t, -1, cfg.Run.DailyLimit)
	assert.Equal(t, 7, cfg.Run.BatchSize)
	assert.Equal(t, "leads.csv", fs.Arg(0))
}

func TestRenderSummary(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	got := renderSummary(&types.RunResult{
		RunID: 3, Status: types.RunCompleted, Message: "processed 3 rows",
		Sent: 3, StartedAt: start, EndedAt: start.Add(90 * time.Second),
	})
	assert.Contains(t, got, "Run 3 Completed")
	assert.Contains(t, got, "1m30s")
}
