package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"comiconv/internal/archive"
	"comiconv/internal/processor"
)

func TestModelAccumulatesUpdates(t *testing.T) {
	var m tea.Model = NewModel(nil)
	for _, u := range []processor.ProgressUpdate{
		{Archive: "one.cbz", TotalDelta: 3},
		{ProcessedDelta: 1, BytesSavedDelta: 100},
		{ProcessedDelta: 1, ErrorDelta: 1},
		{Archive: "two.cbr", TotalDelta: 2},
		{ProcessedDelta: 1, BytesSavedDelta: 50},
	} {
		m, _ = m.Update(updateMsg(u))
	}

	got := m.(Model)
	if got.archives != 2 || got.archive != "two.cbr" {
		t.Fatalf("archives=%d current=%q", got.archives, got.archive)
	}
	if got.total != 5 || got.processed != 3 || got.errors != 1 || got.bytesSaved != 150 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if view := got.View(); !strings.Contains(view, "Pages: 3/5") {
		t.Fatalf("view missing page count:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.(Model).Interrupted() {
		t.Fatal("ctrl+c should mark the model interrupted")
	}
}

func TestRenderBarBounds(t *testing.T) {
	if bar := renderBar(10, 2); bar != "["+strings.Repeat("=", 10)+"]" {
		t.Fatalf("overfull bar: %q", bar)
	}
	if bar := renderBar(4, 0); bar != "[    ]" {
		t.Fatalf("empty bar: %q", bar)
	}
}

func TestFormatSaved(t *testing.T) {
	if got := formatSaved(2048); got != "2.0 KiB" {
		t.Fatalf("formatSaved(2048) = %q", got)
	}
	if got := formatSaved(-2048); got != "-2.0 KiB" {
		t.Fatalf("formatSaved(-2048) = %q", got)
	}
}

func TestSummaryAndFailures(t *testing.T) {
	rows := SummaryRows(processor.Summary{Total: 3, Converted: 2, Errors: 1, Images: 10, Failed: 1, BytesSaved: 1 << 20}, time.Second)
	if rows[0].Value != "2/3" || rows[2].Value != "9" || rows[4].Value != "1.0 MiB" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if out := RenderSummary(rows); !strings.Contains(out, "Archives converted") {
		t.Fatalf("summary missing label:\n%s", out)
	}

	reports := []processor.Report{
		{Path: "ok.cbz"},
		{Path: "bad.cbz", Err: fmt.Errorf("bad.cbz: %w", archive.ErrCorruptArchive)},
		{Path: "odd.cbz", Err: errors.New("odd")},
	}
	out := RenderFailures(reports)
	if strings.Contains(out, "ok.cbz") || !strings.Contains(out, "CorruptArchive") || !strings.Contains(out, "odd.cbz") {
		t.Fatalf("unexpected failures output:\n%s", out)
	}
	if RenderFailures(reports[:1]) != "" {
		t.Fatal("expected no output without failures")
	}
}
