package chambers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/llm"
	"github.com/lazypower/palace/internal/store"
)

func testEngine(t *testing.T, root string, sum llm.Summarizer) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cfg := config.Default()
	cfg.Corpus.Root = root
	return New(db, sum, cfg.Corpus, cfg.Chambers)
}

func fixNow(e *Engine, at time.Time) {
	e.Now = func() time.Time { return at }
}

func TestClassifyBoundaries(t *testing.T) {
	e := testEngine(t, "", nil)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"fresh", day.Add(1 * time.Hour), store.Tier1},
		{"just under 48h", day.Add(48*time.Hour - time.Minute), store.Tier1},
		{"exactly 48h", day.Add(48 * time.Hour), store.Tier2},
		{"five days", day.Add(5 * 24 * time.Hour), store.Tier2},
		{"just under 7d", day.Add(7*24*time.Hour - time.Minute), store.Tier2},
		{"exactly 7d", day.Add(7 * 24 * time.Hour), store.Tier3},
	}
	for _, tt := range tests {
		fixNow(e, tt.now)
		if got := e.Classify("2026-08-20-notes.md"); got != tt.want {
			t.Errorf("%s: Classify = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestClassifyUndated(t *testing.T) {
	e := testEngine(t, t.TempDir(), nil)
	fixNow(e, time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local))

	// No filename date, no file on disk: the undated sentinel makes the
	// unit maximally old.
	if got := e.Classify("missing-note.md"); got != store.Tier3 {
		t.Errorf("Classify undated = %s, want %s", got, store.Tier3)
	}
}

func TestClassifyFutureDate(t *testing.T) {
	e := testEngine(t, "", nil)
	fixNow(e, time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local))

	if got := e.Classify("2026-09-01-planned.md"); got != store.Tier1 {
		t.Errorf("Classify future-dated = %s, want %s", got, store.Tier1)
	}
}

func TestClassifyMtimeFallback(t *testing.T) {
	root := t.TempDir()
	e := testEngine(t, root, nil)
	fixNow(e, time.Now())

	path := filepath.Join(root, "undated.md")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if got := e.Classify("undated.md"); got != store.Tier2 {
		t.Errorf("Classify by mtime = %s, want %s", got, store.Tier2)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"summaries", "lessons"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	write := func(rel string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(root, rel), []byte("note"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("2026-01-01-raw.md")
	write("summaries/2026-01-01-raw-summary.md")
	write("lessons/2026-01-01-raw-lesson.md")
	write("ignore.txt")

	e := testEngine(t, root, nil)
	tracked, err := e.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if tracked != 3 {
		t.Errorf("tracked = %d, want 3", tracked)
	}

	for rel, want := range map[string]string{
		"2026-01-01-raw.md":                   store.Tier1,
		"summaries/2026-01-01-raw-summary.md": store.Tier2,
		"lessons/2026-01-01-raw-lesson.md":    store.Tier3,
	} {
		rec, err := e.DB.GetRecord(rel, 0, 0)
		if err != nil {
			t.Fatalf("GetRecord %s: %v", rel, err)
		}
		if rec == nil {
			t.Fatalf("%s not tracked", rel)
		}
		if rec.Chamber != want {
			t.Errorf("%s chamber = %s, want %s", rel, rec.Chamber, want)
		}
	}

	// Idempotent
	tracked, err = e.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if tracked != 0 {
		t.Errorf("tracked = %d on re-scan, want 0", tracked)
	}
}

func TestReclassify(t *testing.T) {
	e := testEngine(t, "", nil)

	// A summary-tree file tracked at tier1 lags its location.
	if err := e.DB.CreateRecord(&store.Record{Path: "summaries/old-summary.md", Chamber: store.Tier1}); err != nil {
		t.Fatal(err)
	}
	// A lesson-tree record already at tier3 stays put.
	if err := e.DB.CreateRecord(&store.Record{Path: "lessons/done-lesson.md", Chamber: store.Tier3}); err != nil {
		t.Fatal(err)
	}

	advanced, err := e.Reclassify(context.Background())
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if advanced != 1 {
		t.Errorf("advanced = %d, want 1", advanced)
	}
	rec, _ := e.DB.GetRecord("summaries/old-summary.md", 0, 0)
	if rec.Chamber != store.Tier2 {
		t.Errorf("chamber = %s, want %s", rec.Chamber, store.Tier2)
	}

	advanced, _ = e.Reclassify(context.Background())
	if advanced != 0 {
		t.Errorf("advanced = %d on re-run, want 0", advanced)
	}
}

func TestReset(t *testing.T) {
	e := testEngine(t, "", nil)

	err := e.Reset("a.md", 0, 0, "attic")
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("unknown chamber: err = %v, want ErrInvalidArgument", err)
	}
	err = e.Reset("a.md", 0, 0, store.Tier1)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("untracked: err = %v, want ErrNotFound", err)
	}

	if err := e.DB.CreateRecord(&store.Record{Path: "a.md", Chamber: store.Tier3}); err != nil {
		t.Fatal(err)
	}
	if err := e.Reset("a.md", 0, 0, store.Tier1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	rec, _ := e.DB.GetRecord("a.md", 0, 0)
	if rec.Chamber != store.Tier1 {
		t.Errorf("chamber = %s, want %s after reset", rec.Chamber, store.Tier1)
	}
}

func TestPromoteBatchIsolation(t *testing.T) {
	root := t.TempDir()
	mock := &llm.MockSummarizer{Text: "a short summary", FailOn: "poison"}
	e := testEngine(t, root, mock)
	fixNow(e, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	for i := 0; i < 10; i++ {
		rel := fmt.Sprintf("2026-01-01-note-%02d.md", i)
		content := "ordinary notes"
		if i == 4 {
			content = "poison payload"
		}
		if err := os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := e.DB.CreateRecord(&store.Record{Path: rel, Chamber: store.Tier1}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := e.Promote(context.Background(), false)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if report.Count != 9 {
		t.Errorf("Count = %d, want 9", report.Count)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	markers := 0
	for _, d := range report.Details {
		if d.Marker {
			markers++
			if d.Path != "2026-01-01-note-04.md" {
				t.Errorf("marker on %s, want note-04", d.Path)
			}
		}
	}
	if markers != 1 {
		t.Errorf("markers = %d, want 1", markers)
	}

	// Successes advanced, failure stayed for retry.
	rec, _ := e.DB.GetRecord("2026-01-01-note-00.md", 0, 0)
	if rec.Chamber != store.Tier2 {
		t.Errorf("note-00 chamber = %s, want %s", rec.Chamber, store.Tier2)
	}
	rec, _ = e.DB.GetRecord("2026-01-01-note-04.md", 0, 0)
	if rec.Chamber != store.Tier1 {
		t.Errorf("note-04 chamber = %s, want %s", rec.Chamber, store.Tier1)
	}

	// Summary file carries the provenance header plus the body.
	data, err := os.ReadFile(filepath.Join(root, "summaries", "2026-01-01-note-00-summary.md"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\npromoted_at:") {
		t.Errorf("summary missing header: %q", string(data)[:40])
	}
	if !strings.Contains(string(data), "a short summary") {
		t.Error("summary missing body")
	}

	// Marker file is written and visibly failed.
	data, err = os.ReadFile(filepath.Join(root, "summaries", "2026-01-01-note-04-summary.md"))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if !strings.Contains(string(data), "[summarization failed:") {
		t.Errorf("marker file content = %q", string(data))
	}

	// The derived unit is tracked at the target tier with its source.
	derived, _ := e.DB.GetRecord("summaries/2026-01-01-note-00-summary.md", 0, 0)
	if derived == nil {
		t.Fatal("derived record not tracked")
	}
	if derived.Chamber != store.Tier2 || derived.SourceChunk != "2026-01-01-note-00.md" {
		t.Errorf("derived = chamber %s source %q", derived.Chamber, derived.SourceChunk)
	}

	for _, mode := range mock.Calls {
		if mode != llm.ModeSummary {
			t.Errorf("Summarize called with mode %s, want %s", mode, llm.ModeSummary)
		}
	}
}

func TestPromoteDryRun(t *testing.T) {
	root := t.TempDir()
	mock := &llm.MockSummarizer{Text: "unused"}
	e := testEngine(t, root, mock)
	fixNow(e, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	if err := os.WriteFile(filepath.Join(root, "2026-01-01-a.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: "2026-01-01-a.md", Chamber: store.Tier1}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Promote(context.Background(), true)
	if err != nil {
		t.Fatalf("Promote dry-run: %v", err)
	}
	if !report.DryRun {
		t.Error("DryRun = false")
	}
	if report.Count != 1 {
		t.Errorf("Count = %d, want 1", report.Count)
	}
	if len(mock.Calls) != 0 {
		t.Errorf("Summarize called %d times during dry-run", len(mock.Calls))
	}
	if _, err := os.Stat(filepath.Join(root, "summaries")); !os.IsNotExist(err) {
		t.Error("dry-run wrote the summaries dir")
	}
	rec, _ := e.DB.GetRecord("2026-01-01-a.md", 0, 0)
	if rec.Chamber != store.Tier1 {
		t.Errorf("dry-run advanced chamber to %s", rec.Chamber)
	}
}

func TestPromoteSkipsIneligible(t *testing.T) {
	root := t.TempDir()
	e := testEngine(t, root, &llm.MockSummarizer{Text: "s"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	fixNow(e, now)

	fresh := now.Format("2006-01-02") + "-fresh.md"
	if err := os.WriteFile(filepath.Join(root, fresh), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: fresh, Chamber: store.Tier1}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "2026-01-01-old.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: "2026-01-01-old.md", Chamber: store.Tier1, SupersededBy: "elsewhere.md"}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Promote(context.Background(), false)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if report.Count != 0 || report.Failed != 0 {
		t.Errorf("report = %+v, want empty (too young / superseded)", report)
	}
}

func TestCrystallize(t *testing.T) {
	root := t.TempDir()
	mock := &llm.MockSummarizer{Text: "- distilled lesson"}
	e := testEngine(t, root, mock)
	fixNow(e, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	if err := os.MkdirAll(filepath.Join(root, "summaries"), 0o755); err != nil {
		t.Fatal(err)
	}
	rel := "summaries/2026-01-01-note-summary.md"
	if err := os.WriteFile(filepath.Join(root, rel), []byte("summary text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: rel, Chamber: store.Tier2}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Crystallize(context.Background(), false)
	if err != nil {
		t.Fatalf("Crystallize: %v", err)
	}
	if report.Count != 1 {
		t.Fatalf("Count = %d, want 1: %+v", report.Count, report)
	}

	rec, _ := e.DB.GetRecord(rel, 0, 0)
	if rec.Chamber != store.Tier3 {
		t.Errorf("chamber = %s, want %s", rec.Chamber, store.Tier3)
	}

	dest := "lessons/2026-01-01-note-summary-lesson.md"
	data, err := os.ReadFile(filepath.Join(root, dest))
	if err != nil {
		t.Fatalf("read lesson: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\ncrystallized_at:") {
		t.Error("lesson missing header")
	}
	if len(mock.Calls) != 1 || mock.Calls[0] != llm.ModeLesson {
		t.Errorf("Calls = %v, want [%s]", mock.Calls, llm.ModeLesson)
	}
}

func TestCrystallizeOnceAfterPromote(t *testing.T) {
	root := t.TempDir()
	mock := &llm.MockSummarizer{Text: "compressed"}
	e := testEngine(t, root, mock)
	fixNow(e, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	if err := os.WriteFile(filepath.Join(root, "2026-01-01-note.md"), []byte("raw note"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: "2026-01-01-note.md", Chamber: store.Tier1}); err != nil {
		t.Fatal(err)
	}

	promote, err := e.Promote(context.Background(), false)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promote.Count != 1 {
		t.Fatalf("promote Count = %d, want 1", promote.Count)
	}

	// Promotion left two tier2 records for the same event: the advanced
	// raw record and the tracked summary. Only the summary distills.
	crystallize, err := e.Crystallize(context.Background(), false)
	if err != nil {
		t.Fatalf("Crystallize: %v", err)
	}
	if crystallize.Count != 1 {
		t.Fatalf("crystallize Count = %d, want 1: %+v", crystallize.Count, crystallize.Details)
	}
	if crystallize.Details[0].Path != "summaries/2026-01-01-note-summary.md" {
		t.Errorf("crystallized %s, want the summary artifact", crystallize.Details[0].Path)
	}

	entries, err := os.ReadDir(filepath.Join(root, "lessons"))
	if err != nil {
		t.Fatalf("read lessons dir: %v", err)
	}
	if len(entries) != 1 {
		names := []string{}
		for _, ent := range entries {
			names = append(names, ent.Name())
		}
		t.Fatalf("lessons dir has %d files, want 1: %v", len(entries), names)
	}

	// One summarize per stage: the raw record never reaches the lesson
	// prompt directly.
	if len(mock.Calls) != 2 || mock.Calls[0] != llm.ModeSummary || mock.Calls[1] != llm.ModeLesson {
		t.Errorf("Calls = %v, want [%s %s]", mock.Calls, llm.ModeSummary, llm.ModeLesson)
	}

	raw, _ := e.DB.GetRecord("2026-01-01-note.md", 0, 0)
	if raw.Chamber != store.Tier2 {
		t.Errorf("raw chamber = %s, want %s (compressed, not re-distilled)", raw.Chamber, store.Tier2)
	}
	summary, _ := e.DB.GetRecord("summaries/2026-01-01-note-summary.md", 0, 0)
	if summary == nil || summary.Chamber != store.Tier3 {
		t.Errorf("summary record = %+v, want tier3", summary)
	}
}

func TestPromoteWithoutSummarizer(t *testing.T) {
	root := t.TempDir()
	e := testEngine(t, root, nil)
	fixNow(e, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	if err := os.WriteFile(filepath.Join(root, "2026-01-01-a.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.DB.CreateRecord(&store.Record{Path: "2026-01-01-a.md", Chamber: store.Tier1}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Promote(context.Background(), false)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if report.Failed != 1 || report.Count != 0 {
		t.Errorf("report = %+v, want one marker failure", report)
	}
	if len(report.Details) != 1 || !report.Details[0].Marker {
		t.Errorf("Details = %+v, want a marker detail", report.Details)
	}
}
