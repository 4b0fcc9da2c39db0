// Package chambers classifies content units into age-based tiers and
// migrates them: tier1 raw notes are promoted into tier2 summaries, and
// tier2 summaries crystallized into tier3 lessons, each compression going
// through the external summarization collaborator.
package chambers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/llm"
	"github.com/lazypower/palace/internal/store"
)

// Engine drives tier classification, promotion, and crystallization.
type Engine struct {
	DB         *store.DB
	Summarizer llm.Summarizer
	corpus     config.CorpusConfig
	cfg        config.ChambersConfig

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// New creates a Chambers engine.
func New(db *store.DB, sum llm.Summarizer, corpus config.CorpusConfig, cfg config.ChambersConfig) *Engine {
	return &Engine{DB: db, Summarizer: sum, corpus: corpus, cfg: cfg, Now: time.Now}
}

func (e *Engine) promoteAfter() time.Duration {
	return time.Duration(e.cfg.PromoteAfterHours) * time.Hour
}

func (e *Engine) crystallizeAfter() time.Duration {
	return time.Duration(e.cfg.CrystallizeAfterDays) * 24 * time.Hour
}

// abs resolves a tracked (corpus-relative) path to an absolute one.
func (e *Engine) abs(path string) string {
	if filepath.IsAbs(path) || e.corpus.Root == "" {
		return path
	}
	return filepath.Join(e.corpus.Root, path)
}

// Classify returns the chamber a unit's age puts it in. Pure function of
// age; repeated calls converge. Dating falls back from filename date to
// mtime to the undated sentinel — a unit that cannot be dated is treated
// as maximally old, never an error.
func (e *Engine) Classify(path string) string {
	age := e.unitAge(path, e.Now())
	switch {
	case age >= e.crystallizeAfter():
		return store.Tier3
	case age >= e.promoteAfter():
		return store.Tier2
	default:
		return store.Tier1
	}
}

// Scan discovers corpus files matching the configured glob and creates
// whole-file records for any not yet tracked. Files already under the
// summary or lesson directories enter at their tier. Returns the number
// of newly tracked units.
func (e *Engine) Scan(ctx context.Context) (int, error) {
	if e.corpus.Root == "" {
		return 0, nil
	}
	matches, err := doublestar.Glob(os.DirFS(e.corpus.Root), e.corpus.Pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return 0, fmt.Errorf("scan corpus: %w", err)
	}

	tracked := 0
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return tracked, err
		}
		rec, err := e.DB.GetRecord(rel, 0, 0)
		if err != nil {
			return tracked, err
		}
		if rec != nil {
			continue
		}
		chamber := e.chamberForLocation(rel)
		if err := e.DB.CreateRecord(&store.Record{
			Path:    rel,
			Chamber: chamber,
		}); err != nil {
			log.Printf("scan: track %s: %v", rel, err)
			continue
		}
		tracked++
	}
	return tracked, nil
}

// chamberForLocation labels a discovered file by where it lives. Raw
// units always enter at tier1 regardless of age: the chamber field only
// advances through Promote/Crystallize, which produce the compressed
// artifact the higher tier implies. Classify stays the pure age function.
func (e *Engine) chamberForLocation(rel string) string {
	switch {
	case strings.HasPrefix(rel, e.corpus.LessonDir+"/"):
		return store.Tier3
	case strings.HasPrefix(rel, e.corpus.SummaryDir+"/"):
		return store.Tier2
	default:
		return store.Tier1
	}
}

// Reclassify converges chamber labels with unit locations: a record
// whose file lives under the summary or lesson tree but whose label lags
// (discovered before its derived record, or linked in by hand) is
// advanced. Records never regress; the store enforces tier ordering.
// Returns the number of records whose chamber advanced.
func (e *Engine) Reclassify(ctx context.Context) (int, error) {
	records, err := e.DB.ListRecords()
	if err != nil {
		return 0, err
	}

	now := e.Now().UnixMilli()
	advanced := 0
	for i := range records {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		rec := &records[i]
		want := e.chamberForLocation(rec.Path)
		if store.TierRank(want) <= store.TierRank(rec.Chamber) {
			continue
		}
		if err := e.DB.SetChamber(rec.Path, rec.LineStart, rec.LineEnd, want, now); err != nil {
			log.Printf("reclassify %s: %v", rec.Path, err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// Reset administratively forces a unit back to a chamber. The only
// sanctioned way to regress a tier.
func (e *Engine) Reset(path string, lineStart, lineEnd int, chamber string) error {
	if store.TierRank(chamber) == 0 {
		return fmt.Errorf("unknown chamber %q: %w", chamber, errs.ErrInvalidArgument)
	}
	rec, err := e.DB.GetRecord(path, lineStart, lineEnd)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("reset %s: %w", path, errs.ErrNotFound)
	}
	return e.DB.ResetChamber(path, lineStart, lineEnd, chamber)
}

// Detail reports the outcome of one promotion or crystallization item.
type Detail struct {
	Path   string `json:"path"`
	Dest   string `json:"dest,omitempty"`
	Marker bool   `json:"marker,omitempty"` // summarization failed; marker written instead
	Err    string `json:"err,omitempty"`    // storage failure; item aborted
}

// Report aggregates a promotion or crystallization batch. Count is the
// number of fully successful items; marker and error items stay visible
// in Details and Failed — a batch never reports clean success over
// partial failures.
type Report struct {
	Count   int      `json:"count"`
	Failed  int      `json:"failed"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Details []Detail `json:"details"`
}

// Promote migrates eligible tier1 records to tier2: summarize the raw
// content, write the summary file with a provenance header, advance the
// record, and track the derived unit. Each item commits independently;
// summarization failures substitute a visible marker and the batch
// continues. dryRun computes the same selection without writes.
func (e *Engine) Promote(ctx context.Context, dryRun bool) (*Report, error) {
	return e.migrate(ctx, migration{
		fromChamber: store.Tier1,
		toChamber:   store.Tier2,
		minAge:      e.promoteAfter(),
		mode:        llm.ModeSummary,
		destDir:     e.corpus.SummaryDir,
		suffix:      "-summary",
		label:       "promoted",
	}, dryRun)
}

// Crystallize migrates eligible tier2 records to tier3 as bullet-style
// distilled lessons. Same batch semantics as Promote. Selection is
// restricted to the summary tree: promotion advances both the raw record
// and its derived summary to tier2, and only the summary carries the
// compression the lesson distills from. One event, one lesson.
func (e *Engine) Crystallize(ctx context.Context, dryRun bool) (*Report, error) {
	return e.migrate(ctx, migration{
		fromChamber: store.Tier2,
		fromDir:     e.corpus.SummaryDir,
		toChamber:   store.Tier3,
		minAge:      e.crystallizeAfter(),
		mode:        llm.ModeLesson,
		destDir:     e.corpus.LessonDir,
		suffix:      "-lesson",
		label:       "crystallized",
	}, dryRun)
}

type migration struct {
	fromChamber string
	fromDir     string // non-empty: select only records under this tree
	toChamber   string
	minAge      time.Duration
	mode        llm.Mode
	destDir     string
	suffix      string
	label       string
}

func (e *Engine) migrate(ctx context.Context, m migration, dryRun bool) (*Report, error) {
	records, err := e.DB.ListByChamber(m.fromChamber)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	report := &Report{DryRun: dryRun}
	for i := range records {
		// Cooperative cancellation between items, never mid-item.
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rec := &records[i]
		if rec.SupersededBy != "" {
			continue
		}
		// Derived units under the destination tree are not re-compressed
		// into themselves.
		if strings.HasPrefix(rec.Path, m.destDir+"/") {
			continue
		}
		if m.fromDir != "" && !strings.HasPrefix(rec.Path, m.fromDir+"/") {
			continue
		}
		if e.unitAge(rec.Path, now) < m.minAge {
			continue
		}

		dest := e.destFor(rec.Path, m.destDir, m.suffix)
		if dryRun {
			report.Count++
			report.Details = append(report.Details, Detail{Path: rec.Path, Dest: dest})
			continue
		}

		detail := e.migrateOne(ctx, rec, dest, m, now)
		report.Details = append(report.Details, detail)
		if detail.Err == "" && !detail.Marker {
			report.Count++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// migrateOne performs the per-item work. Summarization failure degrades
// to a marker; only storage failures abort the item.
func (e *Engine) migrateOne(ctx context.Context, rec *store.Record, dest string, m migration, now time.Time) Detail {
	detail := Detail{Path: rec.Path, Dest: dest}

	content, err := os.ReadFile(e.abs(rec.Path))
	if err != nil {
		detail.Err = fmt.Sprintf("read source: %v", err)
		return detail
	}

	body := ""
	if e.Summarizer == nil {
		detail.Marker = true
		body = "[summarization failed: no summarizer configured]"
	} else if summary, err := e.Summarizer.Summarize(ctx, string(content), m.mode); err != nil {
		log.Printf("%s %s: summarize: %v", m.label, rec.Path, err)
		detail.Marker = true
		body = fmt.Sprintf("[summarization failed: %v]", err)
	} else {
		body = summary
	}

	header := fmt.Sprintf("---\n%s_at: %s\nsource: %s\ntier: %s\n---\n\n",
		m.label, now.UTC().Format(time.RFC3339), rec.Path, m.toChamber)

	absDest := e.abs(dest)
	if err := os.MkdirAll(filepath.Dir(absDest), 0755); err != nil {
		detail.Err = fmt.Sprintf("create dest dir: %v", err)
		return detail
	}
	if err := os.WriteFile(absDest, []byte(header+body), 0644); err != nil {
		detail.Err = fmt.Sprintf("write dest: %v", err)
		return detail
	}

	if detail.Marker {
		// Attempted but not advanced: the item retries on the next run.
		return detail
	}

	ms := now.UnixMilli()
	if err := e.DB.SetChamber(rec.Path, rec.LineStart, rec.LineEnd, m.toChamber, ms); err != nil {
		detail.Err = fmt.Sprintf("advance chamber: %v", err)
		return detail
	}
	if err := e.trackDerived(dest, m.toChamber, rec.Path, ms); err != nil {
		detail.Err = fmt.Sprintf("track derived: %v", err)
		return detail
	}
	return detail
}

// trackDerived upserts the record for a freshly written derived file,
// pointing source_chunk back at the originating unit.
func (e *Engine) trackDerived(dest, chamber, source string, at int64) error {
	existing, err := e.DB.GetRecord(dest, 0, 0)
	if err != nil {
		return err
	}
	if existing != nil {
		return e.DB.TouchWrite(dest, at)
	}
	return e.DB.CreateRecord(&store.Record{
		Path:          dest,
		Chamber:       chamber,
		SourceChunk:   source,
		CreatedAt:     at,
		LastWrittenAt: &at,
	})
}

func (e *Engine) destFor(path, destDir, suffix string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(destDir, strings.TrimSuffix(base, ext)+suffix+ext)
}

// Transition is one recent tier advance.
type Transition struct {
	Path       string `json:"path"`
	Chamber    string `json:"chamber"`
	PromotedAt int64  `json:"promoted_at"`
}

// Status is the read-only chamber aggregate.
type Status struct {
	Distribution      map[string]int `json:"distribution"`
	TotalRecords      int            `json:"total_records"`
	RecentTransitions []Transition   `json:"recent_transitions"`
}

// Status returns the chamber distribution and recent transitions.
func (e *Engine) Status() (*Status, error) {
	counts, err := e.DB.CountByChamber()
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	recent, err := e.DB.RecentTransitions(10)
	if err != nil {
		return nil, err
	}
	transitions := make([]Transition, 0, len(recent))
	for _, r := range recent {
		t := Transition{Path: r.Path, Chamber: r.Chamber}
		if r.PromotedAt != nil {
			t.PromotedAt = *r.PromotedAt
		}
		transitions = append(transitions, t)
	}

	return &Status{
		Distribution:      counts,
		TotalRecords:      total,
		RecentTransitions: transitions,
	}, nil
}
