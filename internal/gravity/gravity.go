// Package gravity scores content units by importance: access, reference,
// and explicit signals pulled down by time decay. Decay is realized lazily
// through the mass formula; nothing is persisted on read.
package gravity

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/store"
)

const lastDecayCheckKey = "gravity.last_decay_check"

// Engine computes and records importance signals.
type Engine struct {
	DB  *store.DB
	cfg config.GravityConfig

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// New creates a Gravity engine.
func New(db *store.DB, cfg config.GravityConfig) *Engine {
	return &Engine{DB: db, cfg: cfg, Now: time.Now}
}

// Score is the full read-side view of one unit's importance.
// Exists=false means untracked; all numeric fields are zero then.
type Score struct {
	Path               string  `json:"path"`
	LineStart          int     `json:"line_start"`
	LineEnd            int     `json:"line_end"`
	AccessCount        int     `json:"access_count"`
	ReferenceCount     int     `json:"reference_count"`
	ExplicitImportance float64 `json:"explicit_importance"`
	DaysSinceWrite     float64 `json:"days_since_write"`
	DaysSinceAccess    float64 `json:"days_since_access"`
	EffectiveMass      float64 `json:"effective_mass"`
	Modifier           float64 `json:"modifier"`
	Chamber            string  `json:"chamber,omitempty"`
	SupersededBy       string  `json:"superseded_by,omitempty"`
	Exists             bool    `json:"exists"`
}

func validRange(lineStart, lineEnd int) error {
	if lineStart < 0 || lineEnd < 0 || lineEnd < lineStart {
		return fmt.Errorf("line range %d-%d: %w", lineStart, lineEnd, errs.ErrInvalidArgument)
	}
	return nil
}

// RecordAccess upserts the unit's record (access_count=1 if new, else
// incremented), stamps last_accessed_at, and appends one access event.
// Never fails on a missing record.
func (e *Engine) RecordAccess(path string, lineStart, lineEnd int, query string, score float64) error {
	if err := validRange(lineStart, lineEnd); err != nil {
		return err
	}
	now := e.Now().UnixMilli()
	if err := e.DB.TouchAccess(path, lineStart, lineEnd, now); err != nil {
		return err
	}
	return e.DB.AddAccess(&store.Access{
		Path:       path,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		AccessedAt: now,
		Query:      query,
		Score:      score,
	})
}

// RecordWrite stamps last_written_at on the whole-file record, creating
// it if absent. access_count is untouched.
func (e *Engine) RecordWrite(path string) error {
	return e.DB.TouchWrite(path, e.Now().UnixMilli())
}

// RecordReference increments reference_count, creating the record if absent.
func (e *Engine) RecordReference(path string, lineStart, lineEnd int) error {
	if err := validRange(lineStart, lineEnd); err != nil {
		return err
	}
	return e.DB.AddReference(path, lineStart, lineEnd)
}

// Boost adjusts explicit_importance by amount. Negative amounts are
// allowed, but a boost that would sink the value below the configured
// floor is rejected as an invalid argument.
func (e *Engine) Boost(path string, lineStart, lineEnd int, amount float64) error {
	if err := validRange(lineStart, lineEnd); err != nil {
		return err
	}
	current := 0.0
	rec, err := e.DB.GetRecord(path, lineStart, lineEnd)
	if err != nil {
		return err
	}
	if rec != nil {
		current = rec.ExplicitImportance
	}
	if current+amount < e.cfg.ExplicitFloor {
		return fmt.Errorf("boost %.2f would sink explicit importance to %.2f (floor %.2f): %w",
			amount, current+amount, e.cfg.ExplicitFloor, errs.ErrInvalidArgument)
	}
	return e.DB.AddExplicitImportance(path, lineStart, lineEnd, amount)
}

// Supersede marks the old whole-file record as replaced by the new path.
// Both identities must be tracked.
func (e *Engine) Supersede(oldPath, newPath string) error {
	old, err := e.DB.GetRecord(oldPath, 0, 0)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("supersede %s: %w", oldPath, errs.ErrNotFound)
	}
	repl, err := e.DB.GetRecord(newPath, 0, 0)
	if err != nil {
		return err
	}
	if repl == nil {
		return fmt.Errorf("supersede by %s: %w", newPath, errs.ErrNotFound)
	}
	return e.DB.SetSuperseded(oldPath, 0, 0, newPath)
}

// DecayReport summarizes one decay pass.
type DecayReport struct {
	Considered int `json:"considered"`
	Decayed    int `json:"decayed"`
}

// Decay forces a recency pass. Nothing is rewritten — decay is realized
// lazily in the mass formula — but the pass counts records whose recency
// factor fell below the reporting threshold since the last check, and
// advances the checkpoint.
func (e *Engine) Decay() (*DecayReport, error) {
	now := e.Now()
	lastCheck := now
	if raw, err := e.DB.GetMeta(lastDecayCheckKey); err != nil {
		return nil, err
	} else if raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastCheck = time.UnixMilli(ms)
		}
	}

	records, err := e.DB.ListRecords()
	if err != nil {
		return nil, err
	}

	report := &DecayReport{Considered: len(records)}
	for i := range records {
		before := e.recencyFactor(&records[i], lastCheck)
		after := e.recencyFactor(&records[i], now)
		if before >= e.cfg.DecayThreshold && after < e.cfg.DecayThreshold {
			report.Decayed++
		}
	}

	if err := e.DB.SetMeta(lastDecayCheckKey, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return nil, err
	}
	return report, nil
}

// ScoreFor returns the importance view for an identity. Untracked
// identities yield Exists=false with zero fields, never an error.
func (e *Engine) ScoreFor(path string, lineStart, lineEnd int) (*Score, error) {
	rec, err := e.DB.GetRecord(path, lineStart, lineEnd)
	if err != nil {
		return nil, err
	}
	s := &Score{Path: path, LineStart: lineStart, LineEnd: lineEnd}
	if rec == nil {
		return s, nil
	}

	now := e.Now()
	s.Exists = true
	s.AccessCount = rec.AccessCount
	s.ReferenceCount = rec.ReferenceCount
	s.ExplicitImportance = rec.ExplicitImportance
	s.Chamber = rec.Chamber
	s.SupersededBy = rec.SupersededBy
	s.DaysSinceWrite = e.daysSinceWrite(rec, now)
	s.DaysSinceAccess = e.daysSince(rec.LastAccessedAt, now)
	s.EffectiveMass = e.effectiveMass(rec, now)
	s.Modifier = Modifier(s.EffectiveMass)
	return s, nil
}

// Modifier converts effective mass into the score multiplier applied by
// the search pipeline: 1 + 0.1*ln(1+mass). Modifier(0) == 1.
func Modifier(effectiveMass float64) float64 {
	return 1 + 0.1*math.Log(1+effectiveMass)
}

func (e *Engine) daysSince(ts *int64, now time.Time) float64 {
	if ts == nil {
		return e.cfg.NeverWrittenDays
	}
	days := now.Sub(time.UnixMilli(*ts)).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func (e *Engine) daysSinceWrite(rec *store.Record, now time.Time) float64 {
	return e.daysSince(rec.LastWrittenAt, now)
}

func (e *Engine) recencyFactor(rec *store.Record, now time.Time) float64 {
	return 1 / (1 + e.daysSinceWrite(rec, now)*e.cfg.DecayRate)
}

func (e *Engine) effectiveMass(rec *store.Record, now time.Time) float64 {
	base := float64(rec.AccessCount)*0.3 + float64(rec.ReferenceCount)*0.5 + rec.ExplicitImportance
	mass := base * e.recencyFactor(rec, now)
	if e.daysSinceWrite(rec, now) < e.cfg.AuthorityWindowDays {
		mass += e.cfg.AuthorityBoost
	}
	if mass > e.cfg.MassCap {
		mass = e.cfg.MassCap
	}
	if mass < 0 {
		mass = 0
	}
	return mass
}
