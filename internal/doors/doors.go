// Package doors classifies free text into context tags by weighted
// pattern matching. The table is data, not code: categories come from
// config (or the built-in table) and are compiled once at startup.
// Matching is deliberately simple and auditable — no ML.
package doors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/store"
)

// Engine evaluates text against the compiled category table.
type Engine struct {
	DB       *store.DB
	root     string
	table    []category
	minScore int
}

type category struct {
	name     string
	priority int
	patterns []pattern
}

type pattern struct {
	text   string // lowercased
	phrase bool   // multi-word patterns match by substring, words by boundary
}

// DefaultTable is the built-in category table, used when config supplies
// none. Categories are ordered by priority (lower wins ties).
func DefaultTable() []config.DoorCategory {
	return []config.DoorCategory{
		{Name: "projects", Priority: 1, Patterns: []string{
			"voice listener", "prototype", "feature", "milestone", "release", "refactor", "project",
		}},
		{Name: "infrastructure", Priority: 2, Patterns: []string{
			"terminal", "server", "deploy", "docker", "database", "network", "config", "install",
		}},
		{Name: "debugging", Priority: 3, Patterns: []string{
			"bug", "error", "crash", "stack trace", "regression", "flaky", "fix",
		}},
		{Name: "research", Priority: 4, Patterns: []string{
			"paper", "reading", "benchmark", "experiment", "idea", "explore",
		}},
		{Name: "operations", Priority: 5, Patterns: []string{
			"backup", "maintenance", "schedule", "monitor", "cleanup", "migration",
		}},
		{Name: "personal", Priority: 6, Patterns: []string{
			"journal", "health", "reminder", "meeting", "travel",
		}},
	}
}

// New creates a Doors engine from config, falling back to the built-in
// table when no categories are configured.
func New(db *store.DB, corpus config.CorpusConfig, cfg config.DoorsConfig) *Engine {
	cats := cfg.Categories
	if len(cats) == 0 {
		cats = DefaultTable()
	}
	e := &Engine{DB: db, root: corpus.Root, minScore: cfg.MinScore}
	if e.minScore < 1 {
		e.minScore = 1
	}
	for _, c := range cats {
		compiled := category{name: c.Name, priority: c.Priority}
		for _, p := range c.Patterns {
			text := strings.ToLower(strings.TrimSpace(p))
			if text == "" {
				continue
			}
			compiled.patterns = append(compiled.patterns, pattern{
				text:   text,
				phrase: strings.ContainsRune(text, ' '),
			})
		}
		e.table = append(e.table, compiled)
	}
	return e
}

// ClassifyText scores text against every category and returns the names
// of categories meeting the minimum score, best first. Ties break on
// category priority. An empty result is normal, never an error; the
// min-score gate intentionally misses short queries rather than tag on a
// single coincidental keyword.
func (e *Engine) ClassifyText(text string) []string {
	lower := strings.ToLower(text)
	words := wordSet(lower)

	type scored struct {
		name     string
		score    int
		priority int
	}
	var hits []scored
	for _, c := range e.table {
		score := 0
		for _, p := range c.patterns {
			if p.phrase {
				if strings.Contains(lower, p.text) {
					score++
				}
			} else if words[p.text] {
				score++
			}
		}
		if score >= e.minScore {
			hits = append(hits, scored{name: c.name, score: score, priority: c.priority})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].priority < hits[j].priority
	})

	tags := make([]string, len(hits))
	for i, h := range hits {
		tags[i] = h.name
	}
	return tags
}

func wordSet(lower string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		words[w] = true
	}
	return words
}

// Tag adds a context tag to a record. Adding an existing tag is a no-op.
func (e *Engine) Tag(path string, lineStart, lineEnd int, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("empty tag: %w", errs.ErrInvalidArgument)
	}
	rec, err := e.DB.GetRecord(path, lineStart, lineEnd)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("tag %s: %w", path, errs.ErrNotFound)
	}
	for _, existing := range rec.ContextTags {
		if existing == tag {
			return nil
		}
	}
	return e.DB.SetContextTags(path, lineStart, lineEnd, append(rec.ContextTags, tag))
}

// AutoTagReport summarizes one auto-tag pass.
type AutoTagReport struct {
	FilesTagged     int            `json:"files_tagged"`
	TagDistribution map[string]int `json:"tag_distribution"`
	Skipped         int            `json:"skipped"`
}

// AutoTag classifies every tracked unit's content and merges the result
// into its context_tags. Units whose content cannot be read are skipped,
// not failed; each record commits independently.
func (e *Engine) AutoTag() (*AutoTagReport, error) {
	records, err := e.DB.ListRecords()
	if err != nil {
		return nil, err
	}

	report := &AutoTagReport{TagDistribution: map[string]int{}}
	for i := range records {
		rec := &records[i]
		content, err := readUnit(e.root, rec)
		if err != nil {
			report.Skipped++
			continue
		}

		tags := e.ClassifyText(content)
		for _, t := range tags {
			report.TagDistribution[t]++
		}

		merged, added := mergeTags(rec.ContextTags, tags)
		if !added {
			continue
		}
		if err := e.DB.SetContextTags(rec.Path, rec.LineStart, rec.LineEnd, merged); err != nil {
			report.Skipped++
			continue
		}
		report.FilesTagged++
	}
	return report, nil
}

func mergeTags(existing, incoming []string) ([]string, bool) {
	seen := map[string]bool{}
	merged := append([]string(nil), existing...)
	for _, t := range existing {
		seen[t] = true
	}
	added := false
	for _, t := range incoming {
		if !seen[t] {
			merged = append(merged, t)
			seen[t] = true
			added = true
		}
	}
	return merged, added
}

// readUnit loads the content a record covers: the whole file, or the
// record's line range.
func readUnit(root string, rec *store.Record) (string, error) {
	path := rec.Path
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if rec.LineStart == 0 && rec.LineEnd == 0 {
		return string(data), nil
	}
	lines := strings.Split(string(data), "\n")
	start := rec.LineStart - 1
	end := rec.LineEnd
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", nil
	}
	return strings.Join(lines[start:end], "\n"), nil
}
