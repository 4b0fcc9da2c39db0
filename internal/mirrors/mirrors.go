// Package mirrors maintains the 3-way link between a raw unit, its
// summary, and its lesson, keyed by logical event. Links are an optional
// cross-reference over the corpus, not something the other engines
// depend on.
package mirrors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/store"
)

// Engine resolves and maintains mirror links.
type Engine struct {
	DB     *store.DB
	corpus config.CorpusConfig

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// New creates a Mirrors engine.
func New(db *store.DB, corpus config.CorpusConfig) *Engine {
	return &Engine{DB: db, corpus: corpus, Now: time.Now}
}

// Link upserts up to three granularity links sharing eventKey. Empty
// paths are skipped. Re-linking an existing (eventKey, granularity)
// overwrites the previous path: last write wins, by design.
func (e *Engine) Link(eventKey, rawPath, summaryPath, lessonPath string) error {
	eventKey = strings.TrimSpace(eventKey)
	if eventKey == "" {
		return fmt.Errorf("empty event key: %w", errs.ErrInvalidArgument)
	}
	now := e.Now().UnixMilli()
	for granularity, path := range map[string]string{
		store.GranularityRaw:     rawPath,
		store.GranularitySummary: summaryPath,
		store.GranularityLesson:  lessonPath,
	} {
		if path == "" {
			continue
		}
		if err := e.DB.UpsertLink(&store.MirrorLink{
			EventKey:    eventKey,
			Granularity: granularity,
			Path:        path,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Resolution is the result of resolving a path or event key.
type Resolution struct {
	EventKey string             `json:"event_key"`
	Mirrors  []store.MirrorLink `json:"mirrors"`
	Found    bool               `json:"found"`
}

// Resolve returns every granularity known for a path or event key. A
// path argument is mapped to its owning event first. Nothing matching is
// Found=false with an empty list, never an error.
func (e *Engine) Resolve(pathOrEventKey string) (*Resolution, error) {
	key, err := e.DB.EventKeyForPath(pathOrEventKey)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = pathOrEventKey
	}

	links, err := e.DB.LinksForEvent(key)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return &Resolution{EventKey: pathOrEventKey}, nil
	}
	return &Resolution{EventKey: key, Mirrors: links, Found: true}, nil
}

// AutoLinkReport summarizes one auto-link pass.
type AutoLinkReport struct {
	LinkedCount int `json:"linked_count"`
	Skipped     int `json:"skipped"`
}

var eventDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// AutoLink pairs derived files with their sources by the filename-date
// convention: a summary or lesson whose embedded date matches a raw
// file's date joins that event. Files without a parseable date are
// skipped, not failed.
func (e *Engine) AutoLink(ctx context.Context) (*AutoLinkReport, error) {
	report := &AutoLinkReport{}
	if e.corpus.Root == "" {
		return report, nil
	}

	matches, err := doublestar.Glob(os.DirFS(e.corpus.Root), e.corpus.Pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	// Bucket files per event date by granularity.
	type event struct {
		raw, summary, lesson string
	}
	events := map[string]*event{}
	for _, rel := range matches {
		date := eventDate.FindString(filepath.Base(rel))
		if date == "" {
			report.Skipped++
			continue
		}
		ev := events[date]
		if ev == nil {
			ev = &event{}
			events[date] = ev
		}
		switch e.granularityForLocation(rel) {
		case store.GranularityLesson:
			ev.lesson = rel
		case store.GranularitySummary:
			ev.summary = rel
		default:
			ev.raw = rel
		}
	}

	for date, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// A lone raw file is not an event yet; pairing needs at least one
		// derived granularity.
		if ev.summary == "" && ev.lesson == "" {
			continue
		}
		for granularity, path := range map[string]string{
			store.GranularityRaw:     ev.raw,
			store.GranularitySummary: ev.summary,
			store.GranularityLesson:  ev.lesson,
		} {
			if path == "" {
				continue
			}
			linked, err := e.DB.HasLink(date, granularity)
			if err != nil {
				return report, err
			}
			if linked {
				continue
			}
			if err := e.DB.UpsertLink(&store.MirrorLink{
				EventKey:    date,
				Granularity: granularity,
				Path:        path,
				CreatedAt:   e.Now().UnixMilli(),
			}); err != nil {
				log.Printf("autolink %s/%s: %v", date, granularity, err)
				continue
			}
			report.LinkedCount++
		}
	}
	return report, nil
}

func (e *Engine) granularityForLocation(rel string) string {
	switch {
	case strings.HasPrefix(rel, e.corpus.LessonDir+"/"):
		return store.GranularityLesson
	case strings.HasPrefix(rel, e.corpus.SummaryDir+"/"):
		return store.GranularitySummary
	default:
		return store.GranularityRaw
	}
}

// Stats is the read-only mirror aggregate.
type Stats struct {
	TotalEvents         int            `json:"total_events"`
	CoverageByGranular  map[string]int `json:"coverage_by_granularity"`
	FullyMirroredCount  int            `json:"fully_mirrored_count"`
	PartialEventDetails []string       `json:"partial_details"`
}

// Stats reports event coverage across granularities.
func (e *Engine) Stats() (*Stats, error) {
	links, err := e.DB.AllLinks()
	if err != nil {
		return nil, err
	}

	byEvent := map[string]map[string]bool{}
	coverage := map[string]int{}
	for _, l := range links {
		if byEvent[l.EventKey] == nil {
			byEvent[l.EventKey] = map[string]bool{}
		}
		byEvent[l.EventKey][l.Granularity] = true
		coverage[l.Granularity]++
	}

	stats := &Stats{
		TotalEvents:        len(byEvent),
		CoverageByGranular: coverage,
	}
	for key, granularities := range byEvent {
		if len(granularities) == len(store.Granularities) {
			stats.FullyMirroredCount++
			continue
		}
		var missing []string
		for _, g := range store.Granularities {
			if !granularities[g] {
				missing = append(missing, g)
			}
		}
		stats.PartialEventDetails = append(stats.PartialEventDetails,
			fmt.Sprintf("%s: missing %s", key, strings.Join(missing, ", ")))
	}
	return stats, nil
}
