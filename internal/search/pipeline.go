// Package search composes the four engines over a base search
// collaborator: classify the query context, overfetch candidates,
// re-rank by gravity, filter by chamber, boost by context, and attach
// mirror references to the survivors.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/doors"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/gravity"
	"github.com/lazypower/palace/internal/mirrors"
	"github.com/lazypower/palace/internal/store"
)

// Search modes.
const (
	ModeBypass          = "bypass"
	ModeContextFiltered = "context-filtered"
	ModeFull            = "full"
)

// Pipeline orchestrates one query end to end. Stateless; safe for
// concurrent use.
type Pipeline struct {
	Gravity *gravity.Engine
	Doors   *doors.Engine
	Mirrors *mirrors.Engine
	Base    BaseSearcher
	cfg     config.SearchConfig
}

// New creates a search pipeline.
func New(g *gravity.Engine, d *doors.Engine, m *mirrors.Engine, base BaseSearcher, cfg config.SearchConfig) *Pipeline {
	return &Pipeline{Gravity: g, Doors: d, Mirrors: m, Base: base, cfg: cfg}
}

// Options controls one search invocation.
type Options struct {
	Limit             int      // result count; default 10
	BypassContext     bool     // trapdoor mode: ignore context boosts
	Chambers          []string // allow-set; empty means all tiers
	IncludeSuperseded bool     // keep superseded records in ranking
	RecordAccesses    bool     // record an access event per returned result
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// Result is one ranked search result with its gravity and mirror context.
type Result struct {
	Match
	FinalScore  float64            `json:"final_score"`
	Modifier    float64            `json:"modifier"`
	Chamber     string             `json:"chamber"`
	ContextTags []string           `json:"context_tags,omitempty"`
	ContextHits int                `json:"context_hits,omitempty"`
	Superseded  bool               `json:"superseded,omitempty"`
	Mirrors     []store.MirrorLink `json:"mirrors,omitempty"`
}

// Response is the full pipeline output for one query.
type Response struct {
	Query       string   `json:"query"`
	ContextTags []string `json:"context_tags"`
	Mode        string   `json:"mode"`
	Results     []Result `json:"results"`
}

// Search runs the pipeline. Context match is a ranking signal, never a
// hard filter: bypass mode and normal mode differ only in the weight
// given to context, so exact-phrase recall is identical in both.
func (p *Pipeline) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	contextTags := p.Doors.ClassifyText(query)

	overfetch := p.cfg.Overfetch
	if overfetch < 1 {
		overfetch = 1
	}
	baseCtx := ctx
	if p.cfg.BaseTimeoutSecs > 0 {
		var cancel context.CancelFunc
		baseCtx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.BaseTimeoutSecs)*time.Second)
		defer cancel()
	}
	candidates, err := p.Base.Search(baseCtx, query, opts.limit()*overfetch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("base search: %w", errs.ErrTimeout)
		}
		return nil, fmt.Errorf("base search: %w: %v", errs.ErrUnavailable, err)
	}

	allowed := map[string]bool{}
	for _, c := range opts.Chambers {
		allowed[c] = true
	}

	var results []Result
	for _, m := range candidates {
		score, err := p.Gravity.ScoreFor(m.Path, m.LineStart, m.LineEnd)
		if err != nil {
			return nil, err
		}

		r := Result{Match: m, Modifier: 1.0, Chamber: store.Tier1}
		if score.Exists {
			r.Modifier = score.Modifier
			r.Chamber = score.Chamber
			r.Superseded = score.SupersededBy != ""
		}
		if r.Superseded && !opts.IncludeSuperseded {
			continue
		}
		if len(allowed) > 0 && !allowed[r.Chamber] {
			continue
		}

		r.FinalScore = m.Score * r.Modifier

		if score.Exists {
			rec, err := p.Gravity.DB.GetRecord(m.Path, m.LineStart, m.LineEnd)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				r.ContextTags = rec.ContextTags
			}
		}
		if !opts.BypassContext {
			r.ContextHits = intersect(r.ContextTags, contextTags)
			r.FinalScore *= 1 + p.cfg.ContextBoost*float64(r.ContextHits)
		}

		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > opts.limit() {
		results = results[:opts.limit()]
	}

	for i := range results {
		resolution, err := p.Mirrors.Resolve(results[i].Path)
		if err != nil {
			return nil, err
		}
		if resolution.Found {
			results[i].Mirrors = resolution.Mirrors
		}
		if opts.RecordAccesses {
			if err := p.Gravity.RecordAccess(results[i].Path, results[i].LineStart,
				results[i].LineEnd, query, results[i].FinalScore); err != nil {
				return nil, err
			}
		}
	}

	return &Response{
		Query:       query,
		ContextTags: contextTags,
		Mode:        mode(opts.BypassContext, contextTags),
		Results:     results,
	}, nil
}

func mode(bypass bool, contextTags []string) string {
	switch {
	case bypass:
		return ModeBypass
	case len(contextTags) > 0:
		return ModeContextFiltered
	default:
		return ModeFull
	}
}

func intersect(a, b []string) int {
	set := map[string]bool{}
	for _, s := range a {
		set[s] = true
	}
	n := 0
	for _, s := range b {
		if set[s] {
			n++
		}
	}
	return n
}
