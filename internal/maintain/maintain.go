// Package maintain orchestrates the batch maintenance sequence across
// the four engines. Step failures are isolated and reported; the run
// never collapses into a single opaque error.
package maintain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lazypower/palace/internal/chambers"
	"github.com/lazypower/palace/internal/doors"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/gravity"
	"github.com/lazypower/palace/internal/mirrors"
)

// Orchestrator runs the maintenance sequence: scan and re-tier content,
// auto-tag contexts, apply decay, promote, crystallize, auto-link.
type Orchestrator struct {
	Chambers *chambers.Engine
	Doors    *doors.Engine
	Gravity  *gravity.Engine
	Mirrors  *mirrors.Engine

	// LockRetries bounds retry-with-backoff on store lock contention.
	LockRetries int
}

// New creates a maintenance orchestrator.
func New(c *chambers.Engine, d *doors.Engine, g *gravity.Engine, m *mirrors.Engine, lockRetries int) *Orchestrator {
	if lockRetries < 1 {
		lockRetries = 1
	}
	return &Orchestrator{Chambers: c, Doors: d, Gravity: g, Mirrors: m, LockRetries: lockRetries}
}

// StepReport is the outcome of one maintenance step.
type StepReport struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Err   string `json:"err,omitempty"`
}

// Report aggregates one maintenance run.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepReport `json:"steps"`
	Failed     int          `json:"failed"`
}

// Run executes every step in order. A failed step is recorded and the
// remaining steps still run; only context cancellation stops the run
// early, and even then the partial report is returned.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now()}

	steps := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"scan", o.Chambers.Scan},
		{"reclassify", o.Chambers.Reclassify},
		{"autotag", func(context.Context) (int, error) {
			r, err := o.Doors.AutoTag()
			if err != nil {
				return 0, err
			}
			return r.FilesTagged, nil
		}},
		{"decay", func(context.Context) (int, error) {
			r, err := o.Gravity.Decay()
			if err != nil {
				return 0, err
			}
			return r.Decayed, nil
		}},
		{"promote", func(ctx context.Context) (int, error) {
			r, err := o.Chambers.Promote(ctx, false)
			if r == nil {
				return 0, err
			}
			return r.Count, err
		}},
		{"crystallize", func(ctx context.Context) (int, error) {
			r, err := o.Chambers.Crystallize(ctx, false)
			if r == nil {
				return 0, err
			}
			return r.Count, err
		}},
		{"autolink", func(ctx context.Context) (int, error) {
			r, err := o.Mirrors.AutoLink(ctx)
			if r == nil {
				return 0, err
			}
			return r.LinkedCount, err
		}},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			report.FinishedAt = time.Now()
			return report, ctx.Err()
		}
		count, err := o.runStep(ctx, step.fn)
		sr := StepReport{Name: step.name, Count: count}
		if err != nil && !errors.Is(err, context.Canceled) {
			sr.Err = err.Error()
			report.Failed++
			log.Printf("maintain: step %s failed: %v", step.name, err)
		}
		report.Steps = append(report.Steps, sr)
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// runStep retries a step on lock contention with doubling backoff.
func (o *Orchestrator) runStep(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	backoff := 100 * time.Millisecond
	var count int
	var err error
	for attempt := 0; attempt < o.LockRetries; attempt++ {
		count, err = fn(ctx)
		if err == nil || !errors.Is(err, errs.ErrLocked) {
			return count, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return count, ctx.Err()
		}
		backoff *= 2
	}
	return count, fmt.Errorf("gave up after %d attempts: %w", o.LockRetries, err)
}
