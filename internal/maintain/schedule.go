package maintain

import (
	"context"
	"fmt"
	"log"

	rcron "github.com/robfig/cron/v3"
)

// Scheduler runs maintenance on a cron schedule in serve mode.
type Scheduler struct {
	orch *Orchestrator
	spec string
	cron *rcron.Cron
}

// NewScheduler creates a scheduler for the given cron spec ("@daily",
// "0 3 * * *", ...).
func NewScheduler(o *Orchestrator, spec string) *Scheduler {
	return &Scheduler{orch: o, spec: spec}
}

// Start registers and starts the scheduled run. The job logs its report;
// failures within a run are already isolated per step.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = rcron.New()
	_, err := s.cron.AddFunc(s.spec, func() {
		report, err := s.orch.Run(ctx)
		if err != nil {
			log.Printf("maintain: scheduled run interrupted: %v", err)
		}
		if report != nil {
			for _, step := range report.Steps {
				if step.Err != "" {
					log.Printf("maintain: %s: %s", step.Name, step.Err)
				} else {
					log.Printf("maintain: %s: %d", step.Name, step.Count)
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Printf("maintain: scheduled %q", s.spec)
	return nil
}

// Stop halts the schedule, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
