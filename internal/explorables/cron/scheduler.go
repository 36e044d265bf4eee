package cronjob

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the reaper every five minutes.
const DefaultSchedule = "0 */5 * * * *"

const reapBatch = 100

// Reaper fails projects stuck in a non-terminal state.
type Reaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type Scheduler struct {
	reaper     Reaper
	schedule   string
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewScheduler(reaper Reaper, schedule string, staleAfter time.Duration) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		reaper:     reaper,
		schedule:   schedule,
		staleAfter: staleAfter,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start registers the reaper job and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	log.Printf("Cron scheduler started (reaping projects stale for %s, schedule %q)", s.staleAfter, s.schedule)
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce reaps a single batch of stale projects.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	n, err := s.reaper.ReapStale(ctx, s.staleAfter, reapBatch)
	if err != nil {
		log.Printf("Reaper failed: %v", err)
		return n
	}
	if n > 0 {
		log.Printf("Reaper failed %d stale project(s)", n)
	}
	return n
}
