// Package sweeper schedules the aggregator's periodic expiry pass.
package sweeper

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/wxagg/aggregator/internal/pipeline"
)

// Sweeper periodically triggers the pipeline worker's expiry sweep.
type Sweeper struct {
	scheduler *gocron.Scheduler
	worker    *pipeline.Worker
	interval  time.Duration
	log       *slog.Logger
}

// New creates a Sweeper that runs every interval, grounded on the teacher's
// own gocron-based scheduler. Start rounds the interval down to whole
// seconds and uses 10s when that leaves zero or less, so any interval under
// one second runs every 10s.
func New(worker *pipeline.Worker, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		worker:    worker,
		interval:  interval,
		log:       log,
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 10
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(func() {
		removed := s.worker.Sweep()
		if len(removed) > 0 {
			s.log.Info("sweeper: expired stations removed", "stations", removed)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
