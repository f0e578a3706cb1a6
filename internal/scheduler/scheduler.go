package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/weather"
)

// Runner is the part of the sync engine the scheduler drives.
type Runner interface {
	RunOnce(ctx context.Context) weather.SyncResult
}

// Scheduler periodically refreshes the forecast cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler. timeout bounds a single run.
func New(interval, timeout time.Duration, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if interval <= 0 {
		interval = 3 * time.Hour
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(s.run)
	if err != nil {
		return err
	}

	logger.Infof("scheduler: syncing every %s", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger.Debugf("scheduler: running sync job")
	res := s.runner.RunOnce(ctx)
	logger.Debugf("scheduler: sync job finished (%s)", res.State)
}
