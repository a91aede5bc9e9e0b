// Package scheduler rebuilds the forecast cube on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Reloader rebuilds the served cube.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs Reload every interval. Runs never overlap; a tick that
// fires while a reload is still in progress is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	reloader  Reloader
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	stopOnce  sync.Once
}

// New creates a Scheduler. Each reload is bounded by timeout when it is
// positive.
func New(reloader Reloader, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		reloader:  reloader,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the reload job. The first run happens one interval from
// now since the cube is built at startup. Jobs stop when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		runCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		s.logger.Info("scheduled reload", "interval", s.interval)
		if err := s.reloader.Reload(runCtx); err != nil {
			s.logger.Warn("scheduled reload failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop cancels future runs. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(s.scheduler.Stop)
}
