package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one scheduled background task
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires the job once immediately instead of waiting a
	// full interval.
	RunOnStart bool
	// MaxAttempts caps how often a failing run is tried per tick; zero
	// or one means a single attempt.
	MaxAttempts int
	// Backoff is the wait before the first re-attempt, doubling after
	// each failure.
	Backoff time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals until its context is cancelled.
// Each job gets its own goroutine; a panicking job is logged and waits
// for its next tick.
type Scheduler struct {
	jobs   []Job
	logger *logrus.Entry
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over a job set
func NewScheduler(logger *logrus.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger.WithField("component", "scheduler"),
	}
}

// Start launches all jobs. It returns immediately; Stop waits for
// in-flight runs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	s.logger.WithField("jobs", len(s.jobs)).Info("background jobs started")
}

// Stop blocks until all job loops have exited
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		s.runOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"job":   job.Name,
				"panic": r,
			}).Error("job panicked")
		}
	}()

	attempts := job.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := job.Backoff

	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		err := job.Run(ctx)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"job":      job.Name,
				"duration": time.Since(start).String(),
			}).Debug("job run completed")
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"job":     job.Name,
			"attempt": attempt,
		}).Warn("job run failed")
		if attempt == attempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
