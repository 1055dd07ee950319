// Package scheduler runs periodic maintenance for a router: health sweeps and
// metrics saves, each on its own cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one named periodic task. An empty Schedule disables the job.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. Standard five-field expressions and
// descriptors such as "@every 30s" are accepted.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []Job
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *zap.Logger
	running bool
}

// New creates a Scheduler for jobs.
func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    jobs,
		entries: make(map[string]cron.EntryID),
		logger:  logger.With(zap.String("component", "scheduler")),
	}
}

// Start validates every schedule, registers the jobs and starts the cron
// loop. The scheduler stops when ctx is cancelled. If no job has a schedule
// the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	for _, job := range s.jobs {
		if job.Schedule == "" {
			s.logger.Info("job not scheduled", zap.String("job", job.Name))
			continue
		}
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.Schedule, job.Name, err)
		}
	}

	for _, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}
		id, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) })
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.entries[job.Name] = id
		s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	}
	if len(s.entries) == 0 {
		return nil
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled job completed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next activation of the named job, or nil when the job
// is not scheduled.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return nil
	}
	next := entry.Next
	return &next
}
