// Package scheduler runs named background jobs for a tracelyse run, such as
// the progress heartbeat of a live analysis.
package scheduler

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tracelyse/internal/logging"
)

// JobInfo describes a registered job for external inspection.
type JobInfo struct {
	ID       string    // unique job ID (gocron UUID)
	Name     string    // human-readable name (e.g. "progress")
	Schedule string    // cron expression or "every <duration>"
	LastRun  time.Time // zero if never run
	NextRun  time.Time // zero if not scheduled
}

// Config configures a Scheduler.
type Config struct {
	// Logger for the scheduler. If nil, logging is discarded.
	Logger *slog.Logger
}

// Scheduler owns a gocron scheduler and the jobs registered on it by name.
type Scheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job // name → job
	schedules map[string]string     // name → schedule (for ListJobs)
	stopped   bool
	logger    *slog.Logger
}

// New creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
		logger:    logging.Default(cfg.Logger).With("component", "scheduler"),
	}, nil
}

// AddJob registers a named cron job. The task function and its arguments
// are passed to gocron.NewTask.
func (s *Scheduler) AddJob(name, cronExpr string, taskFn any, args ...any) error {
	return s.add(name, cronExpr, gocron.CronJob(cronExpr, strings.Count(strings.TrimSpace(cronExpr), " ") == 5), taskFn, args...)
}

// AddInterval registers a named job that runs every interval. A run that
// is still busy when the next one is due is skipped.
func (s *Scheduler) AddInterval(name string, every time.Duration, taskFn any, args ...any) error {
	if every <= 0 {
		return fmt.Errorf("schedule job %s: interval must be positive, got %s", name, every)
	}
	return s.add(name, "every "+every.String(), gocron.DurationJob(every), taskFn, args...)
}

func (s *Scheduler) add(name, schedule string, def gocron.JobDefinition, taskFn any, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduled job already exists: %s", name)
	}

	j, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(taskFn, args...),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create scheduled job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.schedules[name] = schedule
	s.logger.Debug("scheduled job added", "name", name, "schedule", schedule)
	return nil
}

// RemoveJob stops and removes a named job. No-op if the job doesn't exist.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(j.ID()); err != nil {
		s.logger.Warn("failed to remove scheduled job", "name", name, "error", err)
	}
	delete(s.jobs, name)
	delete(s.schedules, name)
	s.logger.Debug("scheduled job removed", "name", name)
}

// HasJob returns true if a job with the given name exists.
func (s *Scheduler) HasJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// ListJobs returns info about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{
			ID:       j.ID().String(),
			Name:     name,
			Schedule: s.schedules[name],
		}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Start begins executing all registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Debug("scheduler started", "jobs", len(s.jobs))
}

// Stop shuts down the scheduler and waits for running jobs to finish.
// Subsequent calls are no-ops.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	return s.scheduler.Shutdown()
}
