// Package scheduler drives the tick loop: every tick it scans for due jobs,
// admits at most one execution per job through the concurrency guard and
// dispatches each admitted run on its own goroutine so one slow pipeline
// never stalls evaluation of the others.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/models"
	"pressroom/internal/repository"
)

// JobSource is the slice of the job store the tick loop needs.
type JobSource interface {
	Due(now time.Time) ([]models.AutomationJob, error)
	AdmitRun(job *models.AutomationJob, testMode bool) (*models.JobExecution, error)
}

// Runner executes one admitted run to its terminal state.
type Runner interface {
	Run(ctx context.Context, job *models.AutomationJob, exec *models.JobExecution) models.ExecutionStatus
}

type Config struct {
	TickInterval time.Duration
}

type Scheduler struct {
	cfg    Config
	jobs   JobSource
	runner Runner
	clock  func() time.Time
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(cfg Config, jobs JobSource, runner Runner, logger *zap.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Scheduler{
		cfg:    cfg,
		jobs:   jobs,
		runner: runner,
		clock:  time.Now,
		logger: logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight executions to
// finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", zap.Duration("tick", s.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping, draining in-flight executions")
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer s.recoverFromPanic("tick")

	now := s.clock()
	jobs, err := s.jobs.Due(now)
	if err != nil {
		s.logger.Error("Failed to scan due jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}
	s.logger.Debug("Due jobs found", zap.Int("count", len(jobs)))

	for i := range jobs {
		job := jobs[i]

		exec, err := s.jobs.AdmitRun(&job, false)
		if errors.Is(err, repository.ErrJobAlreadyRunning) {
			// Another evaluator process won the admission; expected, not an error.
			continue
		}
		if err != nil {
			s.logger.Error("Failed to admit execution",
				zap.Uint("job_id", job.ID), zap.Error(err))
			continue
		}

		s.logger.Info("Execution admitted",
			zap.Uint("job_id", job.ID),
			zap.String("execution_id", exec.ID),
			zap.String("workspace_id", job.WorkspaceID))

		s.wg.Add(1)
		go func(job models.AutomationJob, exec *models.JobExecution) {
			defer s.wg.Done()
			defer s.recoverFromPanic(job.Name)
			s.runner.Run(ctx, &job, exec)
		}(job, exec)
	}
}

func (s *Scheduler) recoverFromPanic(name string) {
	if r := recover(); r != nil {
		s.logger.Error("Scheduler panicked", zap.String("scope", name), zap.Any("error", r))
	}
}
