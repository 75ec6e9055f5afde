// Package pipeline executes one admitted job run: the ordered action chain
// against the collaborator services, with incremental progress written to the
// execution record.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/collab"
	"pressroom/internal/models"
	"pressroom/internal/schedule"
)

// ExecutionStore is the slice of the execution tracker the runner needs.
type ExecutionStore interface {
	MarkRunning(execID string, at time.Time) error
	RecordActionResult(execID string, action models.Action, resultJSON string, performed []models.Action) error
}

// JobStore closes out a run: terminal execution fields, job bookkeeping and
// guard release in one transaction.
type JobStore interface {
	FinalizeRun(job *models.AutomationJob, exec *models.JobExecution, status models.ExecutionStatus, execErr string, completedAt time.Time, nextRun *time.Time) error
}

// Notifier receives hard-failure reports. Implementations must not block for
// long; delivery is best effort.
type Notifier interface {
	ExecutionFailed(job *models.AutomationJob, exec *models.JobExecution, errMsg string)
}

// Deps bundles the runner's collaborators and stores.
type Deps struct {
	Executions ExecutionStore
	Jobs       JobStore
	Scraper    collab.Scraper
	Generator  collab.Generator
	Sender     collab.Sender
	Notifier   Notifier // optional
}

type Runner struct {
	deps          Deps
	actionTimeout time.Duration
	clock         func() time.Time
	logger        *zap.Logger
	wg            sync.WaitGroup
}

func NewRunner(deps Deps, actionTimeout time.Duration, logger *zap.Logger) *Runner {
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Minute
	}
	return &Runner{
		deps:          deps,
		actionTimeout: actionTimeout,
		clock:         time.Now,
		logger:        logger,
	}
}

// Go dispatches Run on its own goroutine, tracked so Drain can wait for it.
// Used for run-now admissions, which live outside the scheduler's tick loop.
func (r *Runner) Go(ctx context.Context, job *models.AutomationJob, exec *models.JobExecution) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(ctx, job, exec)
	}()
}

// Drain blocks until every run dispatched through Go has finished.
func (r *Runner) Drain() {
	r.wg.Wait()
}

// Run executes the job's actions strictly in order. Each action gets a
// bounded context; a timeout is a hard failure of that action. Soft failures
// are recorded and the chain continues; the first hard failure aborts the
// remaining actions. Run always finalizes the execution and the job row,
// recomputing next_run_at only while the job is active and enabled.
func (r *Runner) Run(ctx context.Context, job *models.AutomationJob, exec *models.JobExecution) (status models.ExecutionStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Execution panicked",
				zap.String("execution_id", exec.ID), zap.Uint("job_id", job.ID), zap.Any("error", rec))
			status = r.finalize(job, exec, models.ExecutionFailed, fmt.Sprintf("panic: %v", rec))
		}
	}()

	start := r.clock()
	if err := r.deps.Executions.MarkRunning(exec.ID, start); err != nil {
		r.logger.Error("Failed to mark execution running",
			zap.String("execution_id", exec.ID), zap.Uint("job_id", job.ID), zap.Error(err))
	}
	exec.StartedAt = &start
	exec.Status = models.ExecutionRunning

	actions, err := job.ActionList()
	if err != nil {
		return r.finalize(job, exec, models.ExecutionFailed, fmt.Sprintf("invalid action list: %v", err))
	}

	var (
		performed  []models.Action
		draftID    string
		softFailed bool
		hardErr    error
	)

	for _, action := range actions {
		actx, cancel := context.WithTimeout(ctx, r.actionTimeout)
		payload, actionErr := r.dispatch(actx, action, job, exec, &draftID)
		cancel()

		performed = append(performed, action)
		if err := r.deps.Executions.RecordActionResult(exec.ID, action, payload, performed); err != nil {
			r.logger.Error("Failed to record action result",
				zap.String("execution_id", exec.ID), zap.String("action", string(action)), zap.Error(err))
		}

		if actionErr == nil {
			continue
		}
		if collab.IsSoft(actionErr) {
			softFailed = true
			r.logger.Info("Action soft-failed",
				zap.Uint("job_id", job.ID), zap.String("action", string(action)), zap.Error(actionErr))
			continue
		}
		hardErr = fmt.Errorf("%s: %w", action, actionErr)
		r.logger.Error("Action hard-failed, aborting chain",
			zap.Uint("job_id", job.ID), zap.String("action", string(action)), zap.Error(actionErr))
		break
	}

	switch {
	case hardErr != nil:
		return r.finalize(job, exec, models.ExecutionFailed, hardErr.Error())
	case softFailed:
		return r.finalize(job, exec, models.ExecutionPartial, "")
	default:
		return r.finalize(job, exec, models.ExecutionCompleted, "")
	}
}

// dispatch is a total match over the closed action enum; an unknown action is
// a hard failure, never silently skipped.
func (r *Runner) dispatch(ctx context.Context, action models.Action, job *models.AutomationJob, exec *models.JobExecution, draftID *string) (string, error) {
	switch action {
	case models.ActionScrape:
		result, err := r.deps.Scraper.Scrape(ctx, job.WorkspaceID)
		if err != nil {
			return errPayload(err), err
		}
		if result.TotalItems == 0 {
			return marshalPayload(result), fmt.Errorf("scrape: %w", collab.ErrNoContent)
		}
		return marshalPayload(result), nil

	case models.ActionGenerate:
		result, err := r.deps.Generator.Generate(ctx, job.WorkspaceID, collab.GenerateSettings{})
		if err != nil {
			return errPayload(err), err
		}
		*draftID = result.DraftID
		return marshalPayload(result), nil

	case models.ActionSend:
		// draftID is empty when the job skips the generate stage; the
		// delivery service then sends the most recent draft.
		result, err := r.deps.Sender.Send(ctx, *draftID, job.WorkspaceID, exec.TestMode)
		if err != nil {
			return errPayload(err), err
		}
		return marshalPayload(result), nil

	default:
		err := fmt.Errorf("unknown action %q", action)
		return errPayload(err), err
	}
}

func (r *Runner) finalize(job *models.AutomationJob, exec *models.JobExecution, status models.ExecutionStatus, errMsg string) models.ExecutionStatus {
	completedAt := r.clock()

	// A nil nextRun tells the store to keep the job's previous next_run_at,
	// so a broken evaluation is retried on a later tick rather than silently
	// unscheduling the job. The failure is mirrored into last_error for the
	// operator either way.
	var nextRun *time.Time
	if job.Status == models.JobStatusActive && job.IsEnabled {
		next, err := schedule.NextRun(job, completedAt)
		switch {
		case err != nil:
			r.logger.Error("Failed to compute next run, retrying on a later tick",
				zap.Uint("job_id", job.ID), zap.Error(err))
			if errMsg == "" {
				errMsg = fmt.Sprintf("next run computation failed: %v", err)
			}
		case next.Before(completedAt):
			r.logger.Error("Evaluator produced a next run in the past, retrying on a later tick",
				zap.Uint("job_id", job.ID), zap.Time("next_run", next))
			if errMsg == "" {
				errMsg = fmt.Sprintf("next run computed in the past: %s", next.Format(time.RFC3339))
			}
		default:
			nextRun = &next
		}
	}

	if err := r.deps.Jobs.FinalizeRun(job, exec, status, errMsg, completedAt, nextRun); err != nil {
		r.logger.Error("Failed to finalize run",
			zap.String("execution_id", exec.ID), zap.Uint("job_id", job.ID), zap.Error(err))
	}

	exec.Status = status
	exec.CompletedAt = &completedAt
	exec.Error = errMsg

	if status == models.ExecutionFailed && r.deps.Notifier != nil {
		r.deps.Notifier.ExecutionFailed(job, exec, errMsg)
	}

	r.logger.Info("Execution finished",
		zap.String("execution_id", exec.ID),
		zap.Uint("job_id", job.ID),
		zap.String("status", string(status)))
	return status
}

func marshalPayload(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func errPayload(err error) string {
	return marshalPayload(map[string]string{"error": err.Error()})
}
