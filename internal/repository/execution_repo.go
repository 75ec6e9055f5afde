package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pressroom/internal/models"
)

var ErrExecutionNotFound = errors.New("execution not found")

// ExecutionRepository is the append-only execution tracker. Rows are written
// incrementally while a run progresses so a crash mid-run still leaves the
// partial state on record.
type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) FindByID(workspaceID, id string) (*models.JobExecution, error) {
	var exec models.JobExecution
	err := r.db.Where("id = ? AND workspace_id = ?", id, workspaceID).First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// MarkRunning moves a pending execution to running and stamps started_at.
func (r *ExecutionRepository) MarkRunning(execID string, at time.Time) error {
	res := r.db.Model(&models.JobExecution{}).
		Where("id = ? AND status = ?", execID, models.ExecutionPending).
		Updates(map[string]interface{}{
			"status":     models.ExecutionRunning,
			"started_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// RecordActionResult persists one action's outcome and the actions_performed
// prefix while the execution is still running.
func (r *ExecutionRepository) RecordActionResult(execID string, action models.Action, resultJSON string, performed []models.Action) error {
	performedRaw, err := json.Marshal(performed)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"actions_performed": string(performedRaw),
	}
	switch action {
	case models.ActionScrape:
		updates["scrape_result"] = resultJSON
	case models.ActionGenerate:
		updates["generate_result"] = resultJSON
	case models.ActionSend:
		updates["send_result"] = resultJSON
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	return r.db.Model(&models.JobExecution{}).
		Where("id = ? AND status = ?", execID, models.ExecutionRunning).
		Updates(updates).Error
}

// HistoryByJob returns a job's executions ordered by started_at, most recent
// first. Pending rows have no started_at yet and sort before everything else.
func (r *ExecutionRepository) HistoryByJob(workspaceID string, jobID uint, limit int) ([]models.JobExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var execs []models.JobExecution
	err := r.db.Where("job_id = ? AND workspace_id = ?", jobID, workspaceID).
		Order("started_at IS NULL DESC, started_at DESC, created_at DESC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// Stats aggregates a job's execution history for the dashboard.
func (r *ExecutionRepository) Stats(workspaceID string, jobID uint) (*models.JobStats, error) {
	stats := &models.JobStats{}
	base := func() *gorm.DB {
		return r.db.Model(&models.JobExecution{}).
			Where("job_id = ? AND workspace_id = ?", jobID, workspaceID)
	}

	if err := base().Count(&stats.TotalExecutions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.ExecutionCompleted).Count(&stats.Completed).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.ExecutionFailed).Count(&stats.Failed).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.ExecutionPartial).Count(&stats.Partial).Error; err != nil {
		return nil, err
	}

	terminal := stats.Completed + stats.Failed + stats.Partial
	if terminal > 0 {
		stats.SuccessRate = float64(stats.Completed+stats.Partial) / float64(terminal)

		var avg *float64
		err := base().Where("completed_at IS NOT NULL").
			Select("AVG(duration_seconds)").Scan(&avg).Error
		if err != nil {
			return nil, err
		}
		if avg != nil {
			stats.AvgDuration = *avg
		}
	}

	var last models.JobExecution
	err := r.db.Where("job_id = ? AND workspace_id = ?", jobID, workspaceID).
		Order("created_at DESC").First(&last).Error
	if err == nil {
		stats.LastExecutionAt = last.StartedAt
		if stats.LastExecutionAt == nil {
			t := last.CreatedAt
			stats.LastExecutionAt = &t
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return stats, nil
}

// RecentByWorkspace builds the cross-job activity feed: a derived read for
// the dashboard, never authoritative state.
func (r *ExecutionRepository) RecentByWorkspace(workspaceID string, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var entries []models.ActivityEntry
	err := r.db.Table("job_executions").
		Select(`job_executions.id AS execution_id,
			job_executions.job_id AS job_id,
			automation_jobs.name AS job_name,
			job_executions.status AS status,
			job_executions.started_at AS started_at,
			job_executions.completed_at AS completed_at,
			job_executions.error AS error`).
		Joins("JOIN automation_jobs ON automation_jobs.id = job_executions.job_id").
		Where("job_executions.workspace_id = ?", workspaceID).
		Order("job_executions.created_at DESC").
		Limit(limit).
		Scan(&entries).Error
	return entries, err
}
