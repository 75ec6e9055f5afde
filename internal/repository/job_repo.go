package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pressroom/internal/models"
)

var (
	// ErrJobAlreadyRunning is returned when an admission loses the
	// conditional update because another execution is still in flight.
	ErrJobAlreadyRunning = errors.New("job already has an execution in flight")

	ErrJobNotFound = errors.New("job not found")
)

// JobRepository is the job store and the concurrency guard. Mutual exclusion
// for admissions is a single conditional UPDATE on the job row, so multiple
// scheduler processes can share one database safely.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *models.AutomationJob) error {
	return r.db.Create(job).Error
}

// FindByID fetches a job scoped to its workspace. Cross-workspace lookups
// fail with ErrJobNotFound.
func (r *JobRepository) FindByID(workspaceID string, id uint) (*models.AutomationJob, error) {
	var job models.AutomationJob
	err := r.db.Where("id = ? AND workspace_id = ?", id, workspaceID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) FindAll(workspaceID string, limit, page int) ([]models.AutomationJob, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}

	var total int64
	base := r.db.Model(&models.AutomationJob{}).Where("workspace_id = ?", workspaceID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.AutomationJob
	err := r.db.Where("workspace_id = ?", workspaceID).
		Order("id ASC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&jobs).Error
	return jobs, total, err
}

// UpdateFields applies a partial update scoped to the workspace.
func (r *JobRepository) UpdateFields(workspaceID string, id uint, fields map[string]interface{}) error {
	res := r.db.Model(&models.AutomationJob{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Due returns active, enabled jobs whose next_run_at has reached now and
// which have no execution in flight.
func (r *JobRepository) Due(now time.Time) ([]models.AutomationJob, error) {
	var jobs []models.AutomationJob
	err := r.db.Where(
		"status = ? AND is_enabled = ? AND run_in_flight = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
		models.JobStatusActive, true, false, now,
	).Order("next_run_at ASC").Find(&jobs).Error
	return jobs, err
}

// AdmitRun atomically claims the job for one execution and inserts the
// pending execution row. The claim is a compare-and-set on run_in_flight:
// losing it (RowsAffected == 0) means another process already admitted a run,
// which is expected under concurrent evaluators, not an error condition of
// the store.
func (r *JobRepository) AdmitRun(job *models.AutomationJob, testMode bool) (*models.JobExecution, error) {
	exec := &models.JobExecution{
		ID:          uuid.New().String(),
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Status:      models.ExecutionPending,
		TestMode:    testMode,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AutomationJob{}).
			Where("id = ? AND run_in_flight = ?", job.ID, false).
			Update("run_in_flight", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobAlreadyRunning
		}
		return tx.Create(exec).Error
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// FinalizeRun closes an execution and releases the guard in one transaction:
// terminal execution fields, job bookkeeping counters and last_run mirror
// fields. The execution update is conditional on completed_at being unset,
// keeping terminal rows immutable.
//
// next_run_at is written against the row's CURRENT state, not the runner's
// snapshot: a pause or delete that landed mid-run keeps its NULL, and a nil
// nextRun (evaluator failure) keeps the previous value so the next tick
// retries instead of silently unscheduling the job.
func (r *JobRepository) FinalizeRun(
	job *models.AutomationJob,
	exec *models.JobExecution,
	status models.ExecutionStatus,
	execErr string,
	completedAt time.Time,
	nextRun *time.Time,
) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var duration float64
		if exec.StartedAt != nil {
			duration = completedAt.Sub(*exec.StartedAt).Seconds()
		}

		res := tx.Model(&models.JobExecution{}).
			Where("id = ? AND completed_at IS NULL", exec.ID).
			Updates(map[string]interface{}{
				"status":           status,
				"completed_at":     completedAt,
				"duration_seconds": duration,
				"error":            execErr,
			})
		if res.Error != nil {
			return res.Error
		}

		updates := map[string]interface{}{
			"run_in_flight":   false,
			"last_run_at":     completedAt,
			"last_run_status": string(status),
			"last_error":      execErr,
			"total_runs":      gorm.Expr("total_runs + 1"),
		}
		switch status {
		case models.ExecutionCompleted, models.ExecutionPartial:
			updates["successful_runs"] = gorm.Expr("successful_runs + 1")
		case models.ExecutionFailed:
			updates["failed_runs"] = gorm.Expr("failed_runs + 1")
		}
		if err := tx.Model(&models.AutomationJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}

		if nextRun == nil {
			return nil
		}
		// Matching zero rows here is fine: the job was paused or disabled
		// while the run was in flight and must stay unscheduled.
		return tx.Model(&models.AutomationJob{}).
			Where("id = ? AND status = ? AND is_enabled = ?", job.ID, models.JobStatusActive, true).
			Update("next_run_at", *nextRun).Error
	})
}

// RecoverOrphans fails executions left pending or running by a crashed
// process and releases their jobs' guards. Called once at startup, before the
// tick loop begins; counters are deliberately not bumped since the runs never
// reached a real outcome.
func (r *JobRepository) RecoverOrphans(now time.Time) (int64, error) {
	var released int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.JobExecution{}).
			Where("status IN ?", []models.ExecutionStatus{models.ExecutionPending, models.ExecutionRunning}).
			Updates(map[string]interface{}{
				"status":       models.ExecutionFailed,
				"completed_at": now,
				"error":        "interrupted by process restart",
			}).Error
		if err != nil {
			return err
		}

		res := tx.Model(&models.AutomationJob{}).
			Where("run_in_flight = ?", true).
			Update("run_in_flight", false)
		released = res.RowsAffected
		return res.Error
	})
	return released, err
}
