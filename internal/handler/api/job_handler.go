package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pressroom/internal/models"
	"pressroom/internal/pipeline"
	"pressroom/internal/repository"
	"pressroom/internal/schedule"
)

// JobHandler is the control surface for automation jobs: CRUD plus the
// pause/resume/run-now transitions and the history/stats reads.
type JobHandler struct {
	workspaces *repository.WorkspaceRepository
	jobs       *repository.JobRepository
	executions *repository.ExecutionRepository
	runner     *pipeline.Runner
	logger     *zap.Logger
}

func NewJobHandler(
	workspaces *repository.WorkspaceRepository,
	jobs *repository.JobRepository,
	executions *repository.ExecutionRepository,
	runner *pipeline.Runner,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		workspaces: workspaces,
		jobs:       jobs,
		executions: executions,
		runner:     runner,
		logger:     logger,
	}
}

// Create handles POST /api/workspaces/:workspace_id/jobs.
func (h *JobHandler) Create(c echo.Context) error {
	workspaceID := c.Param("workspace_id")
	if _, err := h.workspaces.FindByID(workspaceID); err != nil {
		return errorResponse(c, http.StatusNotFound, "Workspace not found")
	}

	var req models.CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Name == "" {
		return errorResponse(c, http.StatusBadRequest, "name is required")
	}

	actions, err := schedule.ParseActions(req.Actions)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	job := &models.AutomationJob{
		WorkspaceID:    workspaceID,
		Name:           req.Name,
		ScheduleType:   models.ScheduleType(req.ScheduleType),
		ScheduleTime:   req.ScheduleTime,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		Status:         models.JobStatusActive,
		IsEnabled:      true,
	}
	if err := job.SetActionList(actions); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid actions")
	}
	if err := job.SetScheduleDayList(req.ScheduleDays); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid schedule_days")
	}

	if err := schedule.Validate(job); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	next, err := schedule.NextRun(job, time.Now())
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}
	job.NextRunAt = &next

	if err := h.jobs.Create(job); err != nil {
		h.logger.Error("Failed to create job", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to create job")
	}
	return successResponse(c, "Job created", job)
}

// List handles GET /api/workspaces/:workspace_id/jobs.
func (h *JobHandler) List(c echo.Context) error {
	workspaceID := c.Param("workspace_id")
	limit := queryInt(c, "limit", 50)
	page := queryInt(c, "page", 1)

	jobs, total, err := h.jobs.FindAll(workspaceID, limit, page)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve jobs")
	}
	return successResponse(c, "Successful", paginatedResponse(jobs, total, page, limit))
}

// Get handles GET /api/workspaces/:workspace_id/jobs/:id.
func (h *JobHandler) Get(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}
	return successResponse(c, "Successful", job)
}

// Update handles PUT /api/workspaces/:workspace_id/jobs/:id. Schedule-field
// changes force a next_run_at recomputation; action changes take effect with
// the next admitted execution.
func (h *JobHandler) Update(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}

	var req models.UpdateJobRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}

	fields := map[string]interface{}{}
	scheduleChanged := false

	if req.Name != nil {
		job.Name = *req.Name
		fields["name"] = *req.Name
	}
	if req.ScheduleType != nil {
		job.ScheduleType = models.ScheduleType(*req.ScheduleType)
		fields["schedule_type"] = *req.ScheduleType
		scheduleChanged = true
	}
	if req.ScheduleTime != nil {
		job.ScheduleTime = *req.ScheduleTime
		fields["schedule_time"] = *req.ScheduleTime
		scheduleChanged = true
	}
	if req.ScheduleDays != nil {
		if err := job.SetScheduleDayList(*req.ScheduleDays); err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid schedule_days")
		}
		fields["schedule_days"] = job.ScheduleDays
		scheduleChanged = true
	}
	if req.CronExpression != nil {
		job.CronExpression = *req.CronExpression
		fields["cron_expression"] = *req.CronExpression
		scheduleChanged = true
	}
	if req.Timezone != nil {
		job.Timezone = *req.Timezone
		fields["timezone"] = *req.Timezone
		scheduleChanged = true
	}
	if req.Actions != nil {
		actions, err := schedule.ParseActions(*req.Actions)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, err.Error())
		}
		if err := job.SetActionList(actions); err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid actions")
		}
		fields["actions"] = job.Actions
	}
	if req.IsEnabled != nil {
		job.IsEnabled = *req.IsEnabled
		fields["is_enabled"] = *req.IsEnabled
	}

	if len(fields) == 0 {
		return successResponse(c, "Nothing to update", job)
	}

	if err := schedule.Validate(job); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	if scheduleChanged && job.Status == models.JobStatusActive {
		next, err := schedule.NextRun(job, time.Now())
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, err.Error())
		}
		job.NextRunAt = &next
		fields["next_run_at"] = next
	}

	if err := h.jobs.UpdateFields(job.WorkspaceID, job.ID, fields); err != nil {
		h.logger.Error("Failed to update job", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to update job")
	}
	return successResponse(c, "Job updated", job)
}

// Delete handles DELETE /api/workspaces/:workspace_id/jobs/:id. The job is
// soft-disabled; execution history is preserved for audit.
func (h *JobHandler) Delete(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}

	fields := map[string]interface{}{
		"status":      models.JobStatusDisabled,
		"is_enabled":  false,
		"next_run_at": nil,
	}
	if err := h.jobs.UpdateFields(job.WorkspaceID, job.ID, fields); err != nil {
		h.logger.Error("Failed to delete job", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to delete job")
	}
	return successResponse(c, "Job deleted", nil)
}

// Pause handles POST .../jobs/:id/pause. Idempotent; paused jobs keep their
// definition but are no longer evaluated, so next_run_at is cleared.
func (h *JobHandler) Pause(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}
	if job.Status == models.JobStatusDisabled {
		return errorResponse(c, http.StatusConflict, "Job is disabled")
	}
	if job.Status == models.JobStatusPaused {
		return successResponse(c, "Job already paused", job)
	}

	fields := map[string]interface{}{
		"status":      models.JobStatusPaused,
		"next_run_at": nil,
	}
	if err := h.jobs.UpdateFields(job.WorkspaceID, job.ID, fields); err != nil {
		h.logger.Error("Failed to pause job", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to pause job")
	}
	job.Status = models.JobStatusPaused
	job.NextRunAt = nil
	return successResponse(c, "Job paused", job)
}

// Resume handles POST .../jobs/:id/resume. Rejected for disabled jobs;
// recomputes next_run_at from now.
func (h *JobHandler) Resume(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}
	if job.Status == models.JobStatusDisabled {
		return errorResponse(c, http.StatusConflict, "Job is disabled")
	}
	if job.Status == models.JobStatusActive {
		return successResponse(c, "Job already active", job)
	}

	job.Status = models.JobStatusActive
	next, err := schedule.NextRun(job, time.Now())
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	fields := map[string]interface{}{
		"status":      models.JobStatusActive,
		"next_run_at": next,
	}
	if err := h.jobs.UpdateFields(job.WorkspaceID, job.ID, fields); err != nil {
		h.logger.Error("Failed to resume job", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to resume job")
	}
	job.NextRunAt = &next
	return successResponse(c, "Job resumed", job)
}

// RunNow handles POST .../jobs/:id/run-now. Bypasses the schedule but not
// the concurrency guard; even paused jobs can be triggered manually. The
// response reports the admission outcome only.
func (h *JobHandler) RunNow(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}
	if job.Status == models.JobStatusDisabled {
		return errorResponse(c, http.StatusConflict, "Job is disabled")
	}

	var req models.RunNowRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}

	exec, err := h.jobs.AdmitRun(job, req.TestMode)
	if errors.Is(err, repository.ErrJobAlreadyRunning) {
		return errorResponse(c, http.StatusConflict, "Job already running")
	}
	if err != nil {
		h.logger.Error("Failed to admit run-now execution", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to start execution")
	}

	h.logger.Info("Run-now execution admitted",
		zap.Uint("job_id", job.ID),
		zap.String("execution_id", exec.ID),
		zap.Bool("test_mode", req.TestMode))

	h.runner.Go(context.Background(), job, exec)

	return successResponse(c, "Execution started", models.RunNowResponse{
		ExecutionID: exec.ID,
		JobID:       job.ID,
		Status:      string(exec.Status),
		Message:     "Execution admitted; poll history for the outcome",
	})
}

// History handles GET .../jobs/:id/history?limit=N, most recent first.
func (h *JobHandler) History(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}
	limit := queryInt(c, "limit", 50)

	execs, err := h.executions.HistoryByJob(job.WorkspaceID, job.ID, limit)
	if err != nil {
		h.logger.Error("Failed to load execution history", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve history")
	}
	return successResponse(c, "Successful", execs)
}

// GetExecution handles GET /api/workspaces/:workspace_id/executions/:execution_id.
// Run-now callers poll this for the final outcome.
func (h *JobHandler) GetExecution(c echo.Context) error {
	workspaceID := c.Param("workspace_id")
	exec, err := h.executions.FindByID(workspaceID, c.Param("execution_id"))
	if errors.Is(err, repository.ErrExecutionNotFound) {
		return errorResponse(c, http.StatusNotFound, "Execution not found")
	}
	if err != nil {
		h.logger.Error("Failed to load execution", zap.String("execution_id", c.Param("execution_id")), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve execution")
	}
	return successResponse(c, "Successful", exec)
}

// Stats handles GET .../jobs/:id/stats.
func (h *JobHandler) Stats(c echo.Context) error {
	job, ok := h.findJob(c)
	if !ok {
		return nil
	}

	stats, err := h.executions.Stats(job.WorkspaceID, job.ID)
	if err != nil {
		h.logger.Error("Failed to aggregate job stats", zap.Uint("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve stats")
	}
	return successResponse(c, "Successful", stats)
}

// findJob loads the workspace-scoped job, writing the error response itself
// when the lookup fails.
func (h *JobHandler) findJob(c echo.Context) (*models.AutomationJob, bool) {
	workspaceID := c.Param("workspace_id")
	id, ok := paramUint(c, "id")
	if !ok {
		_ = errorResponse(c, http.StatusBadRequest, "Invalid job id")
		return nil, false
	}
	job, err := h.jobs.FindByID(workspaceID, id)
	if errors.Is(err, repository.ErrJobNotFound) {
		_ = errorResponse(c, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load job", zap.Uint("job_id", id), zap.Error(err))
		_ = errorResponse(c, http.StatusInternalServerError, "Failed to retrieve job")
		return nil, false
	}
	return job, true
}
