package models

import "time"

// --- Job API payloads ---

type CreateJobRequest struct {
	Name           string   `json:"name"`
	ScheduleType   string   `json:"schedule_type"`
	ScheduleTime   string   `json:"schedule_time"`
	ScheduleDays   []string `json:"schedule_days,omitempty"`
	CronExpression string   `json:"cron_expression,omitempty"`
	Timezone       string   `json:"timezone"`
	Actions        []string `json:"actions"`
}

// UpdateJobRequest carries a partial patch; nil fields are left untouched.
// Any schedule-field change forces a next_run_at recomputation.
type UpdateJobRequest struct {
	Name           *string   `json:"name,omitempty"`
	ScheduleType   *string   `json:"schedule_type,omitempty"`
	ScheduleTime   *string   `json:"schedule_time,omitempty"`
	ScheduleDays   *[]string `json:"schedule_days,omitempty"`
	CronExpression *string   `json:"cron_expression,omitempty"`
	Timezone       *string   `json:"timezone,omitempty"`
	Actions        *[]string `json:"actions,omitempty"`
	IsEnabled      *bool     `json:"is_enabled,omitempty"`
}

type RunNowRequest struct {
	TestMode bool `json:"test_mode"`
}

// RunNowResponse reports the admission outcome, not the final execution
// outcome; callers poll execution history for that.
type RunNowResponse struct {
	ExecutionID string `json:"execution_id"`
	JobID       uint   `json:"job_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// JobStats aggregates a job's execution history.
type JobStats struct {
	TotalExecutions int64      `json:"total_executions"`
	Completed       int64      `json:"completed"`
	Failed          int64      `json:"failed"`
	Partial         int64      `json:"partial"`
	SuccessRate     float64    `json:"success_rate"`
	AvgDuration     float64    `json:"avg_duration_seconds"`
	LastExecutionAt *time.Time `json:"last_execution_at"`
}

// ActivityEntry is one row of the cross-job recent-activity feed.
type ActivityEntry struct {
	ExecutionID string     `json:"execution_id"`
	JobID       uint       `json:"job_id"`
	JobName     string     `json:"job_name"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Error       string     `json:"error,omitempty"`
}

// --- Workspace API payloads ---

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}
