package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the run state machine:
// pending -> running -> completed | failed | partial.
// Terminal rows are immutable once completed_at is set.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPartial   ExecutionStatus = "partial"
)

// IsTerminal reports whether the status ends the state machine.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionPartial
}

// JobExecution maps to the `job_executions` table: one append-only record
// per run attempt. Rows are never deleted; history is the audit trail.
type JobExecution struct {
	ID          string `gorm:"column:id;primaryKey;size:36" json:"id"`
	JobID       uint   `gorm:"column:job_id;index:idx_executions_job_started,priority:1;not null" json:"job_id"`
	WorkspaceID string `gorm:"column:workspace_id;size:36;index;not null" json:"workspace_id"`

	Status   ExecutionStatus `gorm:"column:status;size:20;index" json:"status"`
	TestMode bool            `gorm:"column:test_mode;default:false" json:"test_mode"`

	StartedAt       *time.Time `gorm:"column:started_at;index:idx_executions_job_started,priority:2" json:"started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at"`
	DurationSeconds float64    `gorm:"column:duration_seconds;default:0" json:"duration_seconds"`

	ActionsPerformed string `gorm:"column:actions_performed;size:255" json:"actions_performed"`
	ScrapeResult     string `gorm:"column:scrape_result;type:text" json:"scrape_result"`
	GenerateResult   string `gorm:"column:generate_result;type:text" json:"generate_result"`
	SendResult       string `gorm:"column:send_result;type:text" json:"send_result"`
	Error            string `gorm:"column:error;type:text" json:"error"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (JobExecution) TableName() string {
	return "job_executions"
}

// PerformedList decodes the recorded action list. A prefix of the job's
// action list when an early action aborted the chain.
func (e *JobExecution) PerformedList() ([]Action, error) {
	if e.ActionsPerformed == "" {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(e.ActionsPerformed), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}
