package models

import (
	"encoding/json"
	"time"
)

// ScheduleType selects how next_run_at is computed.
type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
	ScheduleCustom ScheduleType = "custom"
	ScheduleCron   ScheduleType = "cron"
)

// JobStatus is the job lifecycle state. Paused jobs keep their definition
// but are not evaluated; disabled jobs additionally refuse manual runs.
type JobStatus string

const (
	JobStatusActive   JobStatus = "active"
	JobStatusPaused   JobStatus = "paused"
	JobStatusDisabled JobStatus = "disabled"
)

// Action is one pipeline stage. The stored list is ordered; the runner
// dispatches stages strictly in this order.
type Action string

const (
	ActionScrape   Action = "scrape"
	ActionGenerate Action = "generate"
	ActionSend     Action = "send"
)

// AutomationJob maps to the `automation_jobs` table: one recurring
// newsletter pipeline definition per row.
type AutomationJob struct {
	ID          uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkspaceID string `gorm:"column:workspace_id;size:36;index:idx_jobs_workspace_status,priority:1;not null" json:"workspace_id"`
	Name        string `gorm:"column:name;size:255;not null" json:"name"`

	ScheduleType   ScheduleType `gorm:"column:schedule_type;size:20;not null" json:"schedule_type"`
	ScheduleTime   string       `gorm:"column:schedule_time;size:5" json:"schedule_time"`
	ScheduleDays   string       `gorm:"column:schedule_days;size:500" json:"schedule_days"`
	CronExpression string       `gorm:"column:cron_expression;size:255" json:"cron_expression"`
	Timezone       string       `gorm:"column:timezone;size:64;not null" json:"timezone"`

	Actions string `gorm:"column:actions;size:255;not null" json:"actions"`

	Status      JobStatus `gorm:"column:status;size:20;index:idx_jobs_workspace_status,priority:2;default:active" json:"status"`
	IsEnabled   bool      `gorm:"column:is_enabled;default:true" json:"is_enabled"`
	RunInFlight bool      `gorm:"column:run_in_flight;default:false" json:"-"`

	LastRunAt     *time.Time `gorm:"column:last_run_at" json:"last_run_at"`
	LastRunStatus string     `gorm:"column:last_run_status;size:20" json:"last_run_status"`
	LastError     string     `gorm:"column:last_error;type:text" json:"last_error"`
	NextRunAt     *time.Time `gorm:"column:next_run_at;index" json:"next_run_at"`

	TotalRuns      int `gorm:"column:total_runs;default:0" json:"total_runs"`
	SuccessfulRuns int `gorm:"column:successful_runs;default:0" json:"successful_runs"`
	FailedRuns     int `gorm:"column:failed_runs;default:0" json:"failed_runs"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AutomationJob) TableName() string {
	return "automation_jobs"
}

// ActionList decodes the stored JSON action list.
func (j *AutomationJob) ActionList() ([]Action, error) {
	var actions []Action
	if err := json.Unmarshal([]byte(j.Actions), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// SetActionList stores the ordered action list as JSON.
func (j *AutomationJob) SetActionList(actions []Action) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	j.Actions = string(raw)
	return nil
}

// ScheduleDayList decodes the stored JSON weekday list (weekly jobs only).
func (j *AutomationJob) ScheduleDayList() ([]string, error) {
	if j.ScheduleDays == "" {
		return nil, nil
	}
	var days []string
	if err := json.Unmarshal([]byte(j.ScheduleDays), &days); err != nil {
		return nil, err
	}
	return days, nil
}

// SetScheduleDayList stores the weekday list as JSON.
func (j *AutomationJob) SetScheduleDayList(days []string) error {
	raw, err := json.Marshal(days)
	if err != nil {
		return err
	}
	j.ScheduleDays = string(raw)
	return nil
}
