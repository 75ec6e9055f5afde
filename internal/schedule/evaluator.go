// Package schedule computes when a job is next due. All computation is pure:
// the reference instant is an explicit parameter and every wall-clock decision
// is made in the job's own timezone.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pressroom/internal/models"
)

var (
	ErrUnknownScheduleType = errors.New("unknown schedule type")
	ErrEmptyWeekdays       = errors.New("weekly schedule requires at least one weekday")
	ErrNoActions           = errors.New("job requires at least one action")
)

// cronParser accepts standard 5-field expressions plus descriptors
// (@daily, @every ...).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// actionRank fixes the pipeline stage order: scrape before generate before send.
var actionRank = map[models.Action]int{
	models.ActionScrape:   0,
	models.ActionGenerate: 1,
	models.ActionSend:     2,
}

// NextRun computes the next instant at or after ref at which the job is due,
// in the job's timezone. Daily and weekly schedules preserve wall-clock time
// across DST transitions: "every day at 08:00" means 08:00 local, whatever
// the UTC offset happens to be that day.
func NextRun(job *models.AutomationJob, ref time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", job.Timezone, err)
	}
	local := ref.In(loc)

	switch job.ScheduleType {
	case models.ScheduleDaily:
		hour, minute, err := parseTimeOfDay(job.ScheduleTime)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if candidate.Before(local) {
			candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
		}
		return candidate, nil

	case models.ScheduleWeekly:
		hour, minute, err := parseTimeOfDay(job.ScheduleTime)
		if err != nil {
			return time.Time{}, err
		}
		days, err := weekdaySet(job)
		if err != nil {
			return time.Time{}, err
		}
		if len(days) == 0 {
			return time.Time{}, ErrEmptyWeekdays
		}
		for offset := 0; offset <= 7; offset++ {
			candidate := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, minute, 0, 0, loc)
			if days[candidate.Weekday()] && !candidate.Before(local) {
				return candidate, nil
			}
		}
		return time.Time{}, fmt.Errorf("no weekly occurrence found within 7 days for job %d", job.ID)

	case models.ScheduleCustom, models.ScheduleCron:
		spec, err := cronParser.Parse(job.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", job.CronExpression, err)
		}
		next := spec.Next(local)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron expression %q yields no future occurrence", job.CronExpression)
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownScheduleType, job.ScheduleType)
	}
}

// Validate rejects malformed schedules and action lists synchronously at
// create/update time. Invalid definitions are never stored or silently
// defaulted.
func Validate(job *models.AutomationJob) error {
	if _, err := time.LoadLocation(job.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", job.Timezone, err)
	}

	switch job.ScheduleType {
	case models.ScheduleDaily:
		if _, _, err := parseTimeOfDay(job.ScheduleTime); err != nil {
			return err
		}
	case models.ScheduleWeekly:
		if _, _, err := parseTimeOfDay(job.ScheduleTime); err != nil {
			return err
		}
		days, err := job.ScheduleDayList()
		if err != nil {
			return fmt.Errorf("invalid schedule_days: %w", err)
		}
		if len(days) == 0 {
			return ErrEmptyWeekdays
		}
		for _, d := range days {
			if _, ok := weekdayNames[strings.ToLower(d)]; !ok {
				return fmt.Errorf("invalid weekday %q", d)
			}
		}
	case models.ScheduleCustom, models.ScheduleCron:
		if strings.TrimSpace(job.CronExpression) == "" {
			return errors.New("cron expression is required")
		}
		if _, err := cronParser.Parse(job.CronExpression); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", job.CronExpression, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScheduleType, job.ScheduleType)
	}

	return validateActions(job)
}

func validateActions(job *models.AutomationJob) error {
	actions, err := job.ActionList()
	if err != nil {
		return fmt.Errorf("invalid actions: %w", err)
	}
	if len(actions) == 0 {
		return ErrNoActions
	}
	prev := -1
	for _, a := range actions {
		rank, ok := actionRank[a]
		if !ok {
			return fmt.Errorf("unknown action %q", a)
		}
		if rank == prev {
			return fmt.Errorf("duplicate action %q", a)
		}
		if rank < prev {
			return fmt.Errorf("action %q out of order: pipeline runs scrape, generate, send", a)
		}
		prev = rank
	}
	return nil
}

// ParseActions converts raw action names into the closed enum, preserving
// order. Used by handlers before storing a job.
func ParseActions(raw []string) ([]models.Action, error) {
	actions := make([]models.Action, 0, len(raw))
	for _, r := range raw {
		a := models.Action(strings.ToLower(strings.TrimSpace(r)))
		if _, ok := actionRank[a]; !ok {
			return nil, fmt.Errorf("unknown action %q", r)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func weekdaySet(job *models.AutomationJob) (map[time.Weekday]bool, error) {
	names, err := job.ScheduleDayList()
	if err != nil {
		return nil, fmt.Errorf("invalid schedule_days: %w", err)
	}
	set := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		wd, ok := weekdayNames[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", n)
		}
		set[wd] = true
	}
	return set, nil
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule_time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule_time %q, want HH:MM", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule_time %q, want HH:MM", s)
	}
	return hour, minute, nil
}
