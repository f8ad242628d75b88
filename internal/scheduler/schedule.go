// Package scheduler fires a tenant's recurring content triggers. Each
// tenant session owns one Scheduler; expressions are validated before a
// schedule is ever persisted, so every stored schedule is runnable.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkwellhq/inkwell/pkg/models"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Validate checks a cron expression and timezone without persisting
// anything. Callers run this before writing a schedule to the store.
func Validate(expr, timezone string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	return nil
}

// Next returns the schedule's next fire time after now, evaluated in the
// schedule's timezone when one is set.
func Next(sched models.Schedule, now time.Time) (time.Time, error) {
	parsed, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	loc := now.Location()
	if sched.Timezone != "" {
		tz, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone: %w", err)
		}
		loc = tz
	}
	next := parsed.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no next run for %q", sched.CronExpr)
	}
	return next, nil
}
