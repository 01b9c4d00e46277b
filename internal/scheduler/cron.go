package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedules use the classic five fields; seconds are rejected.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(parser))
}

func ValidateCronSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// NextRunTime returns when schedule fires next after from.
func NextRunTime(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// CronDescription renders the common shapes of a schedule for log lines:
// minute steps, hourly, daily and weekly runs. Anything else is echoed.
func CronDescription(schedule string) string {
	f := strings.Fields(schedule)
	if len(f) != 5 || f[2] != "*" || f[3] != "*" {
		return "Custom schedule: " + schedule
	}
	minute, hour, dow := f[0], f[1], f[4]

	if step, ok := strings.CutPrefix(minute, "*/"); ok && hour == "*" && dow == "*" {
		if n, err := strconv.Atoi(step); err == nil {
			return fmt.Sprintf("Every %d minutes", n)
		}
	}

	m, errM := strconv.Atoi(minute)
	if errM != nil || m > 59 {
		return "Custom schedule: " + schedule
	}
	if hour == "*" && dow == "*" {
		return fmt.Sprintf("Every hour at :%02d", m)
	}
	h, errH := strconv.Atoi(hour)
	if errH != nil || h > 23 {
		return "Custom schedule: " + schedule
	}
	at := fmt.Sprintf("%02d:%02d", h, m)
	if dow == "*" {
		return "Daily at " + at
	}
	if d, err := strconv.Atoi(dow); err == nil && d >= 0 && d <= 7 {
		return fmt.Sprintf("Weekly on %s at %s", time.Weekday(d%7), at)
	}
	return "Custom schedule: " + schedule
}
