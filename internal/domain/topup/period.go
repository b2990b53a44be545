package topup

import (
	"fmt"
	"time"
)

// ScheduleType is the recurrence of a top-up rule.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "DAILY"
	ScheduleWeekly  ScheduleType = "WEEKLY"
	ScheduleMonthly ScheduleType = "MONTHLY"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// LoadLocation resolves a rule timezone; empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// PeriodKey identifies the schedule period containing t in loc:
// 2006-01-02 for daily, ISO 2006-W01 for weekly, 2006-01 for monthly.
func PeriodKey(s ScheduleType, t time.Time, loc *time.Location) (string, error) {
	local := t.In(loc)
	switch s {
	case ScheduleDaily:
		return local.Format("2006-01-02"), nil
	case ScheduleWeekly:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case ScheduleMonthly:
		return local.Format("2006-01"), nil
	}
	return "", fmt.Errorf("unknown schedule type %q", s)
}

// PeriodStart returns local midnight of the first day of the period containing t.
// Weeks start on Monday.
func PeriodStart(s ScheduleType, t time.Time, loc *time.Location) (time.Time, error) {
	local := t.In(loc)
	y, m, d := local.Date()
	switch s {
	case ScheduleDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case ScheduleWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc), nil
	case ScheduleMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unknown schedule type %q", s)
}

// NextRun advances prev by one period in loc, keeping the local wall clock
// across DST changes. Monthly steps clamp to the last day of shorter months.
func NextRun(s ScheduleType, prev time.Time, loc *time.Location) (time.Time, error) {
	local := prev.In(loc)
	switch s {
	case ScheduleDaily:
		return local.AddDate(0, 0, 1), nil
	case ScheduleWeekly:
		return local.AddDate(0, 0, 7), nil
	case ScheduleMonthly:
		y, m, d := local.Date()
		first := time.Date(y, m+1, 1, local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc)
		if last := daysIn(first.Year(), first.Month()); d > last {
			d = last
		}
		return first.AddDate(0, 0, d-1), nil
	}
	return time.Time{}, fmt.Errorf("unknown schedule type %q", s)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
