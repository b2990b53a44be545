package topup

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2026, 1, 1, 22, 30, 0, 0, time.UTC)
	tokyo, err := LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	tests := []struct {
		schedule ScheduleType
		loc      *time.Location
		want     string
	}{
		{ScheduleDaily, time.UTC, "2026-01-01"},
		{ScheduleDaily, tokyo, "2026-01-02"},
		{ScheduleWeekly, time.UTC, "2026-W01"},
		{ScheduleMonthly, time.UTC, "2026-01"},
		{ScheduleMonthly, tokyo, "2026-01"},
	}
	for _, tt := range tests {
		got, err := PeriodKey(tt.schedule, at, tt.loc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s in %s", tt.schedule, tt.loc)
	}

	// ISO weeks: 2027-01-01 is a Friday that belongs to week 53 of 2026.
	key, err := PeriodKey(ScheduleWeekly, time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2026-W53", key)

	_, err = PeriodKey("HOURLY", at, time.UTC)
	assert.Error(t, err)
}

func TestPeriodStart(t *testing.T) {
	// Thursday.
	at := time.Date(2026, 10, 15, 17, 45, 0, 0, time.UTC)

	tests := []struct {
		schedule ScheduleType
		want     time.Time
	}{
		{ScheduleDaily, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)},
		{ScheduleWeekly, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{ScheduleMonthly, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := PeriodStart(tt.schedule, at, time.UTC)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.schedule, got)
	}

	sunday := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	got, err := PeriodStart(ScheduleWeekly, sunday, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.Equal(t, 12, got.Day())
}

func TestNextRun(t *testing.T) {
	t.Run("daily", func(t *testing.T) {
		got, err := NextRun(ScheduleDaily, time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), got)
	})

	t.Run("weekly", func(t *testing.T) {
		got, err := NextRun(ScheduleWeekly, time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2027, 1, 4, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("monthly clamps to month end", func(t *testing.T) {
		got, err := NextRun(ScheduleMonthly, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), got)

		got, err = NextRun(ScheduleMonthly, time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("daily keeps local midnight across DST", func(t *testing.T) {
		berlin, err := LoadLocation("Europe/Berlin")
		require.NoError(t, err)

		prev := time.Date(2026, 3, 29, 0, 0, 0, 0, berlin)
		got, err := NextRun(ScheduleDaily, prev, berlin)
		require.NoError(t, err)

		assert.Equal(t, 0, got.In(berlin).Hour())
		assert.Equal(t, 30, got.In(berlin).Day())
		assert.Equal(t, 23*time.Hour, got.Sub(prev), "spring-forward day is 23 hours long")
	})

	t.Run("next run lands in the next period", func(t *testing.T) {
		for _, s := range []ScheduleType{ScheduleDaily, ScheduleWeekly, ScheduleMonthly} {
			start, err := PeriodStart(s, time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC), time.UTC)
			require.NoError(t, err)
			next, err := NextRun(s, start, time.UTC)
			require.NoError(t, err)

			k1, _ := PeriodKey(s, start, time.UTC)
			k2, _ := PeriodKey(s, next, time.UTC)
			assert.NotEqual(t, k1, k2, string(s))
		}
	})
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}
