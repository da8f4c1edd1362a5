package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalist/terminalist/internal/model"
)

// Wednesday, 10:30 local.
var now = time.Date(2025, time.January, 15, 10, 30, 0, 0, time.UTC)

func TestNextWeekday(t *testing.T) {
	wed := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-20", model.FormatDate(NextWeekday(wed, time.Monday)))
	assert.Equal(t, "2025-01-18", model.FormatDate(NextWeekday(wed, time.Saturday)))
	assert.Equal(t, "2025-01-22", model.FormatDate(NextWeekday(wed, time.Wednesday)), "same weekday means a week later")
}

func TestFromPreset(t *testing.T) {
	tests := []struct {
		preset Preset
		want   string
	}{
		{PresetToday, "2025-01-15"},
		{PresetTomorrow, "2025-01-16"},
		{PresetNextWeek, "2025-01-20"},
		{PresetWeekend, "2025-01-18"},
	}
	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			due, err := FromPreset(tt.preset, now)
			require.NoError(t, err)
			require.NotNil(t, due.Date)
			assert.Equal(t, tt.want, *due.Date)
		})
	}

	due, err := FromPreset(PresetNone, now)
	require.NoError(t, err)
	assert.True(t, due.IsZero())

	_, err = FromPreset("someday", now)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		date     string
		datetime bool
	}{
		{"today", "2025-01-15", false},
		{"Tomorrow", "2025-01-16", false},
		{"next week", "2025-01-20", false},
		{"2025-03-01", "2025-03-01", false},
		{"2025-03-01T09:00:00Z", "", true},
		{"tomorrow at 5pm", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			due, err := Parse(tt.in, now)
			require.NoError(t, err)
			if tt.datetime {
				require.NotNil(t, due.Datetime)
				assert.Nil(t, due.Date)
				return
			}
			require.NotNil(t, due.Date)
			assert.Equal(t, tt.date, *due.Date)
		})
	}

	due, err := Parse("", now)
	require.NoError(t, err)
	assert.True(t, due.IsZero())

	_, err = Parse("qwerty zxcv", now)
	assert.Error(t, err)
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-01-14", "yesterday"},
		{"2025-01-15", "today"},
		{"2025-01-16", "tomorrow"},
		{"2025-01-20", "next Monday"},
		{"2025-01-10", "last Friday"},
		{"2025-02-01", "in 17 days"},
		{"2024-12-31", "15 days ago"},
		{"2025-06-30", "Jun 30"},
		{"2026-06-30", "Jun 30, 2026"},
		{"not a date", "not a date"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, Humanize(tt.date, now))
		})
	}
}

func TestHumanizeTask(t *testing.T) {
	dt := "2025-01-16T17:00:00Z"
	assert.Equal(t, "tomorrow at 17:00", HumanizeTask(&model.Task{DueDatetime: &dt}, now))
	d := "2025-01-15"
	assert.Equal(t, "today", HumanizeTask(&model.Task{DueDate: &d}, now))
	assert.Equal(t, "", HumanizeTask(&model.Task{}, now))
}
