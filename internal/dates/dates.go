// Package dates parses and renders task due dates.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/terminalist/terminalist/internal/model"
)

// Preset is a one-key due date.
type Preset string

const (
	PresetToday    Preset = "today"
	PresetTomorrow Preset = "tomorrow"
	PresetNextWeek Preset = "next_week" // next Monday
	PresetWeekend  Preset = "weekend"   // next Saturday
	PresetNone     Preset = "none"      // clears the due date
)

// Due is a parsed due value. At most one field is set; both nil means no
// due date.
type Due struct {
	Date     *string // YYYY-MM-DD
	Datetime *string // RFC3339
}

// IsZero reports whether d clears the due date.
func (d Due) IsZero() bool {
	return d.Date == nil && d.Datetime == nil
}

// String renders d for messages.
func (d Due) String() string {
	switch {
	case d.Datetime != nil:
		return *d.Datetime
	case d.Date != nil:
		return *d.Date
	}
	return "no date"
}

// FromPreset resolves a preset relative to now.
func FromPreset(p Preset, now time.Time) (Due, error) {
	today := model.StartOfDay(now)
	var day time.Time
	switch p {
	case PresetToday:
		day = today
	case PresetTomorrow:
		day = today.AddDate(0, 0, 1)
	case PresetNextWeek:
		day = NextWeekday(today, time.Monday)
	case PresetWeekend:
		day = NextWeekday(today, time.Saturday)
	case PresetNone:
		return Due{}, nil
	default:
		return Due{}, fmt.Errorf("unknown due date preset %q", p)
	}
	s := model.FormatDate(day)
	return Due{Date: &s}, nil
}

// NextWeekday returns the first target weekday strictly after from.
func NextWeekday(from time.Time, target time.Weekday) time.Time {
	delta := (7 + int(target) - int(from.Weekday())) % 7
	if delta == 0 {
		delta = 7
	}
	return from.AddDate(0, 0, delta)
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse reads a due date typed by the user: a preset name, YYYY-MM-DD,
// RFC3339, or English such as "next friday" or "tomorrow at 5pm". An empty
// string or "none" clears the date.
func Parse(text string, now time.Time) (Due, error) {
	text = strings.TrimSpace(strings.ToLower(text))
	switch text {
	case "", "none", "no date":
		return Due{}, nil
	case "next week":
		return FromPreset(PresetNextWeek, now)
	case "weekend", "this weekend":
		return FromPreset(PresetWeekend, now)
	}
	if p := Preset(text); p == PresetToday || p == PresetTomorrow || p == PresetNextWeek || p == PresetWeekend {
		return FromPreset(p, now)
	}
	if ts, err := time.ParseInLocation(model.DateLayout, text, now.Location()); err == nil {
		s := model.FormatDate(ts)
		return Due{Date: &s}, nil
	}
	if ts, err := time.Parse(time.RFC3339, strings.ToUpper(text)); err == nil {
		s := ts.Format(time.RFC3339)
		return Due{Datetime: &s}, nil
	}

	r, err := parser.Parse(text, now)
	if err != nil {
		return Due{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return Due{}, fmt.Errorf("could not understand due date %q", text)
	}
	// The parser keeps the clock of now when the text names no time.
	if sameClock(r.Time, now) {
		s := model.FormatDate(r.Time)
		return Due{Date: &s}, nil
	}
	s := r.Time.Format(time.RFC3339)
	return Due{Datetime: &s}, nil
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func sameClock(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	return ah == bh && am == bm && as == bs
}

// Humanize renders a YYYY-MM-DD date relative to now: "today",
// "next Friday", "in 12 days", "Jan 05". Unparseable input is returned as is.
func Humanize(date string, now time.Time) string {
	d, err := time.ParseInLocation(model.DateLayout, date, now.Location())
	if err != nil {
		return date
	}
	today := model.StartOfDay(now)
	diff := daysBetween(today, d)

	switch {
	case diff == -1:
		return "yesterday"
	case diff == 0:
		return "today"
	case diff == 1:
		return "tomorrow"
	case diff > 1 && diff <= 7:
		return "next " + d.Weekday().String()
	case diff >= -7 && diff < -1:
		return "last " + d.Weekday().String()
	case diff > 7 && diff <= 30:
		return fmt.Sprintf("in %d days", diff)
	case diff >= -30 && diff < -7:
		return fmt.Sprintf("%d days ago", -diff)
	case d.Year() == today.Year():
		return d.Format("Jan 02")
	}
	return d.Format("Jan 02, 2006")
}

// HumanizeTask renders a task's due value, with the time of day for
// datetime values. Tasks without a due date render as "".
func HumanizeTask(t *model.Task, now time.Time) string {
	if t.DueDatetime != nil {
		if ts, err := time.Parse(time.RFC3339, *t.DueDatetime); err == nil {
			local := ts.In(now.Location())
			return Humanize(model.FormatDate(local), now) + " at " + local.Format("15:04")
		}
	}
	if t.DueDate != nil {
		return Humanize(*t.DueDate, now)
	}
	return ""
}
