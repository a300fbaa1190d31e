// Package schedule computes the next occurrence of a payout cadence.
//
// Each frequency has its own calculator behind a common strategy interface.
// The calculators are pure date math with no side effects, so calling one
// twice with the same inputs always yields the same date.
package schedule

import (
	"fmt"
	"time"

	"paghetta/internal/core"
)

// Anchor carries the per-config anchor values a calculator may need.
// DayOfWeek is 0 (Sunday) through 6, DayOfMonth 1 through 28.
type Anchor struct {
	DayOfWeek  int
	DayOfMonth int
}

// NextDateCalculator is the strategy interface for one cadence.
type NextDateCalculator interface {
	// Next returns the first payment date strictly after today.
	Next(today time.Time, anchor Anchor) time.Time
}

// DailyCalculator pays every day: tomorrow.
type DailyCalculator struct{}

func (DailyCalculator) Next(today time.Time, _ Anchor) time.Time {
	return core.TruncateToDay(today).AddDate(0, 0, 1)
}

// WeeklyCalculator pays on a fixed weekday. When today already is that
// weekday the payment wraps a full week ahead.
type WeeklyCalculator struct{}

func (WeeklyCalculator) Next(today time.Time, anchor Anchor) time.Time {
	day := core.TruncateToDay(today)
	delta := (anchor.DayOfWeek - int(day.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return day.AddDate(0, 0, delta)
}

// BiweeklyCalculator pays on the fixed anchor days 1 and 15 of each month.
type BiweeklyCalculator struct{}

func (BiweeklyCalculator) Next(today time.Time, _ Anchor) time.Time {
	day := core.TruncateToDay(today)
	if day.Day() < 15 {
		return time.Date(day.Year(), day.Month(), 15, 0, 0, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).AddDate(0, 1, 0)
}

// MonthlyCalculator pays on a fixed day of the month. Configs keep the
// anchor at 28 or below, but a target beyond the month's length is still
// clamped to the month's last day rather than rolling over.
type MonthlyCalculator struct{}

func (MonthlyCalculator) Next(today time.Time, anchor Anchor) time.Time {
	day := core.TruncateToDay(today)
	year, month := day.Year(), day.Month()
	if day.Day() >= anchor.DayOfMonth {
		month++
	}
	return clampToMonth(year, month, anchor.DayOfMonth, day.Location())
}

// clampToMonth builds year/month/day, clamping day to the month's last day.
// time.Date normalizes month overflow (month 13 becomes January next year).
func clampToMonth(year int, month time.Month, day int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// calculators maps frequencies to their strategies.
var calculators = map[core.Frequency]NextDateCalculator{
	core.Daily:    DailyCalculator{},
	core.Weekly:   WeeklyCalculator{},
	core.Biweekly: BiweeklyCalculator{},
	core.Monthly:  MonthlyCalculator{},
}

// NextPaymentDate returns the next occurrence after today for the given
// cadence and anchor. It is a pure function.
func NextPaymentDate(today time.Time, frequency core.Frequency, anchor Anchor) (time.Time, error) {
	calc, ok := calculators[frequency]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return calc.Next(today, anchor), nil
}

// Describe returns a human-readable description of the cadence.
func Describe(frequency core.Frequency, anchor Anchor) string {
	switch frequency {
	case core.Daily:
		return "every day"
	case core.Weekly:
		return fmt.Sprintf("every %s", time.Weekday(anchor.DayOfWeek))
	case core.Biweekly:
		return "on the 1st and 15th of each month"
	case core.Monthly:
		return fmt.Sprintf("on day %d of each month", anchor.DayOfMonth)
	default:
		return string(frequency)
	}
}
