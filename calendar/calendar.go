// Package calendar counts business days. A day is a business day unless it
// falls on a weekend or is a public holiday of the requested jurisdiction.
// Holiday data is supplied through the HolidayLookup interface so callers can
// swap the built-in Registry for a fixed set of dates.
package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// HolidayLookup reports whether a date is a public holiday in a jurisdiction.
type HolidayLookup interface {
	IsHoliday(jurisdiction string, d civil.Date) bool
}

// HolidayFunc adapts an ordinary function to the HolidayLookup interface.
type HolidayFunc func(jurisdiction string, d civil.Date) bool

func (f HolidayFunc) IsHoliday(jurisdiction string, d civil.Date) bool {
	return f(jurisdiction, d)
}

// NoHolidays treats every weekday as a business day.
var NoHolidays = HolidayFunc(func(string, civil.Date) bool { return false })

// DateRange is an inclusive range of calendar dates. A range whose End is
// before its Start is empty.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// NewDateRange returns the range between the dates of from and to as seen in loc.
func NewDateRange(from, to time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.Local
	}
	return DateRange{
		Start: civil.DateOf(from.In(loc)),
		End:   civil.DateOf(to.In(loc)),
	}
}

func (r DateRange) Empty() bool {
	return r.End.Before(r.Start)
}

// Days returns the number of dates in the range.
func (r DateRange) Days() int {
	if r.Empty() {
		return 0
	}
	return r.End.DaysSince(r.Start) + 1
}

// Calendar combines the weekly rest days with a holiday source and an
// optional set of extra closed days.
type Calendar struct {
	holidays HolidayLookup
	closed   *ClosedDays
}

// New creates a Calendar. A nil lookup is treated as NoHolidays.
func New(holidays HolidayLookup, closed *ClosedDays) *Calendar {
	if holidays == nil {
		holidays = NoHolidays
	}
	return &Calendar{holidays: holidays, closed: closed}
}

// IsWeekend reports whether d is a Saturday or a Sunday.
func IsWeekend(d civil.Date) bool {
	wd := d.In(time.UTC).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBusinessDay reports whether d is neither a weekend day, a holiday in
// jurisdiction nor one of the extra closed days.
func (c *Calendar) IsBusinessDay(d civil.Date, jurisdiction string) bool {
	if IsWeekend(d) {
		return false
	}
	if c.closed.Contains(d) {
		return false
	}
	return !c.holidays.IsHoliday(jurisdiction, d)
}

// CountNonBusinessDays returns how many dates in r are not business days.
// An empty range yields 0.
func (c *Calendar) CountNonBusinessDays(r DateRange, jurisdiction string) int {
	n := 0
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		if !c.IsBusinessDay(d, jurisdiction) {
			n++
		}
	}
	return n
}
