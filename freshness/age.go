// Package freshness decides whether a dataset is stale. A dataset's age is
// measured in business days: the calendar age less every weekend day and
// holiday between the last update and now.
package freshness

import (
	"time"

	"github.com/opendata-tools/freshness/calendar"
)

// SecondsPerDay converts elapsed seconds to calendar days.
const SecondsPerDay = 24 * 60 * 60

// AgeMeasurement is the age of a dataset in calendar and business days.
type AgeMeasurement struct {
	CalendarDays float64
	BusinessDays float64
}

// AgeCalculator converts timestamps to civil dates in Location before
// counting non-business days.
type AgeCalculator struct {
	Calendar *calendar.Calendar
	Location *time.Location
}

// NewAgeCalculator returns an AgeCalculator. A nil loc means time.Local.
func NewAgeCalculator(cal *calendar.Calendar, loc *time.Location) *AgeCalculator {
	if loc == nil {
		loc = time.Local
	}
	return &AgeCalculator{Calendar: cal, Location: loc}
}

// location is Location, or time.Local when it was left unset.
func (a *AgeCalculator) location() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// ComputeAge measures the time between lastUpdated and now. CalendarDays
// keeps its fraction. BusinessDays subtracts the non-business dates in
// [date(lastUpdated), date(now)] and is clamped at zero, which also covers
// timestamps reported slightly in the future.
func (a *AgeCalculator) ComputeAge(lastUpdated, now time.Time, jurisdiction string) AgeMeasurement {
	calendarDays := now.Sub(lastUpdated).Seconds() / SecondsPerDay

	r := calendar.NewDateRange(lastUpdated, now, a.location())
	nonBusiness := a.Calendar.CountNonBusinessDays(r, jurisdiction)

	businessDays := calendarDays - float64(nonBusiness)
	if businessDays < 0 {
		businessDays = 0
	}
	return AgeMeasurement{CalendarDays: calendarDays, BusinessDays: businessDays}
}
