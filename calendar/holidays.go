package calendar

import (
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rickar/cal"
)

// DefaultJurisdiction is used when none is configured.
const DefaultJurisdiction = "us"

// USJuneteenth is observed as a federal holiday from 2021 on.
var USJuneteenth = cal.NewHolidayFunc(func(year int, _ *time.Location) (time.Month, int) {
	if year < 2021 {
		return 0, 0
	}
	return time.June, 19
})

func addUSHolidays(c *cal.Calendar) {
	cal.AddUsHolidays(c)
	c.AddHoliday(USJuneteenth)
}

var holidaySets = map[string]func(*cal.Calendar){
	"us":  addUSHolidays,
	"gb":  cal.AddBritishHolidays,
	"de":  cal.AddGermanHolidays,
	"at":  cal.AddAustrianHolidays,
	"au":  cal.AddAustralianHolidays,
	"be":  cal.AddBelgiumHolidays,
	"dk":  cal.AddDanishHolidays,
	"es":  cal.AddSpainHolidays,
	"fr":  cal.AddFranceHolidays,
	"nl":  cal.AddDutchHolidays,
	"no":  cal.AddNorwegianHolidays,
	"nz":  cal.AddNewZealandHoliday,
	"se":  cal.AddSwedishHolidays,
	"ecb": cal.AddEcbHolidays,
}

// Registry holds one holiday calendar per jurisdiction code. Codes are
// matched case-insensitively. It is safe for concurrent use.
type Registry struct {
	// cal.Calendar caches computed holiday dates on lookup.
	mu        sync.Mutex
	calendars map[string]*cal.Calendar
}

// NewRegistry returns a Registry with every built-in jurisdiction.
func NewRegistry() *Registry {
	r := &Registry{calendars: make(map[string]*cal.Calendar, len(holidaySets))}
	for code, add := range holidaySets {
		c := cal.NewCalendar()
		add(c)
		r.calendars[code] = c
	}
	return r
}

func (r *Registry) Supports(jurisdiction string) bool {
	_, ok := r.calendars[strings.ToLower(jurisdiction)]
	return ok
}

// Jurisdictions returns the known codes in sorted order.
func (r *Registry) Jurisdictions() []string {
	codes := make([]string, 0, len(r.calendars))
	for code := range r.calendars {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsHoliday reports whether d is a holiday on that exact date. Alternate
// observance days are not considered. Unknown jurisdictions have no holidays.
func (r *Registry) IsHoliday(jurisdiction string, d civil.Date) bool {
	c, ok := r.calendars[strings.ToLower(jurisdiction)]
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.IsHoliday(d.In(time.UTC))
}
