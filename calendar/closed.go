package calendar

import (
	"encoding/json"
	"os"

	"cloud.google.com/go/civil"
	"github.com/pkg/errors"
)

// ClosedDays is a set of additional non-business dates, for example office
// closures that no public holiday calendar knows about. The file format is
//
//	{"non_business_days": ["2024-12-24", "2024-12-31"]}
//
// A nil *ClosedDays contains no dates.
type ClosedDays struct {
	days map[int]struct{}
}

type closedDaysJSON struct {
	NonBusinessDays []string `json:"non_business_days"`
}

func julianDate(d civil.Date) int {
	year, month := d.Year, int(d.Month)
	// nolint:gomnd // well-known algorithm to calculate julian date number
	return d.Day - 32075 + 1461*(year+4800+(month-14)/12)/4 + 367*(month-2-(month-14)/12*12)/12 -
		3*((year+4900+(month-14)/12)/100)/4
}

// ParseClosedDays parses the JSON closed days document.
func ParseClosedDays(data []byte) (*ClosedDays, error) {
	var doc closedDaysJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal closed days")
	}

	cd := &ClosedDays{days: make(map[int]struct{}, len(doc.NonBusinessDays))}
	for _, s := range doc.NonBusinessDays {
		d, err := civil.ParseDate(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid closed day %q", s)
		}
		cd.days[julianDate(d)] = struct{}{}
	}
	return cd, nil
}

// LoadClosedDays reads and parses a closed days file.
func LoadClosedDays(path string) (*ClosedDays, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read closed days file %s", path)
	}
	return ParseClosedDays(data)
}

func (cd *ClosedDays) Contains(d civil.Date) bool {
	if cd == nil {
		return false
	}
	_, ok := cd.days[julianDate(d)]
	return ok
}

func (cd *ClosedDays) Len() int {
	if cd == nil {
		return 0
	}
	return len(cd.days)
}
