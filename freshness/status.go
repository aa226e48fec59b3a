package freshness

// Status is the outcome of a freshness check.
type Status int

const (
	Current Status = iota
	Stale
)

func (s Status) String() string {
	switch s {
	case Current:
		return "CURRENT"
	case Stale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// Evaluate returns Stale when the business-day age is strictly greater than
// threshold. An age equal to the threshold is still Current.
func Evaluate(age AgeMeasurement, threshold float64) Status {
	if age.BusinessDays > threshold {
		return Stale
	}
	return Current
}
