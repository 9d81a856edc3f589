package core

import "time"

// TrendMonths is the length of the trailing dashboard trend window.
const TrendMonths = 6

// Period is a calendar month with inclusive UTC boundaries.
type Period struct {
	Month int
	Year  int
	Start time.Time
	End   time.Time
}

// NewPeriod computes the boundaries of month/year. End is the last
// millisecond of the month, so leap years and short months fall out of the
// calendar arithmetic.
func NewPeriod(month, year int) Period {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return Period{Month: month, Year: year, Start: start, End: end}
}

// ResolvePeriod fills a missing month or year from now and returns the
// concrete period. Range checking is left to the caller.
func ResolvePeriod(month, year *int, now time.Time) Period {
	now = now.UTC()
	m, y := int(now.Month()), now.Year()
	if month != nil {
		m = *month
	}
	if year != nil {
		y = *year
	}
	return NewPeriod(m, y)
}

// MonthYear extracts the calendar month and year of t without computing
// boundaries.
func MonthYear(t time.Time) (month, year int) {
	t = t.UTC()
	return int(t.Month()), t.Year()
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	m, y := MonthYear(t)
	return NewPeriod(m, y)
}

// Contains reports whether t falls inside the closed interval [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Key returns the compact "YYYY-MM" form used for cache keys and logs.
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

// Window is a closed time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// TrendWindow covers the TrendMonths calendar months ending with the month
// of now: from the first instant of the oldest month to the last instant of
// the current one.
func TrendWindow(now time.Time) Window {
	current := PeriodOf(now)
	oldest := current.Start.AddDate(0, -(TrendMonths - 1), 0)
	return Window{Start: oldest, End: current.End}
}
