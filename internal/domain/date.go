package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// RunDate is the logical calendar date of a pipeline run. It is always
// normalised to midnight UTC so that dates compare with ==.
type RunDate struct {
	t time.Time
}

// NewRunDate truncates t to its calendar date.
func NewRunDate(t time.Time) RunDate {
	y, m, d := t.Date()
	return RunDate{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseRunDate parses a YYYY-MM-DD string.
func ParseRunDate(s string) (RunDate, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return RunDate{}, fmt.Errorf("parsing run date %q: %w", s, err)
	}
	return RunDate{t: t}, nil
}

// Today returns the current local calendar date. Only entry points call it.
func Today() RunDate {
	return NewRunDate(time.Now())
}

// TodayIn returns the current calendar date in loc.
func TodayIn(loc *time.Location) RunDate {
	return NewRunDate(time.Now().In(loc))
}

// Time returns the date as a UTC midnight timestamp.
func (d RunDate) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d RunDate) IsZero() bool { return d.t.IsZero() }

// Year returns the zero-padded four digit year.
func (d RunDate) Year() string { return d.t.Format("2006") }

// Month returns the zero-padded two digit month.
func (d RunDate) Month() string { return d.t.Format("01") }

// Day returns the zero-padded two digit day of month.
func (d RunDate) Day() string { return d.t.Format("02") }

// Short returns YYYYMMDD.
func (d RunDate) Short() string { return d.t.Format("20060102") }

// Formatted returns YYYY-MM-DD.
func (d RunDate) Formatted() string { return d.t.Format(dateLayout) }

// String implements fmt.Stringer.
func (d RunDate) String() string { return d.Formatted() }

// DaysAgo returns the date n days before d.
func (d RunDate) DaysAgo(n int) RunDate {
	return RunDate{t: d.t.AddDate(0, 0, -n)}
}

// YearsAgo returns the date n years before d.
func (d RunDate) YearsAgo(n int) RunDate {
	return RunDate{t: d.t.AddDate(-n, 0, 0)}
}

// Before reports whether d is strictly before o.
func (d RunDate) Before(o RunDate) bool { return d.t.Before(o.t) }
