// Package dates handles menu and delivery dates. A date is a calendar day written
// as YYYY-MM-DD; it has no time or zone. "Today" is decided in the business
// timezone so that a lexical comparison of two date strings orders them.
package dates

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Parse validates s and returns it in canonical form.
func Parse(s string) (string, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t.Format(Layout), nil
}

// Clock yields the current calendar day in a fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location, now func() time.Time) Clock {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Clock{loc: loc, now: now}
}

// LoadClock resolves an IANA zone name. Empty means UTC.
func LoadClock(zone string) (Clock, error) {
	if zone == "" {
		return NewClock(time.UTC, nil), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Clock{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return NewClock(loc, nil), nil
}

func (c Clock) Today() string {
	now := c.now
	if now == nil {
		now = time.Now
	}
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format(Layout)
}

func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// IsPast reports whether date is before today.
func (c Clock) IsPast(date string) bool {
	return date < c.Today()
}

// IsFuture reports whether date is after today.
func (c Clock) IsFuture(date string) bool {
	return date > c.Today()
}
