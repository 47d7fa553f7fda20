package businessday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DayLayout is the layout of a business day key ("2025-12-12").
	DayLayout = "2006-01-02"

	// MinuteLayout is the layout of a business-local time of day ("14:05").
	MinuteLayout = "15:04"

	// DefaultTimezone is the timezone the business books its days in.
	DefaultTimezone = "America/New_York"

	minutesPerDay  = 24 * 60
	halfDayMinutes = 12 * 60
)

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidDay       = errors.New("invalid business day")
)

// Clock maps UTC instants onto calendar days of a fixed business timezone.
// Everything outside this package works with the day and minute strings it
// returns and never touches a *time.Location directly.
type Clock struct {
	loc *time.Location
}

// NewClock creates a clock for the given location. A nil location means UTC.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// LoadClock creates a clock for a named IANA timezone.
func LoadClock(name string) (*Clock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return NewClock(loc), nil
}

// Location returns the business timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Day returns the business-local calendar day of an instant.
func (c *Clock) Day(t time.Time) (string, error) {
	y, m, d, _, _, err := c.parts(t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), nil
}

// Minute returns the business-local time of day of an instant at minute
// resolution.
func (c *Clock) Minute(t time.Time) (string, error) {
	_, _, _, hh, mm, err := c.parts(t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hh, mm), nil
}

// DayRange returns the half-open UTC interval [start, end) covering a business
// day. Each boundary is derived from the offset in force on its own day, so
// days around daylight-saving transitions come out 23 or 25 hours long.
func (c *Clock) DayRange(day string) (start, end time.Time, err error) {
	y, m, d, err := ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	startGuess := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	offset, err := c.offsetMinutes(startGuess)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = startGuess.Add(-time.Duration(offset) * time.Minute)

	// time.Date normalizes d+1 across month and year ends.
	endGuess := time.Date(y, time.Month(m), d+1, 0, 0, 0, 0, time.UTC)
	offsetNext, err := c.offsetMinutes(endGuess)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end = endGuess.Add(-time.Duration(offsetNext) * time.Minute)

	return start, end, nil
}

// Days lists every business day from first to last inclusive.
func (c *Clock) Days(first, last string) ([]string, error) {
	fy, fm, fd, err := ParseDay(first)
	if err != nil {
		return nil, err
	}
	ly, lm, ld, err := ParseDay(last)
	if err != nil {
		return nil, err
	}

	from := time.Date(fy, time.Month(fm), fd, 0, 0, 0, 0, time.UTC)
	to := time.Date(ly, time.Month(lm), ld, 0, 0, 0, 0, time.UTC)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidDay, last, first)
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days, nil
}

// offsetMinutes renders a UTC-midnight instant as business-local wall time and
// reads the signed UTC offset back out of it. Local times past noon are the
// previous evening, i.e. a zone west of UTC.
func (c *Clock) offsetMinutes(utcMidnight time.Time) (int, error) {
	_, _, _, hh, mm, err := c.parts(utcMidnight)
	if err != nil {
		return 0, err
	}
	local := hh*60 + mm
	if local > halfDayMinutes {
		return local - minutesPerDay, nil
	}
	return local, nil
}

// parts formats an instant in the business zone and splits the result into
// its numeric components.
func (c *Clock) parts(t time.Time) (y, m, d, hh, mm int, err error) {
	if t.IsZero() {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: zero instant", ErrInvalidTimestamp)
	}

	formatted := t.In(c.loc).Format(DayLayout + " " + MinuteLayout)
	date, clock, ok := strings.Cut(formatted, " ")
	if !ok {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: %s", ErrInvalidTimestamp, formatted)
	}

	ymd := strings.Split(date, "-")
	if len(ymd) != 3 || len(ymd[0]) != 4 {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: cannot resolve date of %s", ErrInvalidTimestamp, t.UTC().Format(time.RFC3339))
	}

	vals := make([]int, 0, 5)
	for _, s := range append(ymd, strings.Split(clock, ":")...) {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, 0, 0, 0, 0, fmt.Errorf("%w: %s", ErrInvalidTimestamp, formatted)
		}
		vals = append(vals, n)
	}
	if len(vals) != 5 {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: %s", ErrInvalidTimestamp, formatted)
	}

	return vals[0], vals[1], vals[2], vals[3], vals[4], nil
}

// ParseDay splits a "YYYY-MM-DD" day key into its components.
func ParseDay(day string) (y, m, d int, err error) {
	parsed, perr := time.Parse(DayLayout, strings.TrimSpace(day))
	if perr != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q, expected YYYY-MM-DD", ErrInvalidDay, day)
	}
	return parsed.Year(), int(parsed.Month()), parsed.Day(), nil
}
