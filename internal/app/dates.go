package app

import (
	"errors"
	"fmt"
	"time"

	"concierge/internal/domain"
)

const (
	isoDate           = "2006-01-02"
	RangeNextFullWeek = "next_full_week"
)

var ErrInvalidRange = errors.New("invalid date range")

// Clock abstracts "now" so date resolution is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// DateRangeResolver turns coarse date hints into a concrete check-in/check-out pair.
type DateRangeResolver struct {
	clock Clock
	loc   *time.Location // used when the property has no timezone
}

func NewDateRangeResolver(c Clock, defaultLoc *time.Location) *DateRangeResolver {
	if c == nil {
		c = realClock{}
	}
	if defaultLoc == nil {
		defaultLoc = time.Local
	}
	return &DateRangeResolver{clock: c, loc: defaultLoc}
}

// Today is the reference calendar date in tz (IANA name), falling back to the default location.
func (r *DateRangeResolver) Today(tz string) time.Time {
	loc := r.loc
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	y, m, d := r.clock.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Resolve applies the date rules against today. Errors wrap ErrInvalidRange.
func (r *DateRangeResolver) Resolve(h domain.DateHints, tz string) (checkIn, checkOut string, err error) {
	in, out, err := resolveRange(h, r.Today(tz))
	if err != nil {
		return "", "", err
	}
	return in.Format(isoDate), out.Format(isoDate), nil
}

func resolveRange(h domain.DateHints, today time.Time) (time.Time, time.Time, error) {
	if h.DurationDays < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: negative duration %d", ErrInvalidRange, h.DurationDays)
	}

	if h.RelativeRange == RangeNextFullWeek {
		mon := nextISOMonday(today)
		return mon, mon.AddDate(0, 0, 6), nil
	}

	var in time.Time
	switch {
	case h.CheckIn != "":
		t, err := parseISODate(h.CheckIn)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		in = t
	case h.DayRangeStart > 0:
		t, err := dayOfMonthOnOrAfter(h.DayRangeStart, today)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		in = t
	default:
		in = today
	}

	var out time.Time
	switch {
	case h.CheckOut != "":
		t, err := parseISODate(h.CheckOut)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		out = t
	case h.DurationDays > 0:
		out = in.AddDate(0, 0, h.DurationDays)
	case h.DayRangeStart > 0 && h.DayRangeEnd > 0:
		t, err := dayRangeEnd(in, h.DayRangeEnd)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		out = t
	default:
		out = in.AddDate(0, 0, 1)
	}

	if !out.After(in) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check-out %s is not after check-in %s",
			ErrInvalidRange, out.Format(isoDate), in.Format(isoDate))
	}
	return in, out, nil
}

func parseISODate(s string) (time.Time, error) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidRange, s)
	}
	return t, nil
}

// nextISOMonday is the Monday of the ISO week after the one containing d.
func nextISOMonday(d time.Time) time.Time {
	sinceMonday := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, 7-sinceMonday)
}

// dayOfMonthOnOrAfter places a bare day in today's month, or the next month
// when that day is already past or does not exist this month.
func dayOfMonthOnOrAfter(day int, today time.Time) (time.Time, error) {
	for i := 0; i < 2; i++ {
		first := time.Date(today.Year(), today.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		t, ok := dateInMonth(first, day)
		if ok && !t.Before(today) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: day %d cannot be placed on or after %s", ErrInvalidRange, day, today.Format(isoDate))
}

// dayRangeEnd resolves the end of "21 to 24" in the check-in month; an end
// before the start ("28 to 2") lands in the following month.
func dayRangeEnd(in time.Time, day int) (time.Time, error) {
	first := time.Date(in.Year(), in.Month(), 1, 0, 0, 0, 0, time.UTC)
	if day < in.Day() {
		first = first.AddDate(0, 1, 0)
	}
	t, ok := dateInMonth(first, day)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: day %d does not exist in %s", ErrInvalidRange, day, first.Format("2006-01"))
	}
	return t, nil
}

func dateInMonth(first time.Time, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
	return t, t.Month() == first.Month()
}
