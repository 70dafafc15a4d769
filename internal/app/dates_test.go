package app

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
)

func resolverAt(t *testing.T, date string) *DateRangeResolver {
	t.Helper()
	now, err := time.Parse(isoDate, date)
	require.NoError(t, err)
	return NewDateRangeResolver(FixedClock(now.Add(10*time.Hour)), time.UTC)
}

func TestDateRangeResolver_Rules(t *testing.T) {
	r := resolverAt(t, "2025-07-18") // a Friday

	cases := []struct {
		name    string
		hints   domain.DateHints
		in, out string
	}{
		{"no hints", domain.DateHints{}, "2025-07-18", "2025-07-19"},
		{"only check-in", domain.DateHints{CheckIn: "2025-08-01"}, "2025-08-01", "2025-08-02"},
		{"check-in with duration", domain.DateHints{CheckIn: "2025-07-21", DurationDays: 3}, "2025-07-21", "2025-07-24"},
		{"duration only", domain.DateHints{DurationDays: 3}, "2025-07-18", "2025-07-21"},
		{"explicit pair", domain.DateHints{CheckIn: "2025-07-20", CheckOut: "2025-07-25"}, "2025-07-20", "2025-07-25"},
		{"only check-out", domain.DateHints{CheckOut: "2025-07-22"}, "2025-07-18", "2025-07-22"},
		{"next full week", domain.DateHints{RelativeRange: RangeNextFullWeek}, "2025-07-21", "2025-07-27"},
		{"day range this month", domain.DateHints{DayRangeStart: 21, DayRangeEnd: 24}, "2025-07-21", "2025-07-24"},
		{"day range in the past rolls", domain.DateHints{DayRangeStart: 10, DayRangeEnd: 12}, "2025-08-10", "2025-08-12"},
		{"day range today stays", domain.DateHints{DayRangeStart: 18, DayRangeEnd: 20}, "2025-07-18", "2025-07-20"},
		{"day range across month end", domain.DateHints{DayRangeStart: 28, DayRangeEnd: 2}, "2025-07-28", "2025-08-02"},
		{"day range start only", domain.DateHints{DayRangeStart: 25}, "2025-07-25", "2025-07-26"},
		{"day range start with duration", domain.DateHints{DayRangeStart: 25, DurationDays: 2}, "2025-07-25", "2025-07-27"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, out, err := r.Resolve(tc.hints, "")
			require.NoError(t, err)
			assert.Equal(t, tc.in, in)
			assert.Equal(t, tc.out, out)
		})
	}
}

func TestDateRangeResolver_InvalidRange(t *testing.T) {
	r := resolverAt(t, "2025-07-18")

	cases := map[string]domain.DateHints{
		"checkout before checkin": {CheckIn: "2025-07-25", CheckOut: "2025-07-24"},
		"checkout equals checkin": {CheckIn: "2025-07-25", CheckOut: "2025-07-25"},
		"negative duration":       {DurationDays: -2},
		"malformed check-in date": {CheckIn: "25/07/2025"},
		"range end equals start":  {DayRangeStart: 21, DayRangeEnd: 21},
		"day never exists":        {DayRangeStart: 32, DayRangeEnd: 33},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			in, out, err := r.Resolve(h, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange), "got %v", err)
			assert.Empty(t, in)
			assert.Empty(t, out)
		})
	}
}

func TestDateRangeResolver_MissingDayRollsToNextMonth(t *testing.T) {
	r := resolverAt(t, "2025-06-15")
	in, out, err := r.Resolve(domain.DateHints{DayRangeStart: 31}, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-31", in)
	assert.Equal(t, "2025-08-01", out)
}

func TestDateRangeResolver_NextFullWeekAlwaysMondayToSunday(t *testing.T) {
	start, _ := time.Parse(isoDate, "2025-07-14")
	for i := 0; i < 21; i++ {
		day := start.AddDate(0, 0, i)
		r := NewDateRangeResolver(FixedClock(day), time.UTC)

		in, out, err := r.Resolve(domain.DateHints{RelativeRange: RangeNextFullWeek}, "")
		require.NoError(t, err)
		inT, _ := time.Parse(isoDate, in)
		outT, _ := time.Parse(isoDate, out)

		assert.Equal(t, time.Monday, inT.Weekday(), "from %s", day.Format(isoDate))
		assert.Equal(t, time.Sunday, outT.Weekday(), "from %s", day.Format(isoDate))
		assert.Equal(t, 6*24*time.Hour, outT.Sub(inT))
		assert.True(t, inT.After(day), "from %s", day.Format(isoDate))
		assert.LessOrEqual(t, inT.Sub(day), 7*24*time.Hour)
	}
}

func TestDateRangeResolver_DurationIsExact(t *testing.T) {
	r := resolverAt(t, "2025-07-18")
	for n := 1; n <= 40; n++ {
		in, out, err := r.Resolve(domain.DateHints{CheckIn: "2025-12-20", DurationDays: n}, "")
		require.NoError(t, err)
		inT, _ := time.Parse(isoDate, in)
		outT, _ := time.Parse(isoDate, out)
		assert.Equal(t, inT.AddDate(0, 0, n), outT)
	}
}

func TestDateRangeResolver_TodayUsesPropertyTimezone(t *testing.T) {
	now := time.Date(2025, 7, 18, 23, 30, 0, 0, time.UTC)
	r := NewDateRangeResolver(FixedClock(now), time.UTC)

	assert.Equal(t, "2025-07-18", r.Today("").Format(isoDate))
	assert.Equal(t, "2025-07-19", r.Today("Asia/Tokyo").Format(isoDate))
	assert.Equal(t, "2025-07-18", r.Today("Not/AZone").Format(isoDate))

	in, _, err := r.Resolve(domain.DateHints{}, "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-19", in)
}

func TestDateRangeResolver_Deterministic(t *testing.T) {
	r := resolverAt(t, "2025-07-18")
	h := domain.DateHints{DayRangeStart: 28, DayRangeEnd: 2}
	in1, out1, err1 := r.Resolve(h, "")
	in2, out2, err2 := r.Resolve(h, "")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, in1, in2)
	assert.Equal(t, out1, out2)
}
