package timeparse

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday
var fixedNow = time.Date(2030, time.May, 14, 9, 30, 27, 0, time.UTC)

func newFixed() *Normalizer {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func TestParseTomorrowAfternoon(t *testing.T) {
	got, err := newFixed().Parse("tomorrow 3pm")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2030, time.May, 15, 15, 0, 0, 0, time.UTC), got)
	assert.Equal(t, 0, got.Second())
	assert.Equal(t, 0, got.Nanosecond())
}

func TestParseYesterdayIsPast(t *testing.T) {
	_, err := newFixed().Parse("yesterday 3pm")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPastTime))

	var pastErr *PastTimeError
	require.True(t, errors.As(err, &pastErr))
	assert.Equal(t, "yesterday 3pm", pastErr.Raw)
	assert.True(t, pastErr.At.Before(fixedNow))
}

func TestParseAbsolute(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2030-05-20T10:00:00Z", time.Date(2030, time.May, 20, 10, 0, 0, 0, time.UTC)},
		{"seconds truncated", "2030-05-20 10:00:45", time.Date(2030, time.May, 20, 10, 0, 0, 0, time.UTC)},
		{"offset converted to utc", "2030-05-20T15:00:00+05:00", time.Date(2030, time.May, 20, 10, 0, 0, 0, time.UTC)},
	}

	n := newFixed()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseSameMinuteIsAccepted(t *testing.T) {
	got, err := newFixed().Parse("2030-05-14 09:30:55")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, time.May, 14, 9, 30, 0, 0, time.UTC), got)
}

func TestParseAbsolutePast(t *testing.T) {
	_, err := newFixed().Parse("2029-01-01 10:00")
	assert.ErrorIs(t, err, ErrPastTime)
}

func TestParseBareClockRollsForward(t *testing.T) {
	got, err := newFixed().Parse("8am")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, time.May, 15, 8, 0, 0, 0, time.UTC), got)
}

func TestParseBareWeekdayRollsForward(t *testing.T) {
	got, err := newFixed().Parse("monday 10am")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, time.May, 20, 10, 0, 0, 0, time.UTC), got)
}

func TestParseRelativeDuration(t *testing.T) {
	got, err := newFixed().Parse("in 2 hours")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, time.May, 14, 11, 30, 0, 0, time.UTC), got)
}

func TestParseUnresolvable(t *testing.T) {
	for _, in := range []string{"", "   ", "whenever suits the doctor"} {
		_, err := newFixed().Parse(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrParse)

		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr))
	}
}

func TestNowIsMinuteTruncated(t *testing.T) {
	assert.Equal(t, time.Date(2030, time.May, 14, 9, 30, 0, 0, time.UTC), newFixed().Now())
}
