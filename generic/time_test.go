package generic

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessDays(t *testing.T) {
	// 2030-01-07 is a Monday
	tests := []struct {
		name       string
		start, end Date
		want       int
	}{
		{"single weekday", NewDate(2030, time.January, 7), NewDate(2030, time.January, 7), 1},
		{"weekend only", NewDate(2030, time.January, 12), NewDate(2030, time.January, 13), 0},
		{"monday to friday", NewDate(2030, time.January, 7), NewDate(2030, time.January, 11), 5},
		{"full week", NewDate(2030, time.January, 7), NewDate(2030, time.January, 13), 5},
		{"across weekend", NewDate(2030, time.January, 10), NewDate(2030, time.January, 15), 4},
		{"across month end", NewDate(2030, time.January, 31), NewDate(2030, time.February, 1), 2},
		{"end before start", NewDate(2030, time.January, 9), NewDate(2030, time.January, 7), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BusinessDays(tc.start, tc.end))
		})
	}
}

func TestBusinessDaysMatchesDayByDayCount(t *testing.T) {
	countByDay := func(start, end Date) int {
		n := 0
		for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
			if d.IsWorkday() {
				n++
			}
		}
		return n
	}

	// GIVEN: every start weekday and lengths spanning several weeks
	base := NewDate(2030, time.January, 7)
	for offset := 0; offset < 7; offset++ {
		start := base.AddDays(offset)
		for length := 0; length < 60; length++ {
			end := start.AddDays(length)
			assert.Equal(t, countByDay(start, end), BusinessDays(start, end), "%s..%s", start, end)
		}
	}
}

func TestBusinessDaysWholeCalendar(t *testing.T) {
	// WHEN: the widest representable range is counted
	started := time.Now()
	got := BusinessDays(NewDate(1, time.January, 1), NewDate(9999, time.December, 31))

	// THEN: the count is exact and does not walk every day
	assert.Equal(t, 2608615, got)
	assert.Less(t, time.Since(started), 50*time.Millisecond)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2030-01-07")
	require.NoError(t, err)
	assert.Equal(t, "2030-01-07", d.String())
	assert.Equal(t, time.Monday, d.Weekday())

	d, err = ParseDate("2030-01-07T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2030-01-07", d.String())

	_, err = ParseDate("07/01/2030")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var body struct {
		Start Date `json:"start"`
		End   Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2030-01-07","end":""}`), &body))
	assert.Equal(t, "2030-01-07", body.Start.String())
	assert.True(t, body.End.IsZero())

	out, err := json.Marshal(body.Start)
	require.NoError(t, err)
	assert.Equal(t, `"2030-01-07"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"soon"}`), &body))
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2030-03")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2030, Month: time.March}, m)
	assert.Equal(t, "2030-03", m.String())
	assert.Equal(t, "2030-03-01", m.FirstDay().String())

	for _, bad := range []string{"2030-3", "2030-13", "March", ""} {
		_, err := ParseMonth(bad)
		assert.True(t, IsKind(err, KindValidation), "input %q", bad)
	}

	assert.Equal(t, "2031-11", CurrentMonth(time.Date(2031, time.November, 30, 23, 59, 0, 0, time.UTC)).String())
}
