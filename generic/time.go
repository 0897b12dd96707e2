package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day (leave is booked in whole days)
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day at midnight UTC.
type Date struct {
	time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts "2006-01-02" or a full RFC3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) IsWeekend() bool { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsWorkday() bool { return !d.IsWeekend() }

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// BusinessDays counts Monday-Friday dates in [start, end] inclusive.
// Returns 0 when end is before start. Whole weeks are counted
// arithmetically so the cost does not grow with the range.
func BusinessDays(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	total := int((end.Unix()-start.Unix())/secondsPerDay) + 1
	n := (total / 7) * 5
	first := start.Weekday()
	for i := 0; i < total%7; i++ {
		switch (first + time.Weekday(i)) % 7 {
		case time.Saturday, time.Sunday:
		default:
			n++
		}
	}
	return n
}

const secondsPerDay = 24 * 60 * 60

// =============================================================================
// MONTH - Accrual period token (YYYY-MM)
// =============================================================================

const monthLayout = "2006-01"

// Month identifies one accrual period.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" token.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil || t.Format(monthLayout) != s {
		return Month{}, Errorf(KindValidation, "Invalid period %q: expected YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// CurrentMonth returns the period containing now.
func CurrentMonth(now time.Time) Month {
	return Month{Year: now.Year(), Month: now.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// FirstDay returns the first calendar day of the period.
func (m Month) FirstDay() Date { return NewDate(m.Year, m.Month, 1) }
