package tracker

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Month is a calendar month. The zero value is not meaningful; build one with
// NewMonth, MonthOf or ParseMonth.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth normalises out-of-range months, so NewMonth(2024, 13) is January 2025.
func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "YYYY-MM" or a month key "YYYY-MM-01".
func ParseMonth(s string) (Month, error) {
	if t, err := time.Parse(monthLayout, s); err == nil {
		return MonthOf(t), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Day() != 1 {
		return Month{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return MonthOf(t), nil
}

// Start is midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Add moves the month by offset calendar months.
func (m Month) Add(offset int) Month {
	return NewMonth(m.Year, m.Month+time.Month(offset))
}

// Days is the number of calendar days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m Month) Before(other Month) bool {
	return m.Start().Before(other.Start())
}

// Key is the month key used by fee rows: YYYY-MM-01.
func (m Month) Key() string {
	return m.Start().Format(dateLayout)
}

func (m Month) FirstDay() string {
	return m.Key()
}

func (m Month) LastDay() string {
	return time.Date(m.Year, m.Month, m.Days(), 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

// Label is the display name, e.g. "March 2024".
func (m Month) Label() string {
	return m.Start().Format("January 2006")
}

func (m Month) String() string {
	return m.Start().Format(monthLayout)
}

// Weekdays returns every date of the month falling on wd, ascending.
func Weekdays(m Month, wd time.Weekday) []time.Time {
	var out []time.Time
	for day := 1; day <= m.Days(); day++ {
		d := time.Date(m.Year, m.Month, day, 0, 0, 0, 0, time.UTC)
		if d.Weekday() == wd {
			out = append(out, d)
		}
	}
	return out
}

// Thursdays returns the training days of the month.
func Thursdays(m Month) []time.Time {
	return Weekdays(m, time.Thursday)
}

// DateKey formats a date the way attendance rows store it.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
