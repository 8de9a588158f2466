package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar day without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return DateOf(parsed), nil
}

// In returns midnight at the start of the day in loc.
func (date Date) In(loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, loc)
}

func (date Date) AddDays(days int) Date {
	return DateOf(date.In(time.UTC).AddDate(0, 0, days))
}

// Weekday returns the Monday-based weekday, 0 = Monday.
func (date Date) Weekday() int {
	return (int(date.In(time.UTC).Weekday()) + 6) % 7
}

func (date Date) DaysInMonth() int {
	return time.Date(date.Year, date.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (date Date) Before(other Date) bool {
	return date.Compare(other) < 0
}

func (date Date) After(other Date) bool {
	return date.Compare(other) > 0
}

func (date Date) Compare(other Date) int {
	switch {
	case date.Year != other.Year:
		return compareInt(date.Year, other.Year)
	case date.Month != other.Month:
		return compareInt(int(date.Month), int(other.Month))
	default:
		return compareInt(date.Day, other.Day)
	}
}

func (date Date) IsZero() bool {
	return date == Date{}
}

func (date Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", date.Year, int(date.Month), date.Day)
}

func (date Date) MarshalText() ([]byte, error) {
	return []byte(date.String()), nil
}

func (date *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*date = parsed
	return nil
}

// Value stores the date as YYYY-MM-DD text.
func (date Date) Value() (driver.Value, error) {
	return date.String(), nil
}

func (date *Date) Scan(src any) error {
	switch value := src.(type) {
	case string:
		return date.UnmarshalText([]byte(value))
	case []byte:
		return date.UnmarshalText(value)
	case time.Time:
		*date = DateOf(value)
		return nil
	}
	return fmt.Errorf("scanning date from %T", src)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// InstanceKey identifies one chore instance. The string form is only used at
// the API and event boundary.
type InstanceKey struct {
	ChoreID string
	DueDate Date
}

func (key InstanceKey) String() string {
	return key.ChoreID + "_" + key.DueDate.String()
}

// ParseInstanceKey splits "<chore_id>_<YYYY-MM-DD>" at the last underscore;
// chore ids may contain underscores, dates never do.
func ParseInstanceKey(value string) (InstanceKey, error) {
	separator := strings.LastIndex(value, "_")
	if separator <= 0 || separator == len(value)-1 {
		return InstanceKey{}, fmt.Errorf("malformed instance id %q", value)
	}
	date, err := ParseDate(value[separator+1:])
	if err != nil {
		return InstanceKey{}, fmt.Errorf("malformed instance id %q: %w", value, err)
	}
	return InstanceKey{ChoreID: value[:separator], DueDate: date}, nil
}

func (key InstanceKey) Less(other InstanceKey) bool {
	if cmp := key.DueDate.Compare(other.DueDate); cmp != 0 {
		return cmp < 0
	}
	return key.ChoreID < other.ChoreID
}
