package statistic

import (
	"fmt"
	"time"
)

// Granularity is the time resolution of a period bucket.
type Granularity string

const (
	GranularityDay   Granularity = "DAY"
	GranularityWeek  Granularity = "WEEK"
	GranularityMonth Granularity = "MONTH"
	GranularityYear  Granularity = "YEAR"
)

// IsValid checks if the granularity is one of the supported values.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return true
	default:
		return false
	}
}

// ParseGranularity accepts the lower or upper case names.
func ParseGranularity(value string) (Granularity, error) {
	switch value {
	case "day", "DAY":
		return GranularityDay, nil
	case "week", "WEEK":
		return GranularityWeek, nil
	case "month", "MONTH", "":
		return GranularityMonth, nil
	case "year", "YEAR":
		return GranularityYear, nil
	default:
		return "", ErrInvalidGranularity
	}
}

// TimeKey is the label of a period bucket.
type TimeKey string

// String returns the raw label.
func (k TimeKey) String() string { return string(k) }

// NewTimeKey builds the key of the period containing t, evaluated in loc.
func NewTimeKey(granularity Granularity, t time.Time, loc *time.Location) (TimeKey, error) {
	if !granularity.IsValid() {
		return "", ErrInvalidGranularity
	}
	if t.IsZero() {
		return "", ErrInvalidPeriodStart
	}
	if loc == nil {
		return "", ErrNilLocation
	}
	t = t.In(loc)
	if granularity == GranularityWeek {
		year, week := t.ISOWeek()
		return TimeKey(fmt.Sprintf("%04d-W%02d", year, week)), nil
	}
	layout, err := timeKeyLayout(granularity)
	if err != nil {
		return "", err
	}
	return TimeKey(t.Format(layout)), nil
}

// PeriodStart truncates t to the start of its period in loc.
func PeriodStart(granularity Granularity, t time.Time, loc *time.Location) (time.Time, error) {
	if !granularity.IsValid() {
		return time.Time{}, ErrInvalidGranularity
	}
	if t.IsZero() {
		return time.Time{}, ErrInvalidPeriodStart
	}
	if loc == nil {
		return time.Time{}, ErrNilLocation
	}
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	switch granularity {
	case GranularityDay:
		return day, nil
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), nil
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc), nil
	default:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc), nil
	}
}

// PreviousPeriod returns the start of the period before the one starting at start.
func PreviousPeriod(granularity Granularity, start time.Time) time.Time {
	switch granularity {
	case GranularityDay:
		return start.AddDate(0, 0, -1)
	case GranularityWeek:
		return start.AddDate(0, 0, -7)
	case GranularityMonth:
		return start.AddDate(0, -1, 0)
	default:
		return start.AddDate(-1, 0, 0)
	}
}

func timeKeyLayout(granularity Granularity) (string, error) {
	switch granularity {
	case GranularityDay:
		return "2006-01-02", nil
	case GranularityMonth:
		return "2006-01", nil
	case GranularityYear:
		return "2006", nil
	default:
		return "", ErrInvalidGranularity
	}
}
