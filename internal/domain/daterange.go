package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive window of whole UTC days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to UTC midnight and rejects a window
// whose end precedes its start.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: truncateDay(start), End: truncateDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, invalid("end_date", ErrInvalidDateRange,
			"%s is before %s", r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, invalid("start_date", ErrInvalidDateRange, "%q is not YYYY-MM-DD", start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, invalid("end_date", ErrInvalidDateRange, "%q is not YYYY-MM-DD", end)
	}
	return NewDateRange(s, e)
}

// TrailingWindow returns the window of the given number of days ending on
// the day containing now.
func TrailingWindow(now time.Time, days int) (DateRange, error) {
	if days < 1 {
		return DateRange{}, invalid("window_days", ErrInvalidDateRange, "must be at least 1, got %d", days)
	}
	end := truncateDay(now)
	return NewDateRange(end.AddDate(0, 0, 1-days), end)
}

// Validate rejects a zero or inverted window. It guards ranges built as
// struct literals rather than through NewDateRange.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return invalid("window", ErrInvalidDateRange, "start and end dates are required")
	}
	if r.End.Before(r.Start) {
		return invalid("end_date", ErrInvalidDateRange,
			"%s is before %s", r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return nil
}

// Days counts the days in the window, both ends included.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(dateLayout), r.End.Format(dateLayout))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
