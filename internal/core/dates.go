package core

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// ValidateDate checks a YYYY-MM-DD string, rejecting it before any I/O.
func ValidateDate(s string) error {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return nil
}

// ValidateMonth checks a YYYY-MM string.
func ValidateMonth(s string) error {
	if _, err := time.Parse(monthLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return nil
}

// FormatDate renders a time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// FormatMonth renders a time as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.Format(monthLayout)
}

// MonthRange returns the exact calendar bounds of a YYYY-MM month: the first
// day through the true last day, December rolling into January and February
// honoring leap years. The end date is inclusive.
func MonthRange(month string) (DateRange, error) {
	start, err := time.Parse(monthLayout, month)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	end := start.AddDate(0, 1, -1)
	return DateRange{
		StartDate: FormatDate(start),
		EndDate:   FormatDate(end),
	}, nil
}

// DefaultSummaryRange is the window used when a summary request omits dates:
// the first of the current month through today.
func DefaultSummaryRange(now time.Time) DateRange {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return DateRange{
		StartDate: FormatDate(first),
		EndDate:   FormatDate(now),
	}
}
