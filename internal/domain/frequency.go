// Package domain contains the pure scheduling rules of the harvest system.
package domain

import (
	"fmt"
	"time"

	"github.com/target/harvestd/internal/domain/model"
)

const day = 24 * time.Hour

// NextRun returns when a source with the given frequency is next due, measured from now.
//
// MONTHLY adds a fixed number of days chosen by the calendar month of now rather
// than doing calendar arithmetic, so the result does not keep the day of month.
func NextRun(freq model.Frequency, now time.Time) (time.Time, error) {
	switch freq {
	case model.FrequencyAlways:
		return now, nil
	case model.FrequencyDaily:
		return now.Add(day), nil
	case model.FrequencyWeekly:
		return now.Add(7 * day), nil
	case model.FrequencyBiweekly:
		return now.Add(14 * day), nil
	case model.FrequencyMonthly:
		return now.Add(time.Duration(monthLength(now)) * day), nil
	case model.FrequencyManual:
		return time.Time{}, fmt.Errorf("%w: %s sources are never scheduled", ErrInvalidFrequency, freq)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, string(freq))
	}
}

func monthLength(t time.Time) int {
	switch t.Month() {
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if isLeapYear(t.Year()) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
