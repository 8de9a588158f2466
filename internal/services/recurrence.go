package services

import (
	"fmt"

	"github.com/trackzero/chorenet/internal/models"
)

// nextDueHorizon bounds NextDueDate's scan; every valid rule repeats within it.
const nextDueHorizon = 400

// IsDue reports whether a chore with the given rule falls on date.
func IsDue(rule models.Recurrence, date models.Date) bool {
	switch rule.Type {
	case models.RecurrenceDaily:
		return true
	case models.RecurrenceWeekly:
		return date.Weekday() == rule.Weekday
	case models.RecurrenceMonthly:
		return date.Day == min(rule.DayOfMonth, date.DaysInMonth())
	case models.RecurrenceOnce:
		return rule.Date != nil && *rule.Date == date
	}
	return false
}

// NextDueDate returns the first date strictly after from on which the rule is due.
func NextDueDate(rule models.Recurrence, from models.Date) (models.Date, bool) {
	if rule.Type == models.RecurrenceOnce {
		if rule.Date != nil && rule.Date.After(from) {
			return *rule.Date, true
		}
		return models.Date{}, false
	}

	for offset := 1; offset <= nextDueHorizon; offset++ {
		candidate := from.AddDays(offset)
		if IsDue(rule, candidate) {
			return candidate, true
		}
	}
	return models.Date{}, false
}

func ValidateRecurrence(rule models.Recurrence) error {
	switch rule.Type {
	case models.RecurrenceDaily:
		return nil
	case models.RecurrenceWeekly:
		if rule.Weekday < 0 || rule.Weekday > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", rule.Weekday)
		}
		return nil
	case models.RecurrenceMonthly:
		if rule.DayOfMonth < 1 || rule.DayOfMonth > 31 {
			return fmt.Errorf("day of month %d out of range 1-31", rule.DayOfMonth)
		}
		return nil
	case models.RecurrenceOnce:
		if rule.Date == nil || rule.Date.IsZero() {
			return fmt.Errorf("once recurrence requires a date")
		}
		return nil
	case "":
		return fmt.Errorf("recurrence type is required")
	}
	return fmt.Errorf("unsupported recurrence type %q", rule.Type)
}
