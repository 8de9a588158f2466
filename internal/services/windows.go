package services

import (
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

// resolveOrder is the precedence applied when a person's windows overlap:
// the first window containing the time wins.
var resolveOrder = []models.Period{
	models.PeriodMorning,
	models.PeriodAfternoon,
	models.PeriodEvening,
}

// WindowFor returns the person's window for a timed period. All-day and
// unknown periods have no window.
func WindowFor(person models.Person, period models.Period) (models.Window, bool) {
	switch period {
	case models.PeriodMorning:
		return person.Windows.Morning, true
	case models.PeriodAfternoon:
		return person.Windows.Afternoon, true
	case models.PeriodEvening:
		return person.Windows.Evening, true
	}
	return models.Window{}, false
}

// Resolve classifies the time of day of at into the person's period, using
// half-open windows and Morning > Afternoon > Evening precedence.
func Resolve(person models.Person, at time.Time) models.Period {
	clock := models.ClockTimeOf(at)
	for _, period := range resolveOrder {
		window, _ := WindowFor(person, period)
		if window.Contains(clock) {
			return period
		}
	}
	return models.PeriodNone
}

// CrossedInto reports the period newly entered between previous and at. When
// several boundaries were crossed in one step only the latest is reported.
func CrossedInto(person models.Person, previous, at time.Time) (models.Period, bool) {
	if !at.After(previous) {
		return models.PeriodNone, false
	}
	current := Resolve(person, at)
	if current == models.PeriodNone {
		return models.PeriodNone, false
	}
	if Resolve(person, previous) == current && models.DateOf(previous) == models.DateOf(at) {
		return models.PeriodNone, false
	}
	return current, true
}

func validateWindows(windows models.TimeWindows) bool {
	return windows.Morning.Valid() && windows.Afternoon.Valid() && windows.Evening.Valid()
}
