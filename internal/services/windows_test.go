package services_test

import (
	"testing"
	"time"

	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/services"
)

func TestResolve_DefaultWindows(t *testing.T) {
	person := models.Person{ID: "alice", Windows: models.DefaultTimeWindows}
	tests := []struct {
		clock string
		want  models.Period
	}{
		{"05:59", models.PeriodNone},
		{"06:00", models.PeriodMorning},
		{"11:59", models.PeriodMorning},
		{"12:00", models.PeriodAfternoon},
		{"17:59", models.PeriodAfternoon},
		{"18:00", models.PeriodEvening},
		{"21:59", models.PeriodEvening},
		{"22:00", models.PeriodNone},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			clock := models.MustClockTime(tt.clock)
			at := time.Date(2025, 8, 4, int(clock)/60, int(clock)%60, 0, 0, time.UTC)
			if got := services.Resolve(person, at); got != tt.want {
				t.Errorf("Resolve(%s) = %s, want %s", tt.clock, got, tt.want)
			}
		})
	}
}

func TestResolve_OverlapPrefersEarlierPeriod(t *testing.T) {
	windows := models.DefaultTimeWindows
	windows.Morning.End = models.MustClockTime("13:00")
	windows.Afternoon.End = models.MustClockTime("19:00")
	person := models.Person{ID: "alice", Windows: windows}

	if got := services.Resolve(person, time.Date(2025, 8, 4, 12, 30, 0, 0, time.UTC)); got != models.PeriodMorning {
		t.Errorf("expected morning to win the overlap, got %s", got)
	}
	if got := services.Resolve(person, time.Date(2025, 8, 4, 18, 30, 0, 0, time.UTC)); got != models.PeriodAfternoon {
		t.Errorf("expected afternoon to win the overlap, got %s", got)
	}
}

func TestCrossedInto(t *testing.T) {
	person := models.Person{ID: "alice", Windows: models.DefaultTimeWindows}
	at := func(hour, minute int) time.Time {
		return time.Date(2025, 8, 4, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		previous time.Time
		now      time.Time
		want     models.Period
		crossed  bool
	}{
		{"into afternoon", at(11, 59), at(12, 0), models.PeriodAfternoon, true},
		{"within morning", at(7, 0), at(8, 0), models.PeriodNone, false},
		{"several boundaries reports latest", at(5, 0), at(19, 0), models.PeriodEvening, true},
		{"into a gap", at(21, 0), at(23, 0), models.PeriodNone, false},
		{"backwards", at(12, 0), at(11, 0), models.PeriodNone, false},
		{"same period next day", at(7, 0), at(7, 0).AddDate(0, 0, 1), models.PeriodMorning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, crossed := services.CrossedInto(person, tt.previous, tt.now)
			if got != tt.want || crossed != tt.crossed {
				t.Errorf("CrossedInto = %s, %v, want %s, %v", got, crossed, tt.want, tt.crossed)
			}
		})
	}
}

func TestWindowFor_AllDayHasNoWindow(t *testing.T) {
	person := models.Person{ID: "alice", Windows: models.DefaultTimeWindows}
	if _, ok := services.WindowFor(person, models.PeriodAllDay); ok {
		t.Error("expected no window for all_day")
	}
	window, ok := services.WindowFor(person, models.PeriodEvening)
	if !ok || window != models.DefaultTimeWindows.Evening {
		t.Errorf("expected default evening window, got %+v", window)
	}
}
