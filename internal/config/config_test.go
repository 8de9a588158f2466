package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.DatabasePath != "./data/chorenet.db" {
		t.Errorf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.TickInterval != time.Minute {
		t.Errorf("expected 1m tick interval, got %s", cfg.TickInterval)
	}
	if cfg.DispatchInterval != 30*time.Second {
		t.Errorf("expected 30s dispatch interval, got %s", cfg.DispatchInterval)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CHORENET_PORT", "9090")
	t.Setenv("CHORENET_TICK_INTERVAL", "15s")
	t.Setenv("CHORENET_HA_URL", "http://homeassistant.local:8123")
	t.Setenv("CHORENET_HA_TOKEN", "secret")
	t.Setenv("CHORENET_TIMEZONE", "Europe/Berlin")
	t.Setenv("CHORENET_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Port != "9090" || cfg.TickInterval != 15*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	location, err := cfg.Location()
	if err != nil {
		t.Fatalf("resolving location: %v", err)
	}
	if location.String() != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin, got %s", location)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.SlogLevel())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"ha url without token": {"CHORENET_HA_URL": "http://ha.local"},
		"unknown timezone":     {"CHORENET_TIMEZONE": "Mars/Olympus"},
		"zero tick interval":   {"CHORENET_TICK_INTERVAL": "0s"},
		"malformed interval":   {"CHORENET_DISPATCH_INTERVAL": "soon"},
	}

	for name, environment := range tests {
		t.Run(name, func(t *testing.T) {
			for key, value := range environment {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

const householdYAML = `
name: Okafor
people:
  - id: alice
    name: Alice
    time_windows:
      evening:
        start: "19:00"
        end: "21:30"
    completion_automation: automation.alice_done
  - id: bob
    name: Bob
chores:
  - id: dishes
    name: Dishes
    assigned_people: [alice, bob]
    optional_people: [bob]
    time_period: evening
    recurrence:
      type: weekly
      weekday: 0
  - name: Pay rent
    assigned_people: [alice]
    recurrence:
      type: once
      date: "2025-09-01"
    required: false
`

func TestParseHousehold(t *testing.T) {
	household, err := ParseHousehold([]byte(householdYAML))
	if err != nil {
		t.Fatalf("parsing household: %v", err)
	}
	if household.Name != "Okafor" {
		t.Errorf("expected name 'Okafor', got '%s'", household.Name)
	}

	people := household.Persons()
	if len(people) != 2 {
		t.Fatalf("expected 2 people, got %d", len(people))
	}
	alice := people[0]
	if alice.Windows.Evening.Start != models.MustClockTime("19:00") || alice.Windows.Evening.End != models.MustClockTime("21:30") {
		t.Errorf("expected custom evening window, got %+v", alice.Windows.Evening)
	}
	if alice.Windows.Morning != models.DefaultTimeWindows.Morning {
		t.Errorf("expected default morning window, got %+v", alice.Windows.Morning)
	}
	if alice.CompletionAutomation != "automation.alice_done" {
		t.Errorf("unexpected automation %s", alice.CompletionAutomation)
	}
	if people[1].Windows != models.DefaultTimeWindows {
		t.Errorf("expected bob to use default windows, got %+v", people[1].Windows)
	}

	if len(household.Chores) != 2 {
		t.Fatalf("expected 2 chores, got %d", len(household.Chores))
	}
	dishes := household.Chores[0]
	if dishes.TimePeriod != models.PeriodEvening || dishes.Recurrence.Type != models.RecurrenceWeekly {
		t.Errorf("unexpected dishes chore %+v", dishes)
	}
	rent := household.Chores[1]
	if rent.Recurrence.Date == nil || *rent.Recurrence.Date != models.NewDate(2025, time.September, 1) {
		t.Errorf("expected once date 2025-09-01, got %v", rent.Recurrence.Date)
	}
	if rent.Required == nil || *rent.Required {
		t.Errorf("expected required false, got %v", rent.Required)
	}
	if rent.Enabled != nil {
		t.Errorf("expected enabled to be unset, got %v", *rent.Enabled)
	}
}

func TestParseHousehold_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing person id":  "people:\n  - name: Alice\n",
		"duplicate person":   "people:\n  - id: alice\n  - id: alice\n",
		"unknown window":     "people:\n  - id: alice\n    time_windows:\n      night:\n        start: \"22:00\"\n        end: \"23:00\"\n",
		"bad clock time":     "people:\n  - id: alice\n    time_windows:\n      morning:\n        start: \"25:00\"\n        end: \"26:00\"\n",
		"missing chore name": "chores:\n  - assigned_people: [alice]\n",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHousehold([]byte(data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadHousehold_MissingFile(t *testing.T) {
	household, err := LoadHousehold(filepath.Join(t.TempDir(), "household.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if len(household.People) != 0 || len(household.Chores) != 0 {
		t.Errorf("expected empty household, got %+v", household)
	}
}

func TestLoadHousehold_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "household.yaml")
	if err := os.WriteFile(path, []byte(householdYAML), 0644); err != nil {
		t.Fatalf("writing household file: %v", err)
	}

	household, err := LoadHousehold(path)
	if err != nil {
		t.Fatalf("loading household: %v", err)
	}
	if len(household.People) != 2 {
		t.Errorf("expected 2 people, got %d", len(household.People))
	}
}
