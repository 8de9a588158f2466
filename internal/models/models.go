package models

import (
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
	PeriodAllDay    Period = "all_day"
	PeriodNone      Period = "none"
)

func (period Period) Valid() bool {
	switch period {
	case PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodAllDay:
		return true
	}
	return false
}

type ChoreStatus string

const (
	ChoreStatusInactive  ChoreStatus = "inactive"
	ChoreStatusPending   ChoreStatus = "pending"
	ChoreStatusCompleted ChoreStatus = "completed"
	ChoreStatusOverdue   ChoreStatus = "overdue"
)

// Active reports whether the status counts toward active chores in views.
func (status ChoreStatus) Active() bool {
	return status == ChoreStatusPending || status == ChoreStatusOverdue
}

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceOnce    RecurrenceType = "once"
)

// Recurrence is a tagged variant; only the field matching Type is meaningful.
// Weekday is Monday-based (0 = Monday).
type Recurrence struct {
	Type       RecurrenceType `json:"type" yaml:"type"`
	Weekday    int            `json:"weekday,omitempty" yaml:"weekday,omitempty"`
	DayOfMonth int            `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
	Date       *Date          `json:"date,omitempty" yaml:"date,omitempty"`
}

// ClockTime is a time of day in minutes since midnight.
type ClockTime int

func ParseClockTime(value string) (ClockTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("parsing time of day %q: %w", value, err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time of day %q out of range", value)
	}
	return ClockTime(hour*60 + minute), nil
}

func MustClockTime(value string) ClockTime {
	clock, err := ParseClockTime(value)
	if err != nil {
		panic(err)
	}
	return clock
}

func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (clock ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(clock)/60, int(clock)%60)
}

func (clock ClockTime) MarshalText() ([]byte, error) {
	return []byte(clock.String()), nil
}

func (clock *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*clock = parsed
	return nil
}

// Window is the half-open range [Start, End) within one day.
type Window struct {
	Start ClockTime `json:"start" yaml:"start"`
	End   ClockTime `json:"end" yaml:"end"`
}

func (window Window) Contains(clock ClockTime) bool {
	return clock >= window.Start && clock < window.End
}

func (window Window) Valid() bool {
	return window.Start < window.End
}

type TimeWindows struct {
	Morning   Window `json:"morning" yaml:"morning"`
	Afternoon Window `json:"afternoon" yaml:"afternoon"`
	Evening   Window `json:"evening" yaml:"evening"`
}

var DefaultTimeWindows = TimeWindows{
	Morning:   Window{Start: 6 * 60, End: 12 * 60},
	Afternoon: Window{Start: 12 * 60, End: 18 * 60},
	Evening:   Window{Start: 18 * 60, End: 22 * 60},
}

type Person struct {
	ID                   string      `json:"person_id"`
	Name                 string      `json:"name"`
	Windows              TimeWindows `json:"time_windows"`
	CompletionAutomation string      `json:"completion_automation,omitempty"`
}

type Chore struct {
	ID                   string     `json:"chore_id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	AssignedPeople       []string   `json:"assigned_people"`
	OptionalPeople       []string   `json:"optional_people,omitempty"`
	TimePeriod           Period     `json:"time_period"`
	Recurrence           Recurrence `json:"recurrence"`
	Required             bool       `json:"required"`
	Enabled              bool       `json:"enabled"`
	CompletionAutomation string     `json:"completion_automation,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func (chore Chore) IsAssigned(personID string) bool {
	for _, id := range chore.AssignedPeople {
		if id == personID {
			return true
		}
	}
	return false
}

// RequiredPeople returns the assignees whose completion gates the chore.
func (chore Chore) RequiredPeople() []string {
	if !chore.Required {
		return nil
	}
	optional := make(map[string]bool, len(chore.OptionalPeople))
	for _, id := range chore.OptionalPeople {
		optional[id] = true
	}
	var required []string
	for _, id := range chore.AssignedPeople {
		if !optional[id] {
			required = append(required, id)
		}
	}
	return required
}

type Completion struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ChoreInstance struct {
	Key            InstanceKey
	AssignedPeople []string
	Completions    map[string]Completion
	CreatedAt      time.Time
}

func (instance ChoreInstance) CompletedBy(personID string) bool {
	return instance.Completions[personID].Completed
}

func (instance ChoreInstance) IsAssigned(personID string) bool {
	for _, id := range instance.AssignedPeople {
		if id == personID {
			return true
		}
	}
	return false
}

type CompletionAction string

const (
	CompletionActionComplete CompletionAction = "complete"
	CompletionActionReset    CompletionAction = "reset"
)

// CompletionLogEntry records one state-changing complete or reset command.
type CompletionLogEntry struct {
	ID         string           `json:"id"`
	InstanceID string           `json:"instance_id"`
	ChoreID    string           `json:"chore_id"`
	DueDate    Date             `json:"due_date"`
	PersonID   string           `json:"person_id"`
	Action     CompletionAction `json:"action"`
	At         time.Time        `json:"at"`
}

type APIToken struct {
	ID        string
	Name      string
	TokenHash string
	Scope     string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

const (
	TokenScopeAPI  = "api"
	TokenScopeICal = "ical"
)
