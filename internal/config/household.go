package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/trackzero/chorenet/internal/models"
	"gopkg.in/yaml.v3"
)

// Household is the file-based configuration: the people living in the
// household and the chores to create on first start.
type Household struct {
	Name   string       `yaml:"name"`
	People []PersonSpec `yaml:"people"`
	Chores []ChoreSpec  `yaml:"chores"`
}

type PersonSpec struct {
	ID                   string                   `yaml:"id"`
	Name                 string                   `yaml:"name"`
	TimeWindows          map[string]models.Window `yaml:"time_windows"`
	CompletionAutomation string                   `yaml:"completion_automation"`
}

type ChoreSpec struct {
	ID                   string            `yaml:"id"`
	Name                 string            `yaml:"name"`
	Description          string            `yaml:"description"`
	AssignedPeople       []string          `yaml:"assigned_people"`
	OptionalPeople       []string          `yaml:"optional_people"`
	TimePeriod           models.Period     `yaml:"time_period"`
	Recurrence           models.Recurrence `yaml:"recurrence"`
	Required             *bool             `yaml:"required"`
	Enabled              *bool             `yaml:"enabled"`
	CompletionAutomation string            `yaml:"completion_automation"`
}

// ParseHousehold decodes and validates a household definition.
func ParseHousehold(data []byte) (Household, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Household{}, nil
	}
	var household Household
	if err := yaml.Unmarshal(data, &household); err != nil {
		return Household{}, fmt.Errorf("decoding household: %w", err)
	}
	if err := household.Validate(); err != nil {
		return Household{}, err
	}
	return household, nil
}

// LoadHousehold reads the household file. A missing file means nothing is
// configured.
func LoadHousehold(path string) (Household, error) {
	if strings.TrimSpace(path) == "" {
		return Household{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Household{}, nil
		}
		return Household{}, fmt.Errorf("reading %s: %w", path, err)
	}
	household, err := ParseHousehold(data)
	if err != nil {
		return Household{}, fmt.Errorf("%s: %w", path, err)
	}
	return household, nil
}

func (household Household) Validate() error {
	seen := make(map[string]bool, len(household.People))
	for i, person := range household.People {
		if strings.TrimSpace(person.ID) == "" {
			return fmt.Errorf("people[%d]: id is required", i)
		}
		if seen[person.ID] {
			return fmt.Errorf("people[%d]: duplicate id %q", i, person.ID)
		}
		seen[person.ID] = true
		for period := range person.TimeWindows {
			switch models.Period(period) {
			case models.PeriodMorning, models.PeriodAfternoon, models.PeriodEvening:
			default:
				return fmt.Errorf("people[%d]: unknown time window %q", i, period)
			}
		}
	}
	for i, chore := range household.Chores {
		if strings.TrimSpace(chore.Name) == "" {
			return fmt.Errorf("chores[%d]: name is required", i)
		}
	}
	return nil
}

// Person fills windows missing from the file with the defaults.
func (spec PersonSpec) Person() models.Person {
	windows := models.DefaultTimeWindows
	if window, ok := spec.TimeWindows[string(models.PeriodMorning)]; ok {
		windows.Morning = window
	}
	if window, ok := spec.TimeWindows[string(models.PeriodAfternoon)]; ok {
		windows.Afternoon = window
	}
	if window, ok := spec.TimeWindows[string(models.PeriodEvening)]; ok {
		windows.Evening = window
	}
	return models.Person{
		ID:                   spec.ID,
		Name:                 spec.Name,
		Windows:              windows,
		CompletionAutomation: spec.CompletionAutomation,
	}
}

func (household Household) Persons() []models.Person {
	people := make([]models.Person, 0, len(household.People))
	for _, spec := range household.People {
		people = append(people, spec.Person())
	}
	return people
}
