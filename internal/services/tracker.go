package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trackzero/chorenet/internal/models"
)

var (
	ErrNotAssigned     = errors.New("person is not assigned to the chore")
	ErrUnknownInstance = errors.New("unknown chore instance")
	ErrInvalidChore    = errors.New("invalid chore")
	ErrInvalidPerson   = errors.New("invalid person")
)

// ChoreInput is the add_chore command. Nil Required and Enabled default to true.
type ChoreInput struct {
	ID                   string
	Name                 string
	Description          string
	AssignedPeople       []string
	OptionalPeople       []string
	TimePeriod           models.Period
	Recurrence           models.Recurrence
	Required             *bool
	Enabled              *bool
	CompletionAutomation string
}

// CompletionTracker applies commands to the catalog and the instance store.
// Every method leaves state untouched when it returns an error.
type CompletionTracker struct {
	catalog *Catalog
	store   *InstanceStore
}

func NewCompletionTracker(catalog *Catalog, store *InstanceStore) *CompletionTracker {
	return &CompletionTracker{catalog: catalog, store: store}
}

// Complete marks the instance done for one person. The returned entry is nil
// when the person had already completed it.
func (tracker *CompletionTracker) Complete(instanceID string, personID string, when time.Time) (*models.CompletionLogEntry, error) {
	return tracker.setCompleted(instanceID, personID, true, when)
}

// Reset clears one person's completion. The returned entry is nil when there
// was nothing to clear.
func (tracker *CompletionTracker) Reset(instanceID string, personID string, when time.Time) (*models.CompletionLogEntry, error) {
	return tracker.setCompleted(instanceID, personID, false, when)
}

func (tracker *CompletionTracker) setCompleted(instanceID string, personID string, completed bool, when time.Time) (*models.CompletionLogEntry, error) {
	key, err := models.ParseInstanceKey(instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
	}

	changed, err := tracker.store.SetPersonCompleted(key, personID, completed, when)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}

	action := models.CompletionActionComplete
	if !completed {
		action = models.CompletionActionReset
	}
	return &models.CompletionLogEntry{
		ID:         uuid.New().String(),
		InstanceID: key.String(),
		ChoreID:    key.ChoreID,
		DueDate:    key.DueDate,
		PersonID:   personID,
		Action:     action,
		At:         when,
	}, nil
}

// AddChore validates and registers a new chore definition.
func (tracker *CompletionTracker) AddChore(input ChoreInput, now time.Time) (models.Chore, error) {
	chore, err := tracker.buildChore(input, now)
	if err != nil {
		return models.Chore{}, err
	}
	tracker.catalog.putChore(chore)
	return chore, nil
}

// RemoveChore drops the definition and retires its instances. Removing an
// unknown chore is a no-op.
func (tracker *CompletionTracker) RemoveChore(choreID string) int {
	tracker.catalog.removeChore(choreID)
	return tracker.store.Retire(choreID)
}

// PutPerson creates or replaces a person definition.
func (tracker *CompletionTracker) PutPerson(person models.Person) (models.Person, error) {
	person.ID = NormalizeID(person.ID)
	person.Name = strings.TrimSpace(person.Name)
	if person.ID == "" {
		return models.Person{}, fmt.Errorf("%w: id is required", ErrInvalidPerson)
	}
	if person.Name == "" {
		person.Name = person.ID
	}
	if !validateWindows(person.Windows) {
		return models.Person{}, fmt.Errorf("%w: %s has a time window that does not start before it ends", ErrInvalidPerson, person.ID)
	}
	tracker.catalog.putPerson(person)
	return person, nil
}

// RemovePerson drops a person. Chores still assigned to them keep evaluating.
func (tracker *CompletionTracker) RemovePerson(personID string) bool {
	return tracker.catalog.removePerson(personID)
}

func (tracker *CompletionTracker) buildChore(input ChoreInput, now time.Time) (models.Chore, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Chore{}, fmt.Errorf("%w: name is required", ErrInvalidChore)
	}

	assigned := uniqueIDs(input.AssignedPeople)
	if len(assigned) == 0 {
		return models.Chore{}, fmt.Errorf("%w: at least one person must be assigned", ErrInvalidChore)
	}
	assignedSet := make(map[string]bool, len(assigned))
	for _, personID := range assigned {
		if _, ok := tracker.catalog.Person(personID); !ok {
			return models.Chore{}, fmt.Errorf("%w: assigned person %q is not configured", ErrInvalidChore, personID)
		}
		assignedSet[personID] = true
	}
	optional := uniqueIDs(input.OptionalPeople)
	for _, personID := range optional {
		if !assignedSet[personID] {
			return models.Chore{}, fmt.Errorf("%w: optional person %q is not assigned", ErrInvalidChore, personID)
		}
	}

	period := input.TimePeriod
	if period == "" {
		period = models.PeriodAllDay
	}
	if !period.Valid() {
		return models.Chore{}, fmt.Errorf("%w: unsupported time period %q", ErrInvalidChore, period)
	}
	if err := ValidateRecurrence(input.Recurrence); err != nil {
		return models.Chore{}, fmt.Errorf("%w: %v", ErrInvalidChore, err)
	}

	id, err := tracker.choreID(input.ID, name)
	if err != nil {
		return models.Chore{}, err
	}

	return models.Chore{
		ID:                   id,
		Name:                 name,
		Description:          strings.TrimSpace(input.Description),
		AssignedPeople:       assigned,
		OptionalPeople:       optional,
		TimePeriod:           period,
		Recurrence:           input.Recurrence,
		Required:             boolOrDefault(input.Required, true),
		Enabled:              boolOrDefault(input.Enabled, true),
		CompletionAutomation: strings.TrimSpace(input.CompletionAutomation),
		CreatedAt:            now,
	}, nil
}

// choreID uses an explicit id as given, otherwise derives one from the name
// and disambiguates collisions with a short random suffix.
func (tracker *CompletionTracker) choreID(explicit string, name string) (string, error) {
	if explicit != "" {
		id := NormalizeID(explicit)
		if id == "" {
			return "", fmt.Errorf("%w: id %q is empty after normalization", ErrInvalidChore, explicit)
		}
		if _, exists := tracker.catalog.Chore(id); exists {
			return "", fmt.Errorf("%w: chore %q already exists", ErrInvalidChore, id)
		}
		return id, nil
	}

	id := NormalizeID(name)
	if id == "" {
		id = "chore"
	}
	if _, exists := tracker.catalog.Chore(id); !exists {
		return id, nil
	}
	return id + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8], nil
}

// NormalizeID lowercases a name and replaces spaces with underscores,
// dropping anything outside [a-z0-9_-].
func NormalizeID(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var builder strings.Builder
	for _, r := range value {
		switch {
		case r == ' ':
			builder.WriteRune('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
