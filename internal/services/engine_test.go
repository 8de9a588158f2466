package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/services"
)

type engineFixture struct {
	catalog *services.Catalog
	store   *services.InstanceStore
	engine  *services.StatusEngine
	tracker *services.CompletionTracker
}

func newEngineFixture(t *testing.T, people ...string) engineFixture {
	t.Helper()
	catalog := services.NewCatalog()
	store := services.NewInstanceStore()
	fixture := engineFixture{
		catalog: catalog,
		store:   store,
		engine:  services.NewStatusEngine(catalog, store, time.UTC),
		tracker: services.NewCompletionTracker(catalog, store),
	}
	for _, id := range people {
		_, err := fixture.tracker.PutPerson(models.Person{ID: id, Windows: models.DefaultTimeWindows})
		if err != nil {
			t.Fatalf("adding person %s: %v", id, err)
		}
	}
	return fixture
}

func (fixture engineFixture) addChore(t *testing.T, input services.ChoreInput) models.Chore {
	t.Helper()
	chore, err := fixture.tracker.AddChore(input, monday(0, 0))
	if err != nil {
		t.Fatalf("adding chore %s: %v", input.Name, err)
	}
	return chore
}

// monday returns a time on Monday 2025-08-04.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 8, 4, hour, minute, 0, 0, time.UTC)
}

func eventTypes(events []models.Event) []models.EventType {
	types := make([]models.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func assertEventTypes(t *testing.T, events []models.Event, want ...models.EventType) {
	t.Helper()
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func dishes(people ...string) services.ChoreInput {
	return services.ChoreInput{
		ID:             "dishes",
		Name:           "Dishes",
		AssignedPeople: people,
		TimePeriod:     models.PeriodEvening,
		Recurrence:     models.Recurrence{Type: models.RecurrenceWeekly, Weekday: 0},
	}
}

const dishesMonday = "dishes_2025-08-04"

func TestStatusEngine_EveningChoreLifecycle(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))
	key := models.InstanceKey{ChoreID: "dishes", DueDate: models.NewDate(2025, time.August, 4)}

	evaluation := fixture.engine.Evaluate(monday(17, 59))
	assertEventTypes(t, evaluation.Events)
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusInactive {
		t.Fatalf("expected inactive before the window, got %s", status)
	}

	evaluation = fixture.engine.Evaluate(monday(18, 0))
	assertEventTypes(t, evaluation.Events, models.EventChoresActivated)
	if len(evaluation.Events[0].Instances) != 1 || evaluation.Events[0].Instances[0].InstanceID != dishesMonday {
		t.Errorf("expected activation of %s, got %+v", dishesMonday, evaluation.Events[0].Instances)
	}

	if _, err := fixture.tracker.Complete(dishesMonday, "alice", monday(18, 30)); err != nil {
		t.Fatalf("completing: %v", err)
	}
	evaluation = fixture.engine.Evaluate(monday(18, 30))
	assertEventTypes(t, evaluation.Events,
		models.EventChoreCompleted,
		models.EventPersonChoresCompleted,
		models.EventAllChoresCompleted,
	)
	if evaluation.Events[1].Person == nil || evaluation.Events[1].Person.PersonID != "alice" {
		t.Errorf("expected person event for alice, got %+v", evaluation.Events[1].Person)
	}

	if _, err := fixture.tracker.Reset(dishesMonday, "alice", monday(18, 40)); err != nil {
		t.Fatalf("resetting: %v", err)
	}
	evaluation = fixture.engine.Evaluate(monday(18, 40))
	assertEventTypes(t, evaluation.Events)
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusPending {
		t.Errorf("expected pending after reset, got %s", status)
	}
}

func TestStatusEngine_LateCompletion(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))
	key := models.InstanceKey{ChoreID: "dishes", DueDate: models.NewDate(2025, time.August, 4)}

	fixture.engine.Evaluate(monday(19, 0))
	evaluation := fixture.engine.Evaluate(monday(22, 0))
	assertEventTypes(t, evaluation.Events)
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusOverdue {
		t.Fatalf("expected overdue at window end, got %s", status)
	}

	fixture.tracker.Complete(dishesMonday, "alice", monday(22, 30))
	evaluation = fixture.engine.Evaluate(monday(22, 30))
	assertEventTypes(t, evaluation.Events,
		models.EventChoreCompleted,
		models.EventPersonChoresCompleted,
		models.EventAllChoresCompleted,
	)

	fixture.tracker.Reset(dishesMonday, "alice", monday(22, 45))
	evaluation = fixture.engine.Evaluate(monday(22, 45))
	assertEventTypes(t, evaluation.Events)
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusOverdue {
		t.Errorf("expected overdue after a reset past the window, got %s", status)
	}
}

func TestStatusEngine_ActivationAfterOverdueStartIsNotReported(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))

	// first evaluation happens after the window closed
	evaluation := fixture.engine.Evaluate(monday(23, 0))
	assertEventTypes(t, evaluation.Events)
}

func TestStatusEngine_EvaluateIsIdempotent(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))

	first := fixture.engine.Evaluate(monday(18, 5))
	if !first.Changed || len(first.Events) == 0 {
		t.Fatalf("expected first evaluation to change state, got %+v", first)
	}

	second := fixture.engine.Evaluate(monday(18, 5))
	if second.Changed {
		t.Error("expected no change on repeated evaluation")
	}
	assertEventTypes(t, second.Events)
}

func TestStatusEngine_AllCompletedRequiresEveryActiveInstance(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	fixture.addChore(t, dishes("alice"))
	fixture.addChore(t, services.ChoreInput{
		ID:             "homework",
		Name:           "Homework",
		AssignedPeople: []string{"bob"},
		TimePeriod:     models.PeriodAllDay,
		Recurrence:     models.Recurrence{Type: models.RecurrenceDaily},
	})

	fixture.engine.Evaluate(monday(18, 0))
	fixture.tracker.Complete(dishesMonday, "alice", monday(18, 10))
	evaluation := fixture.engine.Evaluate(monday(18, 10))
	assertEventTypes(t, evaluation.Events, models.EventChoreCompleted, models.EventPersonChoresCompleted)

	fixture.tracker.Complete("homework_2025-08-04", "bob", monday(18, 20))
	evaluation = fixture.engine.Evaluate(monday(18, 20))
	assertEventTypes(t, evaluation.Events,
		models.EventChoreCompleted,
		models.EventPersonChoresCompleted,
		models.EventAllChoresCompleted,
	)
	if got := len(evaluation.Events[2].Instances); got != 2 {
		t.Errorf("expected 2 completed chores in aggregate event, got %d", got)
	}
}

func TestStatusEngine_NoActiveChoresIsNotAllCompleted(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))

	fixture.engine.Evaluate(monday(9, 0))
	if fixture.engine.Snapshot().AllCompleted {
		t.Error("expected all-completed to be false with only inactive chores")
	}
}

func TestStatusEngine_RequiredAndOptionalPeople(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	fixture.addChore(t, services.ChoreInput{
		ID:             "dishes",
		Name:           "Dishes",
		AssignedPeople: []string{"alice", "bob"},
		OptionalPeople: []string{"bob"},
		TimePeriod:     models.PeriodEvening,
		Recurrence:     models.Recurrence{Type: models.RecurrenceDaily},
	})
	key := models.InstanceKey{ChoreID: "dishes", DueDate: models.NewDate(2025, time.August, 4)}

	fixture.engine.Evaluate(monday(18, 0))
	fixture.tracker.Complete(dishesMonday, "bob", monday(18, 10))
	fixture.engine.Evaluate(monday(18, 10))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusPending {
		t.Fatalf("expected pending while the required person is open, got %s", status)
	}

	fixture.tracker.Complete(dishesMonday, "alice", monday(18, 20))
	fixture.engine.Evaluate(monday(18, 20))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusCompleted {
		t.Errorf("expected completed once the required person is done, got %s", status)
	}
}

func TestStatusEngine_NonRequiredChoreCompletesOnAnyCompletion(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	required := false
	fixture.addChore(t, services.ChoreInput{
		ID:             "walk_dog",
		Name:           "Walk dog",
		AssignedPeople: []string{"alice", "bob"},
		TimePeriod:     models.PeriodMorning,
		Recurrence:     models.Recurrence{Type: models.RecurrenceDaily},
		Required:       &required,
	})
	key := models.InstanceKey{ChoreID: "walk_dog", DueDate: models.NewDate(2025, time.August, 4)}

	evaluation := fixture.engine.Evaluate(monday(7, 0))
	assertEventTypes(t, evaluation.Events, models.EventChoresActivated, models.EventAllChoresCompleted)
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusPending {
		t.Fatalf("expected the optional chore to wait for a completion, got %s", status)
	}

	fixture.tracker.Complete("walk_dog_2025-08-04", "bob", monday(7, 30))
	evaluation = fixture.engine.Evaluate(monday(7, 30))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusCompleted {
		t.Errorf("expected completed after bob's completion, got %s", status)
	}
	assertEventTypes(t, evaluation.Events,
		models.EventChoreCompleted,
		models.EventPersonChoresCompleted,
		models.EventPersonChoresCompleted,
	)
}

func TestStatusEngine_OptionalChoreDoesNotBlockAllCompleted(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	fixture.addChore(t, dishes("alice"))
	required := false
	fixture.addChore(t, services.ChoreInput{
		ID:             "tidy_toys",
		Name:           "Tidy toys",
		AssignedPeople: []string{"bob"},
		TimePeriod:     models.PeriodEvening,
		Recurrence:     models.Recurrence{Type: models.RecurrenceDaily},
		Required:       &required,
	})
	toys := models.InstanceKey{ChoreID: "tidy_toys", DueDate: models.NewDate(2025, time.August, 4)}

	fixture.engine.Evaluate(monday(18, 0))
	fixture.tracker.Complete(dishesMonday, "alice", monday(18, 5))
	evaluation := fixture.engine.Evaluate(monday(18, 5))

	assertEventTypes(t, evaluation.Events,
		models.EventChoreCompleted,
		models.EventPersonChoresCompleted,
		models.EventAllChoresCompleted,
	)
	if person := evaluation.Events[1].Person; person == nil || person.PersonID != "alice" {
		t.Errorf("expected alice to be done, got %+v", person)
	}
	snapshot := fixture.engine.Snapshot()
	if !snapshot.AllCompleted {
		t.Error("expected all chores completed with only the optional chore open")
	}
	if status := snapshot.Status(toys); status != models.ChoreStatusPending {
		t.Errorf("expected the optional chore to stay pending, got %s", status)
	}
	if snapshot.PeopleDone["bob"] {
		t.Error("expected bob not to be done")
	}
}

func TestStatusEngine_PrepareWithoutCommitRepeatsEvents(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))

	first := fixture.engine.Prepare(monday(18, 0))
	assertEventTypes(t, first.Events, models.EventChoresActivated)

	retried := fixture.engine.Prepare(monday(18, 1))
	assertEventTypes(t, retried.Events, models.EventChoresActivated)
	if !retried.Changed {
		t.Error("expected an uncommitted transition to still count as a change")
	}

	fixture.engine.Commit(retried)
	assertEventTypes(t, fixture.engine.Prepare(monday(18, 2)).Events)
}

func TestStatusEngine_NotAssignedLeavesStateUnchanged(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	fixture.addChore(t, dishes("alice"))
	fixture.engine.Evaluate(monday(18, 0))
	version := fixture.store.Version()

	_, err := fixture.tracker.Complete(dishesMonday, "bob", monday(18, 10))
	if !errors.Is(err, services.ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
	if fixture.store.Version() != version {
		t.Error("expected store to be unchanged")
	}

	evaluation := fixture.engine.Evaluate(monday(18, 10))
	assertEventTypes(t, evaluation.Events)
}

func TestStatusEngine_UnknownInstance(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))

	for _, id := range []string{"dishes_2025-08-05", "nonsense", "dishes_2025-13-01"} {
		if _, err := fixture.tracker.Complete(id, "alice", monday(18, 0)); !errors.Is(err, services.ErrUnknownInstance) {
			t.Errorf("%s: expected ErrUnknownInstance, got %v", id, err)
		}
	}
}

func TestStatusEngine_DeletedPersonIsSatisfied(t *testing.T) {
	fixture := newEngineFixture(t, "alice", "bob")
	fixture.addChore(t, dishes("alice", "bob"))
	key := models.InstanceKey{ChoreID: "dishes", DueDate: models.NewDate(2025, time.August, 4)}

	fixture.engine.Evaluate(monday(18, 0))
	fixture.tracker.Complete(dishesMonday, "alice", monday(18, 10))
	fixture.engine.Evaluate(monday(18, 10))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusPending {
		t.Fatalf("expected pending while bob is open, got %s", status)
	}

	if !fixture.tracker.RemovePerson("bob") {
		t.Fatal("expected bob to be removed")
	}
	evaluation := fixture.engine.Evaluate(monday(18, 20))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusCompleted {
		t.Errorf("expected completed after removing bob, got %s", status)
	}
	if len(evaluation.Events) == 0 || evaluation.Events[0].Type != models.EventChoreCompleted {
		t.Errorf("expected chore_completed, got %v", eventTypes(evaluation.Events))
	}
	if len(fixture.engine.Warnings()) == 0 {
		t.Error("expected a warning about the unknown assignee")
	}
}

func trashChore() services.ChoreInput {
	return services.ChoreInput{
		ID:             "trash",
		Name:           "Trash",
		AssignedPeople: []string{"alice"},
		TimePeriod:     models.PeriodMorning,
		Recurrence:     models.Recurrence{Type: models.RecurrenceDaily},
	}
}

func TestStatusEngine_OverdueInstancesCarryOver(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, trashChore())

	fixture.engine.Evaluate(monday(7, 0))
	fixture.engine.Evaluate(monday(7, 0).AddDate(0, 0, 1))

	instances := fixture.store.ForChore("trash")
	if len(instances) != 2 {
		t.Fatalf("expected the unfinished instance to carry over, got %d instances", len(instances))
	}
	if status := fixture.engine.InstanceStatus(instances[0], monday(7, 0).AddDate(0, 0, 1)); status != models.ChoreStatusOverdue {
		t.Errorf("expected the carried instance to be overdue, got %s", status)
	}

	fixture.tracker.Complete("trash_2025-08-04", "alice", monday(8, 0).AddDate(0, 0, 1))
	evaluation := fixture.engine.Evaluate(monday(8, 0).AddDate(0, 0, 1))
	assertEventTypes(t, evaluation.Events, models.EventChoreCompleted)
}

func TestStatusEngine_SupersedesCompletedInstances(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, trashChore())

	fixture.engine.Evaluate(monday(7, 0))
	fixture.tracker.Complete("trash_2025-08-04", "alice", monday(7, 10))
	fixture.engine.Evaluate(monday(7, 0).AddDate(0, 0, 1))

	instances := fixture.store.ForChore("trash")
	if len(instances) != 1 {
		t.Fatalf("expected the completed instance to be superseded, got %d instances", len(instances))
	}
	if instances[0].Key.DueDate != models.NewDate(2025, time.August, 5) {
		t.Errorf("expected the newest instance to remain, got %s", instances[0].Key)
	}
}

func TestStatusEngine_RemovedChoreRetiresInstances(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))
	fixture.engine.Evaluate(monday(18, 0))

	if removed := fixture.tracker.RemoveChore("dishes"); removed != 1 {
		t.Fatalf("expected 1 retired instance, got %d", removed)
	}
	evaluation := fixture.engine.Evaluate(monday(18, 5))
	assertEventTypes(t, evaluation.Events)
	if fixture.store.Len() != 0 {
		t.Errorf("expected no instances, got %d", fixture.store.Len())
	}
}

func TestStatusEngine_DisabledChoreIsNotExpanded(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	enabled := false
	input := dishes("alice")
	input.Enabled = &enabled
	fixture.addChore(t, input)

	fixture.engine.Evaluate(monday(18, 0))
	if fixture.store.Len() != 0 {
		t.Errorf("expected no instances for a disabled chore, got %d", fixture.store.Len())
	}
}

func TestStatusEngine_SpanCoversAllAssigneeWindows(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	late := models.DefaultTimeWindows
	late.Evening = models.Window{Start: models.MustClockTime("20:00"), End: models.MustClockTime("23:30")}
	fixture.tracker.PutPerson(models.Person{ID: "bob", Windows: late})
	fixture.addChore(t, dishes("alice", "bob"))
	key := models.InstanceKey{ChoreID: "dishes", DueDate: models.NewDate(2025, time.August, 4)}

	fixture.engine.Evaluate(monday(22, 30))
	if status := fixture.engine.Snapshot().Status(key); status != models.ChoreStatusPending {
		t.Fatalf("expected pending until the latest window closes, got %s", status)
	}

	instance, _ := fixture.store.Get(key)
	if status := fixture.engine.PersonStatus(instance, "alice", monday(22, 30)); status != models.ChoreStatusOverdue {
		t.Errorf("expected alice to be overdue, got %s", status)
	}
	if status := fixture.engine.PersonStatus(instance, "bob", monday(22, 30)); status != models.ChoreStatusPending {
		t.Errorf("expected bob to be pending, got %s", status)
	}
}

func TestStatusEngine_RestoreSuppressesReportedTransitions(t *testing.T) {
	fixture := newEngineFixture(t, "alice")
	fixture.addChore(t, dishes("alice"))
	fixture.engine.Evaluate(monday(18, 0))
	snapshot := fixture.engine.Snapshot()

	restarted := services.NewStatusEngine(fixture.catalog, fixture.store, time.UTC)
	restarted.Restore(snapshot)
	evaluation := restarted.Evaluate(monday(18, 5))
	assertEventTypes(t, evaluation.Events)
}
