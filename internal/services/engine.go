package services

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

// Snapshot is the state computed by one evaluation. Events are derived by
// diffing consecutive snapshots, never from flags stored on instances.
type Snapshot struct {
	Statuses     map[models.InstanceKey]models.ChoreStatus
	AllCompleted bool
	PeopleDone   map[string]bool
}

func newSnapshot() Snapshot {
	return Snapshot{
		Statuses:   make(map[models.InstanceKey]models.ChoreStatus),
		PeopleDone: make(map[string]bool),
	}
}

// Status returns the recorded status of key, inactive when unknown.
func (snapshot Snapshot) Status(key models.InstanceKey) models.ChoreStatus {
	if status, ok := snapshot.Statuses[key]; ok {
		return status
	}
	return models.ChoreStatusInactive
}

func (snapshot Snapshot) Equal(other Snapshot) bool {
	if snapshot.AllCompleted != other.AllCompleted ||
		len(snapshot.Statuses) != len(other.Statuses) ||
		len(snapshot.PeopleDone) != len(other.PeopleDone) {
		return false
	}
	for key, status := range snapshot.Statuses {
		if otherStatus, ok := other.Statuses[key]; !ok || otherStatus != status {
			return false
		}
	}
	for personID, done := range snapshot.PeopleDone {
		if otherDone, ok := other.PeopleDone[personID]; !ok || otherDone != done {
			return false
		}
	}
	return true
}

func (snapshot Snapshot) clone() Snapshot {
	copied := newSnapshot()
	copied.AllCompleted = snapshot.AllCompleted
	for key, status := range snapshot.Statuses {
		copied.Statuses[key] = status
	}
	for personID, done := range snapshot.PeopleDone {
		copied.PeopleDone[personID] = done
	}
	return copied
}

// Evaluation is the outcome of one engine pass. A prepared evaluation does
// not move the engine forward until it is committed.
type Evaluation struct {
	At      time.Time
	Events  []models.Event
	Changed bool

	snapshot Snapshot
	warnings map[string]bool
}

// StatusEngine expands recurrence into instances, derives per-instance and
// aggregate status and reports transitions since the previous evaluation.
type StatusEngine struct {
	catalog       *Catalog
	store         *InstanceStore
	location      *time.Location
	previous      Snapshot
	lastEvaluated time.Time
	warnings      map[string]bool
}

func NewStatusEngine(catalog *Catalog, store *InstanceStore, location *time.Location) *StatusEngine {
	if location == nil {
		location = time.Local
	}
	return &StatusEngine{
		catalog:  catalog,
		store:    store,
		location: location,
		previous: newSnapshot(),
		warnings: make(map[string]bool),
	}
}

func (engine *StatusEngine) Location() *time.Location {
	return engine.location
}

// Snapshot returns a copy of the most recent snapshot.
func (engine *StatusEngine) Snapshot() Snapshot {
	return engine.previous.clone()
}

// Restore seeds the previous snapshot, typically from persisted state, so
// transitions already reported before a restart are not reported again.
func (engine *StatusEngine) Restore(snapshot Snapshot) {
	restored := snapshot.clone()
	if restored.Statuses == nil {
		restored.Statuses = make(map[models.InstanceKey]models.ChoreStatus)
	}
	if restored.PeopleDone == nil {
		restored.PeopleDone = make(map[string]bool)
	}
	engine.previous = restored
}

// Warnings lists the unresolvable references seen by the last evaluation.
func (engine *StatusEngine) Warnings() []string {
	warnings := make([]string, 0, len(engine.warnings))
	for warning := range engine.warnings {
		warnings = append(warnings, warning)
	}
	sort.Strings(warnings)
	return warnings
}

// Evaluate prepares and commits an evaluation at now.
func (engine *StatusEngine) Evaluate(now time.Time) Evaluation {
	evaluation := engine.Prepare(now)
	engine.Commit(evaluation)
	return evaluation
}

// Prepare brings the instance set up to date for now and returns the events
// for every transition since the last committed evaluation. Until Commit is
// called, preparing again reports the same transitions.
func (engine *StatusEngine) Prepare(now time.Time) Evaluation {
	now = now.In(engine.location)
	startVersion := engine.store.Version()
	warnings := make(map[string]bool)

	engine.logCrossings(now)
	engine.expand(now, warnings)
	next := engine.compute(now, warnings)
	events := engine.diff(engine.previous, next, now)

	return Evaluation{
		At:       now,
		Events:   events,
		Changed:  engine.store.Version() != startVersion || !next.Equal(engine.previous),
		snapshot: next,
		warnings: warnings,
	}
}

// Commit makes a prepared evaluation the baseline for the next diff. Callers
// commit only once its events and state are stored.
func (engine *StatusEngine) Commit(evaluation Evaluation) {
	for warning := range evaluation.warnings {
		if !engine.warnings[warning] {
			slog.Warn("unresolved chore reference", "detail", warning)
		}
	}
	engine.previous = evaluation.snapshot.clone()
	engine.warnings = evaluation.warnings
	engine.lastEvaluated = evaluation.At
}

func (engine *StatusEngine) logCrossings(now time.Time) {
	if engine.lastEvaluated.IsZero() {
		return
	}
	for _, person := range engine.catalog.People() {
		if period, ok := CrossedInto(person, engine.lastEvaluated, now); ok {
			slog.Debug("time window opened", "person", person.ID, "period", period)
		}
	}
}

func (engine *StatusEngine) expand(now time.Time, warnings map[string]bool) {
	for _, instance := range engine.store.All() {
		choreID := instance.Key.ChoreID
		if _, ok := engine.catalog.Chore(choreID); ok {
			continue
		}
		if removed := engine.store.Retire(choreID); removed > 0 {
			slog.Info("retired instances of removed chore", "chore", choreID, "count", removed)
		}
	}

	today := models.DateOf(now)
	for _, chore := range engine.catalog.Chores() {
		if !chore.Enabled || !IsDue(chore.Recurrence, today) {
			continue
		}
		instance, created := engine.store.GetOrCreate(chore, today, now)
		if !created {
			continue
		}
		retired := engine.store.Supersede(instance.Key, func(earlier *models.ChoreInstance) bool {
			return !engine.requirementMet(earlier, chore, warnings)
		})
		slog.Debug("created chore instance", "instance", instance.Key.String(), "superseded", len(retired))
	}
}

// compute derives every status. Only instances with a required assignee gate
// the household aggregate; the rest are satisfied for it.
func (engine *StatusEngine) compute(now time.Time, warnings map[string]bool) Snapshot {
	next := newSnapshot()
	activeCount := 0
	gatingCount, gatingCompleted := 0, 0
	personActive := make(map[string]int)
	personSatisfied := make(map[string]int)

	for _, instance := range engine.store.All() {
		status := engine.instanceStatus(instance, now, warnings)
		next.Statuses[instance.Key] = status
		if status == models.ChoreStatusInactive {
			continue
		}

		activeCount++
		completed := status == models.ChoreStatusCompleted
		chore, _ := engine.catalog.Chore(instance.Key.ChoreID)
		if hasRequiredAssignee(instance, chore) {
			gatingCount++
			if completed {
				gatingCompleted++
			}
		}
		for _, personID := range instance.AssignedPeople {
			if _, ok := engine.catalog.Person(personID); !ok {
				continue
			}
			personActive[personID]++
			if completed || instance.CompletedBy(personID) {
				personSatisfied[personID]++
			}
		}
	}

	next.AllCompleted = activeCount > 0 && gatingCompleted == gatingCount
	for personID, count := range personActive {
		next.PeopleDone[personID] = personSatisfied[personID] == count
	}
	return next
}

func hasRequiredAssignee(instance *models.ChoreInstance, chore models.Chore) bool {
	for _, personID := range chore.RequiredPeople() {
		if instance.IsAssigned(personID) {
			return true
		}
	}
	return false
}

func (engine *StatusEngine) diff(previous, next Snapshot, now time.Time) []models.Event {
	var events []models.Event
	var activated []models.InstanceRef
	var completed []models.Event

	instances := engine.store.All()
	for _, instance := range instances {
		before := previous.Status(instance.Key)
		after := next.Status(instance.Key)
		if before == after {
			continue
		}

		switch {
		case after == models.ChoreStatusPending && before == models.ChoreStatusInactive:
			activated = append(activated, engine.instanceRef(instance, after))
		case after == models.ChoreStatusCompleted:
			chore, _ := engine.catalog.Chore(instance.Key.ChoreID)
			ref := engine.instanceRef(instance, after)
			completed = append(completed, models.Event{
				Type:       models.EventChoreCompleted,
				OccurredAt: now,
				Chore:      &models.ChoreRef{ChoreID: chore.ID, Name: chore.Name},
				Instance:   &ref,
				Automation: chore.CompletionAutomation,
			})
		}
	}

	if len(activated) > 0 {
		events = append(events, models.Event{
			Type:       models.EventChoresActivated,
			OccurredAt: now,
			Instances:  activated,
		})
	}
	events = append(events, completed...)

	for _, person := range engine.catalog.People() {
		if !next.PeopleDone[person.ID] || previous.PeopleDone[person.ID] {
			continue
		}
		var done []models.InstanceRef
		for _, instance := range instances {
			status := next.Status(instance.Key)
			if status != models.ChoreStatusInactive && instance.IsAssigned(person.ID) {
				done = append(done, engine.instanceRef(instance, status))
			}
		}
		events = append(events, models.Event{
			Type:       models.EventPersonChoresCompleted,
			OccurredAt: now,
			Person:     &models.PersonRef{PersonID: person.ID, Name: person.Name},
			Instances:  done,
			Automation: person.CompletionAutomation,
		})
	}

	if next.AllCompleted && !previous.AllCompleted {
		var done []models.InstanceRef
		for _, instance := range instances {
			if status := next.Status(instance.Key); status == models.ChoreStatusCompleted {
				done = append(done, engine.instanceRef(instance, status))
			}
		}
		events = append(events, models.Event{
			Type:       models.EventAllChoresCompleted,
			OccurredAt: now,
			Instances:  done,
		})
	}

	return events
}

// InstanceStatus derives the current aggregate status of an instance.
func (engine *StatusEngine) InstanceStatus(instance *models.ChoreInstance, now time.Time) models.ChoreStatus {
	return engine.instanceStatus(instance, now.In(engine.location), nil)
}

func (engine *StatusEngine) instanceStatus(instance *models.ChoreInstance, now time.Time, warnings map[string]bool) models.ChoreStatus {
	chore, ok := engine.catalog.Chore(instance.Key.ChoreID)
	if !ok {
		return models.ChoreStatusInactive
	}
	if engine.requirementMet(instance, chore, warnings) {
		return models.ChoreStatusCompleted
	}

	// A reset after the window closed reads overdue, never inactive again.
	opens, closes := engine.span(instance, chore)
	switch {
	case now.Before(opens):
		return models.ChoreStatusInactive
	case now.Before(closes):
		return models.ChoreStatusPending
	}
	return models.ChoreStatusOverdue
}

// PersonStatus derives one assignee's view of an instance using that
// person's own window.
func (engine *StatusEngine) PersonStatus(instance *models.ChoreInstance, personID string, now time.Time) models.ChoreStatus {
	if instance.CompletedBy(personID) {
		return models.ChoreStatusCompleted
	}
	chore, ok := engine.catalog.Chore(instance.Key.ChoreID)
	if !ok {
		return models.ChoreStatusInactive
	}
	person, ok := engine.catalog.Person(personID)
	if !ok {
		person = models.Person{ID: personID, Windows: models.DefaultTimeWindows}
	}

	opens, closes := engine.personSpan(instance.Key.DueDate, person, chore.TimePeriod)
	now = now.In(engine.location)
	switch {
	case now.Before(opens):
		return models.ChoreStatusInactive
	case now.Before(closes):
		return models.ChoreStatusPending
	}
	return models.ChoreStatusOverdue
}

// span is the period during which the instance is active: from the earliest
// assignee window start to the latest assignee window end on the due date.
func (engine *StatusEngine) span(instance *models.ChoreInstance, chore models.Chore) (time.Time, time.Time) {
	date := instance.Key.DueDate
	if chore.TimePeriod == models.PeriodAllDay {
		return engine.personSpan(date, models.Person{}, chore.TimePeriod)
	}

	var earliest, latest models.ClockTime
	found := false
	for _, personID := range instance.AssignedPeople {
		person, ok := engine.catalog.Person(personID)
		if !ok {
			continue
		}
		window, _ := WindowFor(person, chore.TimePeriod)
		if !found || window.Start < earliest {
			earliest = window.Start
		}
		if !found || window.End > latest {
			latest = window.End
		}
		found = true
	}
	if !found {
		window, _ := WindowFor(models.Person{Windows: models.DefaultTimeWindows}, chore.TimePeriod)
		earliest, latest = window.Start, window.End
	}
	return engine.at(date, earliest), engine.at(date, latest)
}

func (engine *StatusEngine) personSpan(date models.Date, person models.Person, period models.Period) (time.Time, time.Time) {
	window, ok := WindowFor(person, period)
	if !ok {
		start := date.In(engine.location)
		return start, date.AddDays(1).In(engine.location)
	}
	return engine.at(date, window.Start), engine.at(date, window.End)
}

func (engine *StatusEngine) at(date models.Date, clock models.ClockTime) time.Time {
	return time.Date(date.Year, date.Month, date.Day, int(clock)/60, int(clock)%60, 0, 0, engine.location)
}

// requirementMet reports whether every required assignee has completed.
// Assignees whose person no longer exists count as satisfied. With no required
// assignees, any completion satisfies the chore.
func (engine *StatusEngine) requirementMet(instance *models.ChoreInstance, chore models.Chore, warnings map[string]bool) bool {
	required := make(map[string]bool)
	for _, personID := range chore.RequiredPeople() {
		required[personID] = true
	}

	requiredAssigned, existing := 0, 0
	requiredDone, anyCompleted := true, false
	for _, personID := range instance.AssignedPeople {
		if required[personID] {
			requiredAssigned++
		}
		if _, ok := engine.catalog.Person(personID); !ok {
			if warnings != nil {
				warnings[fmt.Sprintf("chore %s is assigned to unknown person %s", chore.ID, personID)] = true
			}
			continue
		}
		existing++
		completed := instance.CompletedBy(personID)
		anyCompleted = anyCompleted || completed
		if required[personID] && !completed {
			requiredDone = false
		}
	}

	if requiredAssigned > 0 {
		return requiredDone
	}
	return anyCompleted || existing == 0
}

func (engine *StatusEngine) instanceRef(instance *models.ChoreInstance, status models.ChoreStatus) models.InstanceRef {
	chore, _ := engine.catalog.Chore(instance.Key.ChoreID)
	return models.InstanceRef{
		InstanceID: instance.Key.String(),
		ChoreID:    instance.Key.ChoreID,
		ChoreName:  chore.Name,
		DueDate:    instance.Key.DueDate.String(),
		Status:     status,
	}
}
