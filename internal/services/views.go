package services

import (
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

type ChoreDetail struct {
	InstanceID   string             `json:"instance_id"`
	ChoreID      string             `json:"chore_id"`
	Name         string             `json:"name"`
	DueDate      string             `json:"due_date"`
	Status       models.ChoreStatus `json:"status"`
	PersonStatus models.ChoreStatus `json:"person_status"`
	TimePeriod   models.Period      `json:"time_period"`
	Required     bool               `json:"required"`
}

type PersonView struct {
	PersonID           string        `json:"person_id"`
	PersonName         string        `json:"person_name"`
	ActiveCount        int           `json:"active_count"`
	ActiveChores       []ChoreDetail `json:"active_chores"`
	OverdueChores      []ChoreDetail `json:"overdue_chores"`
	OverdueCount       int           `json:"overdue_count"`
	RequiredCount      int           `json:"required_count"`
	OptionalCount      int           `json:"optional_count"`
	HasActiveChores    bool          `json:"has_active_chores"`
	AllChoresCompleted bool          `json:"all_chores_completed"`
}

type ChoreView struct {
	models.Chore
	Status      models.ChoreStatus           `json:"status"`
	InstanceID  string                       `json:"instance_id,omitempty"`
	DueDate     string                       `json:"due_date,omitempty"`
	Completions map[string]models.Completion `json:"completions,omitempty"`
	NextDueDate string                       `json:"next_due_date,omitempty"`
}

type InstancePersonView struct {
	PersonID    string             `json:"person_id"`
	Known       bool               `json:"known"`
	Required    bool               `json:"required"`
	Completed   bool               `json:"completed"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Status      models.ChoreStatus `json:"status"`
}

type InstanceView struct {
	InstanceID string               `json:"instance_id"`
	ChoreID    string               `json:"chore_id"`
	ChoreName  string               `json:"chore_name"`
	DueDate    string               `json:"due_date"`
	Status     models.ChoreStatus   `json:"status"`
	TimePeriod models.Period        `json:"time_period"`
	OpensAt    time.Time            `json:"opens_at"`
	ClosesAt   time.Time            `json:"closes_at"`
	People     []InstancePersonView `json:"people"`
}

type Summary struct {
	ActiveCount        int       `json:"active_count"`
	PendingCount       int       `json:"pending_count"`
	OverdueCount       int       `json:"overdue_count"`
	AllChoresCompleted bool      `json:"all_chores_completed"`
	HasOverdueChores   bool      `json:"has_overdue_chores"`
	TotalPeople        int       `json:"total_people"`
	TotalChores        int       `json:"total_chores"`
	LastEvaluated      time.Time `json:"last_evaluated"`
	Warnings           []string  `json:"warnings"`
}

// viewBuilder derives read-only views from the last evaluated snapshot.
type viewBuilder struct {
	catalog  *Catalog
	store    *InstanceStore
	engine   *StatusEngine
	snapshot Snapshot
	now      time.Time
}

func newViewBuilder(catalog *Catalog, store *InstanceStore, engine *StatusEngine, now time.Time) viewBuilder {
	return viewBuilder{
		catalog:  catalog,
		store:    store,
		engine:   engine,
		snapshot: engine.Snapshot(),
		now:      now,
	}
}

func (builder viewBuilder) summary() Summary {
	summary := Summary{
		AllChoresCompleted: builder.snapshot.AllCompleted,
		TotalPeople:        len(builder.catalog.People()),
		TotalChores:        len(builder.catalog.Chores()),
		LastEvaluated:      builder.engine.lastEvaluated,
		Warnings:           builder.engine.Warnings(),
	}
	for _, instance := range builder.store.All() {
		switch builder.snapshot.Status(instance.Key) {
		case models.ChoreStatusPending:
			summary.PendingCount++
		case models.ChoreStatusOverdue:
			summary.OverdueCount++
		}
	}
	summary.ActiveCount = summary.PendingCount + summary.OverdueCount
	summary.HasOverdueChores = summary.OverdueCount > 0
	return summary
}

func (builder viewBuilder) person(person models.Person) PersonView {
	view := PersonView{
		PersonID:           person.ID,
		PersonName:         person.Name,
		ActiveChores:       []ChoreDetail{},
		OverdueChores:      []ChoreDetail{},
		AllChoresCompleted: builder.snapshot.PeopleDone[person.ID],
	}

	for _, instance := range builder.store.All() {
		status := builder.snapshot.Status(instance.Key)
		if !status.Active() || !instance.IsAssigned(person.ID) || instance.CompletedBy(person.ID) {
			continue
		}
		chore, _ := builder.catalog.Chore(instance.Key.ChoreID)
		detail := ChoreDetail{
			InstanceID:   instance.Key.String(),
			ChoreID:      chore.ID,
			Name:         chore.Name,
			DueDate:      instance.Key.DueDate.String(),
			Status:       status,
			PersonStatus: builder.engine.PersonStatus(instance, person.ID, builder.now),
			TimePeriod:   chore.TimePeriod,
			Required:     isRequiredFor(chore, person.ID),
		}

		view.ActiveCount++
		if detail.Required {
			view.RequiredCount++
		} else {
			view.OptionalCount++
		}
		if status == models.ChoreStatusOverdue {
			view.OverdueChores = append(view.OverdueChores, detail)
		} else {
			view.ActiveChores = append(view.ActiveChores, detail)
		}
	}
	view.OverdueCount = len(view.OverdueChores)
	view.HasActiveChores = view.ActiveCount > 0
	return view
}

func (builder viewBuilder) chore(chore models.Chore) ChoreView {
	view := ChoreView{Chore: chore, Status: models.ChoreStatusInactive}

	instances := builder.store.ForChore(chore.ID)
	if len(instances) > 0 {
		latest := instances[len(instances)-1]
		view.Status = builder.snapshot.Status(latest.Key)
		view.InstanceID = latest.Key.String()
		view.DueDate = latest.Key.DueDate.String()
		view.Completions = latest.Completions
	}

	today := models.DateOf(builder.now.In(builder.engine.Location()))
	if next, ok := NextDueDate(chore.Recurrence, today); ok {
		view.NextDueDate = next.String()
	}
	return view
}

func (builder viewBuilder) instance(instance *models.ChoreInstance) InstanceView {
	chore, choreKnown := builder.catalog.Chore(instance.Key.ChoreID)
	view := InstanceView{
		InstanceID: instance.Key.String(),
		ChoreID:    instance.Key.ChoreID,
		ChoreName:  chore.Name,
		DueDate:    instance.Key.DueDate.String(),
		Status:     builder.snapshot.Status(instance.Key),
		TimePeriod: chore.TimePeriod,
		People:     make([]InstancePersonView, 0, len(instance.AssignedPeople)),
	}
	if choreKnown {
		view.OpensAt, view.ClosesAt = builder.engine.span(instance, chore)
	}
	for _, personID := range instance.AssignedPeople {
		_, known := builder.catalog.Person(personID)
		completion := instance.Completions[personID]
		view.People = append(view.People, InstancePersonView{
			PersonID:    personID,
			Known:       known,
			Required:    isRequiredFor(chore, personID),
			Completed:   completion.Completed,
			CompletedAt: completion.CompletedAt,
			Status:      builder.engine.PersonStatus(instance, personID, builder.now),
		})
	}
	return view
}

func isRequiredFor(chore models.Chore, personID string) bool {
	for _, id := range chore.RequiredPeople() {
		if id == personID {
			return true
		}
	}
	return false
}
