package models

import "time"

type EventType string

const (
	EventChoreCompleted        EventType = "chorenet_chore_completed"
	EventAllChoresCompleted    EventType = "chorenet_all_chores_completed"
	EventChoresActivated       EventType = "chorenet_chores_activated"
	EventPersonChoresCompleted EventType = "chorenet_person_chores_completed"
)

type ChoreRef struct {
	ChoreID string `json:"chore_id"`
	Name    string `json:"name"`
}

type InstanceRef struct {
	InstanceID string      `json:"instance_id"`
	ChoreID    string      `json:"chore_id"`
	ChoreName  string      `json:"chore_name"`
	DueDate    string      `json:"due_date"`
	Status     ChoreStatus `json:"status"`
}

type PersonRef struct {
	PersonID string `json:"person_id"`
	Name     string `json:"person_name"`
}

// Event is a domain event produced by one evaluation. Automation, when set,
// names the host automation to trigger alongside the event.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	Chore      *ChoreRef
	Instance   *InstanceRef
	Instances  []InstanceRef
	Person     *PersonRef
	Automation string
}

// Payload renders the event data in the shape the host expects.
func (event Event) Payload() map[string]any {
	instances := event.Instances
	if instances == nil {
		instances = []InstanceRef{}
	}
	switch event.Type {
	case EventChoreCompleted:
		payload := map[string]any{}
		if event.Chore != nil {
			payload["chore"] = event.Chore
		}
		if event.Instance != nil {
			payload["instance"] = event.Instance
		}
		return payload
	case EventAllChoresCompleted:
		return map[string]any{"completed_chores": instances}
	case EventChoresActivated:
		return map[string]any{"chores": instances}
	case EventPersonChoresCompleted:
		payload := map[string]any{"completed_chores": instances}
		if event.Person != nil {
			payload["person_id"] = event.Person.PersonID
			payload["person_name"] = event.Person.Name
		}
		return payload
	}
	return map[string]any{}
}

// OutboxEvent is a persisted event awaiting delivery to the host.
type OutboxEvent struct {
	ID          string
	Type        EventType
	Payload     []byte
	Automation  string
	OccurredAt  time.Time
	Attempts    int
	LastError   string
	DeliveredAt *time.Time
}
