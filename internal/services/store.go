package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

// InstanceStore owns every chore instance. It is not safe for concurrent use;
// ChoreService serializes access.
type InstanceStore struct {
	instances map[models.InstanceKey]*models.ChoreInstance
	version   uint64
}

func NewInstanceStore() *InstanceStore {
	return &InstanceStore{instances: make(map[models.InstanceKey]*models.ChoreInstance)}
}

// Version increases on every mutation.
func (store *InstanceStore) Version() uint64 {
	return store.version
}

// GetOrCreate returns the instance of chore on date, creating it when absent.
// The boolean reports whether it was created.
func (store *InstanceStore) GetOrCreate(chore models.Chore, date models.Date, now time.Time) (*models.ChoreInstance, bool) {
	key := models.InstanceKey{ChoreID: chore.ID, DueDate: date}
	if instance, ok := store.instances[key]; ok {
		return instance, false
	}

	instance := &models.ChoreInstance{
		Key:            key,
		AssignedPeople: append([]string(nil), chore.AssignedPeople...),
		Completions:    make(map[string]models.Completion),
		CreatedAt:      now,
	}
	store.instances[key] = instance
	store.version++
	return instance, true
}

func (store *InstanceStore) Get(key models.InstanceKey) (*models.ChoreInstance, bool) {
	instance, ok := store.instances[key]
	return instance, ok
}

// SetPersonCompleted records or clears one person's completion. It reports
// whether anything changed; repeating a call is a no-op.
func (store *InstanceStore) SetPersonCompleted(key models.InstanceKey, personID string, completed bool, when time.Time) (bool, error) {
	instance, ok := store.instances[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownInstance, key)
	}
	if !instance.IsAssigned(personID) {
		return false, fmt.Errorf("%w: %s on %s", ErrNotAssigned, personID, key)
	}

	current := instance.Completions[personID]
	if current.Completed == completed {
		return false, nil
	}

	if completed {
		at := when
		instance.Completions[personID] = models.Completion{Completed: true, CompletedAt: &at}
	} else {
		instance.Completions[personID] = models.Completion{Completed: false}
	}
	store.version++
	return true, nil
}

// restoreCompletion puts back a completion captured before a command whose
// log entry could not be written.
func (store *InstanceStore) restoreCompletion(key models.InstanceKey, personID string, completion models.Completion, existed bool) {
	instance, ok := store.instances[key]
	if !ok {
		return
	}
	if existed {
		instance.Completions[personID] = completion
	} else {
		delete(instance.Completions, personID)
	}
	store.version++
}

// Retire removes every instance of a chore and returns how many were removed.
func (store *InstanceStore) Retire(choreID string) int {
	removed := 0
	for key := range store.instances {
		if key.ChoreID == choreID {
			delete(store.instances, key)
			removed++
		}
	}
	if removed > 0 {
		store.version++
	}
	return removed
}

// Supersede retires earlier instances of the same chore that the keep
// function rejects. Instances on or after key's date are untouched.
func (store *InstanceStore) Supersede(key models.InstanceKey, keep func(*models.ChoreInstance) bool) []models.InstanceKey {
	var retired []models.InstanceKey
	for existingKey, instance := range store.instances {
		if existingKey.ChoreID != key.ChoreID || !existingKey.DueDate.Before(key.DueDate) {
			continue
		}
		if keep(instance) {
			continue
		}
		delete(store.instances, existingKey)
		retired = append(retired, existingKey)
	}
	if len(retired) > 0 {
		store.version++
	}
	sortKeys(retired)
	return retired
}

// ForChore returns a chore's instances ordered by due date.
func (store *InstanceStore) ForChore(choreID string) []*models.ChoreInstance {
	var instances []*models.ChoreInstance
	for key, instance := range store.instances {
		if key.ChoreID == choreID {
			instances = append(instances, instance)
		}
	}
	sortInstances(instances)
	return instances
}

// All returns every instance ordered by due date, then chore id.
func (store *InstanceStore) All() []*models.ChoreInstance {
	instances := make([]*models.ChoreInstance, 0, len(store.instances))
	for _, instance := range store.instances {
		instances = append(instances, instance)
	}
	sortInstances(instances)
	return instances
}

func (store *InstanceStore) Len() int {
	return len(store.instances)
}

// Restore replaces the store contents, used when loading persisted state.
func (store *InstanceStore) Restore(instances []models.ChoreInstance) {
	store.instances = make(map[models.InstanceKey]*models.ChoreInstance, len(instances))
	for i := range instances {
		instance := instances[i]
		if instance.Completions == nil {
			instance.Completions = make(map[string]models.Completion)
		}
		store.instances[instance.Key] = &instance
	}
	store.version++
}

func sortInstances(instances []*models.ChoreInstance) {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Key.Less(instances[j].Key)
	})
}

func sortKeys(keys []models.InstanceKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})
}
