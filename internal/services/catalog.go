package services

import (
	"sort"

	"github.com/trackzero/chorenet/internal/models"
)

// Catalog holds the configured people and chore definitions. The engine only
// reads it; the tracker and the household loader write to it.
type Catalog struct {
	people map[string]models.Person
	chores map[string]models.Chore
}

func NewCatalog() *Catalog {
	return &Catalog{
		people: make(map[string]models.Person),
		chores: make(map[string]models.Chore),
	}
}

func (catalog *Catalog) Person(id string) (models.Person, bool) {
	person, ok := catalog.people[id]
	return person, ok
}

func (catalog *Catalog) Chore(id string) (models.Chore, bool) {
	chore, ok := catalog.chores[id]
	return chore, ok
}

// People returns all people ordered by id.
func (catalog *Catalog) People() []models.Person {
	people := make([]models.Person, 0, len(catalog.people))
	for _, person := range catalog.people {
		people = append(people, person)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	return people
}

// Chores returns all chores ordered by id.
func (catalog *Catalog) Chores() []models.Chore {
	chores := make([]models.Chore, 0, len(catalog.chores))
	for _, chore := range catalog.chores {
		chores = append(chores, chore)
	}
	sort.Slice(chores, func(i, j int) bool { return chores[i].ID < chores[j].ID })
	return chores
}

func (catalog *Catalog) putPerson(person models.Person) {
	catalog.people[person.ID] = person
}

func (catalog *Catalog) removePerson(id string) bool {
	if _, ok := catalog.people[id]; !ok {
		return false
	}
	delete(catalog.people, id)
	return true
}

func (catalog *Catalog) putChore(chore models.Chore) {
	catalog.chores[chore.ID] = chore
}

func (catalog *Catalog) removeChore(id string) bool {
	if _, ok := catalog.chores[id]; !ok {
		return false
	}
	delete(catalog.chores, id)
	return true
}
