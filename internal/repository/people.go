package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trackzero/chorenet/internal/models"
)

type PersonRepository interface {
	FindByID(ctx context.Context, id string) (models.Person, error)
	FindAll(ctx context.Context) ([]models.Person, error)
	Upsert(ctx context.Context, person models.Person) error
	Delete(ctx context.Context, id string) error
}

type SQLitePersonRepository struct {
	database *sql.DB
}

func NewPersonRepository(database *sql.DB) *SQLitePersonRepository {
	return &SQLitePersonRepository{database: database}
}

const personColumns = `id, name, morning_start, morning_end, afternoon_start, afternoon_end,
	evening_start, evening_end, completion_automation`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (models.Person, error) {
	var person models.Person
	err := row.Scan(&person.ID, &person.Name,
		&person.Windows.Morning.Start, &person.Windows.Morning.End,
		&person.Windows.Afternoon.Start, &person.Windows.Afternoon.End,
		&person.Windows.Evening.Start, &person.Windows.Evening.End,
		&person.CompletionAutomation,
	)
	return person, err
}

func (repository *SQLitePersonRepository) FindByID(ctx context.Context, id string) (models.Person, error) {
	person, err := scanPerson(repository.database.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM people WHERE id = ?", id,
	))
	if err != nil {
		return models.Person{}, fmt.Errorf("finding person by id: %w", err)
	}
	return person, nil
}

func (repository *SQLitePersonRepository) FindAll(ctx context.Context) ([]models.Person, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT "+personColumns+" FROM people ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("finding all people: %w", err)
	}
	defer rows.Close()

	var people []models.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		people = append(people, person)
	}
	return people, rows.Err()
}

func (repository *SQLitePersonRepository) Upsert(ctx context.Context, person models.Person) error {
	windows := person.Windows
	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO people (id, name, morning_start, morning_end, afternoon_start, afternoon_end,
			evening_start, evening_end, completion_automation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			morning_start = excluded.morning_start, morning_end = excluded.morning_end,
			afternoon_start = excluded.afternoon_start, afternoon_end = excluded.afternoon_end,
			evening_start = excluded.evening_start, evening_end = excluded.evening_end,
			completion_automation = excluded.completion_automation,
			updated_at = CURRENT_TIMESTAMP`,
		person.ID, person.Name,
		windows.Morning.Start, windows.Morning.End,
		windows.Afternoon.Start, windows.Afternoon.End,
		windows.Evening.Start, windows.Evening.End,
		person.CompletionAutomation,
	)
	if err != nil {
		return fmt.Errorf("saving person %s: %w", person.ID, err)
	}
	return nil
}

func (repository *SQLitePersonRepository) Delete(ctx context.Context, id string) error {
	_, err := repository.database.ExecContext(ctx, "DELETE FROM people WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	return nil
}
