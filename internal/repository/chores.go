package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trackzero/chorenet/internal/models"
)

type ChoreRepository interface {
	FindByID(ctx context.Context, id string) (models.Chore, error)
	FindAll(ctx context.Context) ([]models.Chore, error)
	Upsert(ctx context.Context, chore models.Chore) error
	Delete(ctx context.Context, id string) error
}

type SQLiteChoreRepository struct {
	database *sql.DB
}

func NewChoreRepository(database *sql.DB) *SQLiteChoreRepository {
	return &SQLiteChoreRepository{database: database}
}

const choreColumns = `id, name, description, time_period,
	recurrence_type, weekday, day_of_month, once_date,
	required, enabled, completion_automation, created_at`

func scanChore(row rowScanner) (models.Chore, error) {
	var chore models.Chore
	var onceDate sql.NullString
	err := row.Scan(
		&chore.ID, &chore.Name, &chore.Description, &chore.TimePeriod,
		&chore.Recurrence.Type, &chore.Recurrence.Weekday, &chore.Recurrence.DayOfMonth, &onceDate,
		&chore.Required, &chore.Enabled, &chore.CompletionAutomation, &chore.CreatedAt,
	)
	if err != nil {
		return models.Chore{}, err
	}
	if onceDate.Valid {
		date, err := models.ParseDate(onceDate.String)
		if err != nil {
			return models.Chore{}, err
		}
		chore.Recurrence.Date = &date
	}
	return chore, nil
}

func (repository *SQLiteChoreRepository) FindByID(ctx context.Context, id string) (models.Chore, error) {
	chore, err := scanChore(repository.database.QueryRowContext(ctx,
		"SELECT "+choreColumns+" FROM chores WHERE id = ?", id,
	))
	if err != nil {
		return models.Chore{}, fmt.Errorf("finding chore by id: %w", err)
	}

	assignees, err := repository.assignees(ctx)
	if err != nil {
		return models.Chore{}, err
	}
	assignees.apply(&chore)
	return chore, nil
}

func (repository *SQLiteChoreRepository) FindAll(ctx context.Context) ([]models.Chore, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT "+choreColumns+" FROM chores ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("finding chores: %w", err)
	}
	defer rows.Close()

	var chores []models.Chore
	for rows.Next() {
		chore, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chore: %w", err)
		}
		chores = append(chores, chore)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	assignees, err := repository.assignees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range chores {
		assignees.apply(&chores[i])
	}
	return chores, nil
}

// Upsert writes the chore and replaces its assignee rows in one transaction.
func (repository *SQLiteChoreRepository) Upsert(ctx context.Context, chore models.Chore) error {
	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	var onceDate any
	if chore.Recurrence.Date != nil {
		onceDate = chore.Recurrence.Date.String()
	}

	_, err = transaction.ExecContext(ctx,
		`INSERT INTO chores (id, name, description, time_period,
			recurrence_type, weekday, day_of_month, once_date,
			required, enabled, completion_automation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			time_period = excluded.time_period,
			recurrence_type = excluded.recurrence_type, weekday = excluded.weekday,
			day_of_month = excluded.day_of_month, once_date = excluded.once_date,
			required = excluded.required, enabled = excluded.enabled,
			completion_automation = excluded.completion_automation`,
		chore.ID, chore.Name, chore.Description, chore.TimePeriod,
		chore.Recurrence.Type, chore.Recurrence.Weekday, chore.Recurrence.DayOfMonth, onceDate,
		chore.Required, chore.Enabled, chore.CompletionAutomation, chore.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving chore %s: %w", chore.ID, err)
	}

	if _, err := transaction.ExecContext(ctx, "DELETE FROM chore_people WHERE chore_id = ?", chore.ID); err != nil {
		return fmt.Errorf("clearing chore assignees: %w", err)
	}

	optional := make(map[string]bool, len(chore.OptionalPeople))
	for _, personID := range chore.OptionalPeople {
		optional[personID] = true
	}
	for position, personID := range chore.AssignedPeople {
		if _, err := transaction.ExecContext(ctx,
			"INSERT INTO chore_people (chore_id, person_id, position, optional) VALUES (?, ?, ?, ?)",
			chore.ID, personID, position, optional[personID],
		); err != nil {
			return fmt.Errorf("inserting chore assignee: %w", err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("committing chore %s: %w", chore.ID, err)
	}
	return nil
}

func (repository *SQLiteChoreRepository) Delete(ctx context.Context, id string) error {
	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	if _, err := transaction.ExecContext(ctx, "DELETE FROM chore_people WHERE chore_id = ?", id); err != nil {
		return fmt.Errorf("deleting chore assignees: %w", err)
	}
	if _, err := transaction.ExecContext(ctx, "DELETE FROM chores WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting chore: %w", err)
	}
	return transaction.Commit()
}

type choreAssignees struct {
	assigned map[string][]string
	optional map[string][]string
}

func (assignees choreAssignees) apply(chore *models.Chore) {
	chore.AssignedPeople = assignees.assigned[chore.ID]
	chore.OptionalPeople = assignees.optional[chore.ID]
}

func (repository *SQLiteChoreRepository) assignees(ctx context.Context) (choreAssignees, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT chore_id, person_id, optional FROM chore_people ORDER BY chore_id, position",
	)
	if err != nil {
		return choreAssignees{}, fmt.Errorf("finding chore assignees: %w", err)
	}
	defer rows.Close()

	assignees := choreAssignees{
		assigned: make(map[string][]string),
		optional: make(map[string][]string),
	}
	for rows.Next() {
		var choreID, personID string
		var optional bool
		if err := rows.Scan(&choreID, &personID, &optional); err != nil {
			return choreAssignees{}, fmt.Errorf("scanning chore assignee: %w", err)
		}
		assignees.assigned[choreID] = append(assignees.assigned[choreID], personID)
		if optional {
			assignees.optional[choreID] = append(assignees.optional[choreID], personID)
		}
	}
	return assignees, rows.Err()
}
