package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trackzero/chorenet/internal/models"
)

// StoredInstance is a chore instance together with the status recorded by the
// evaluation that last saved it.
type StoredInstance struct {
	Instance models.ChoreInstance
	Status   models.ChoreStatus
}

type InstanceRepository interface {
	FindAll(ctx context.Context) ([]StoredInstance, error)
	ReplaceAll(ctx context.Context, instances []StoredInstance) error
}

type SQLiteInstanceRepository struct {
	database *sql.DB
}

func NewInstanceRepository(database *sql.DB) *SQLiteInstanceRepository {
	return &SQLiteInstanceRepository{database: database}
}

func (repository *SQLiteInstanceRepository) FindAll(ctx context.Context) ([]StoredInstance, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, chore_id, due_date, status, created_at
		FROM chore_instances ORDER BY due_date, chore_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("finding instances: %w", err)
	}
	defer rows.Close()

	var stored []StoredInstance
	index := make(map[string]int)
	for rows.Next() {
		var id string
		var entry StoredInstance
		entry.Instance.Completions = make(map[string]models.Completion)
		if err := rows.Scan(&id, &entry.Instance.Key.ChoreID, &entry.Instance.Key.DueDate,
			&entry.Status, &entry.Instance.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning instance: %w", err)
		}
		index[id] = len(stored)
		stored = append(stored, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	peopleRows, err := repository.database.QueryContext(ctx,
		`SELECT instance_id, person_id, completed, completed_at
		FROM instance_people ORDER BY instance_id, position`,
	)
	if err != nil {
		return nil, fmt.Errorf("finding instance people: %w", err)
	}
	defer peopleRows.Close()

	for peopleRows.Next() {
		var instanceID, personID string
		var completion models.Completion
		if err := peopleRows.Scan(&instanceID, &personID, &completion.Completed, &completion.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning instance person: %w", err)
		}
		position, ok := index[instanceID]
		if !ok {
			continue
		}
		instance := &stored[position].Instance
		instance.AssignedPeople = append(instance.AssignedPeople, personID)
		if completion.Completed || completion.CompletedAt != nil {
			instance.Completions[personID] = completion
		}
	}
	return stored, peopleRows.Err()
}

// ReplaceAll overwrites the persisted instance set with the given one.
func (repository *SQLiteInstanceRepository) ReplaceAll(ctx context.Context, instances []StoredInstance) error {
	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	if _, err := transaction.ExecContext(ctx, "DELETE FROM instance_people"); err != nil {
		return fmt.Errorf("clearing instance people: %w", err)
	}
	if _, err := transaction.ExecContext(ctx, "DELETE FROM chore_instances"); err != nil {
		return fmt.Errorf("clearing instances: %w", err)
	}

	for _, entry := range instances {
		instance := entry.Instance
		id := instance.Key.String()
		createdAt := instance.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := transaction.ExecContext(ctx,
			`INSERT INTO chore_instances (id, chore_id, due_date, status, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, instance.Key.ChoreID, instance.Key.DueDate, entry.Status, createdAt,
		); err != nil {
			return fmt.Errorf("inserting instance %s: %w", id, err)
		}

		for position, personID := range instance.AssignedPeople {
			completion := instance.Completions[personID]
			if _, err := transaction.ExecContext(ctx,
				`INSERT INTO instance_people (instance_id, person_id, position, completed, completed_at)
				VALUES (?, ?, ?, ?, ?)`,
				id, personID, position, completion.Completed, completion.CompletedAt,
			); err != nil {
				return fmt.Errorf("inserting instance person: %w", err)
			}
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("committing instances: %w", err)
	}
	return nil
}
