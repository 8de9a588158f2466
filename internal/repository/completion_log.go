package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trackzero/chorenet/internal/models"
)

type CompletionLogRepository interface {
	Append(ctx context.Context, entry models.CompletionLogEntry) (models.CompletionLogEntry, error)
	FindByInstanceID(ctx context.Context, instanceID string) ([]models.CompletionLogEntry, error)
	Recent(ctx context.Context, limit int) ([]models.CompletionLogEntry, error)
}

type SQLiteCompletionLogRepository struct {
	database *sql.DB
}

func NewCompletionLogRepository(database *sql.DB) *SQLiteCompletionLogRepository {
	return &SQLiteCompletionLogRepository{database: database}
}

func (repository *SQLiteCompletionLogRepository) Append(ctx context.Context, entry models.CompletionLogEntry) (models.CompletionLogEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO completion_log (id, instance_id, chore_id, due_date, person_id, action, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.InstanceID, entry.ChoreID, entry.DueDate, entry.PersonID, entry.Action, entry.At,
	)
	if err != nil {
		return models.CompletionLogEntry{}, fmt.Errorf("appending completion log entry: %w", err)
	}
	return entry, nil
}

func (repository *SQLiteCompletionLogRepository) FindByInstanceID(ctx context.Context, instanceID string) ([]models.CompletionLogEntry, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, instance_id, chore_id, due_date, person_id, action, at
		FROM completion_log WHERE instance_id = ? ORDER BY at, rowid`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding completion log by instance: %w", err)
	}
	return scanCompletionLog(rows)
}

func (repository *SQLiteCompletionLogRepository) Recent(ctx context.Context, limit int) ([]models.CompletionLogEntry, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, instance_id, chore_id, due_date, person_id, action, at
		FROM completion_log ORDER BY at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding recent completion log: %w", err)
	}
	return scanCompletionLog(rows)
}

func scanCompletionLog(rows *sql.Rows) ([]models.CompletionLogEntry, error) {
	defer rows.Close()

	var entries []models.CompletionLogEntry
	for rows.Next() {
		var entry models.CompletionLogEntry
		if err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.ChoreID, &entry.DueDate,
			&entry.PersonID, &entry.Action, &entry.At); err != nil {
			return nil, fmt.Errorf("scanning completion log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
