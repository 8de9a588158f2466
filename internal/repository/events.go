package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trackzero/chorenet/internal/models"
)

// OutboxMaxAttempts is the number of failed deliveries after which an event
// is left in the outbox and no longer offered for delivery.
const OutboxMaxAttempts = 10

// OutboxRepository persists domain events until the notifier has delivered
// them to the host.
type OutboxRepository interface {
	Append(ctx context.Context, events []models.OutboxEvent) error
	FindUndelivered(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	DeleteDeliveredBefore(ctx context.Context, before time.Time) error
}

type SQLiteOutboxRepository struct {
	database *sql.DB
}

func NewOutboxRepository(database *sql.DB) *SQLiteOutboxRepository {
	return &SQLiteOutboxRepository{database: database}
}

// Append stores events in order within one transaction.
func (repository *SQLiteOutboxRepository) Append(ctx context.Context, events []models.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		if _, err := transaction.ExecContext(ctx,
			`INSERT INTO outbox_events (id, type, payload, automation, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,
			event.ID, event.Type, string(event.Payload), event.Automation, event.OccurredAt,
		); err != nil {
			return fmt.Errorf("appending outbox event: %w", err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("committing outbox events: %w", err)
	}
	return nil
}

// FindUndelivered returns pending events oldest first, skipping events that
// have failed OutboxMaxAttempts times.
func (repository *SQLiteOutboxRepository) FindUndelivered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, type, payload, automation, occurred_at, attempts, last_error, delivered_at
		FROM outbox_events WHERE delivered_at IS NULL AND attempts < ?
		ORDER BY rowid LIMIT ?`, OutboxMaxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding undelivered events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var event models.OutboxEvent
		var payload string
		if err := rows.Scan(&event.ID, &event.Type, &payload, &event.Automation,
			&event.OccurredAt, &event.Attempts, &event.LastError, &event.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		event.Payload = []byte(payload)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (repository *SQLiteOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE outbox_events SET delivered_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("marking event delivered: %w", err)
	}
	return nil
}

func (repository *SQLiteOutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?",
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("marking event failed: %w", err)
	}
	return nil
}

func (repository *SQLiteOutboxRepository) DeleteDeliveredBefore(ctx context.Context, before time.Time) error {
	_, err := repository.database.ExecContext(ctx,
		"DELETE FROM outbox_events WHERE delivered_at IS NOT NULL AND delivered_at < ?", before)
	if err != nil {
		return fmt.Errorf("deleting delivered events: %w", err)
	}
	return nil
}
