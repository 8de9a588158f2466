package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/testutil"
)

func TestCompletionLogRepository_AppendAndFindByInstanceID(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	repo := repository.NewCompletionLogRepository(db)
	ctx := context.Background()

	dueDate := models.NewDate(2025, time.August, 4)
	base := time.Date(2025, 8, 4, 18, 0, 0, 0, time.UTC)
	actions := []models.CompletionAction{models.CompletionActionComplete, models.CompletionActionReset}
	for i, action := range actions {
		created, err := repo.Append(ctx, models.CompletionLogEntry{
			InstanceID: "dishes_2025-08-04",
			ChoreID:    "dishes",
			DueDate:    dueDate,
			PersonID:   "alice",
			Action:     action,
			At:         base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("appending entry: %v", err)
		}
		if created.ID == "" {
			t.Fatal("expected non-empty ID")
		}
	}
	repo.Append(ctx, models.CompletionLogEntry{
		InstanceID: "trash_2025-08-04", ChoreID: "trash", DueDate: dueDate,
		PersonID: "bob", Action: models.CompletionActionComplete, At: base,
	})

	entries, err := repo.FindByInstanceID(ctx, "dishes_2025-08-04")
	if err != nil {
		t.Fatalf("finding entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != models.CompletionActionComplete || entries[1].Action != models.CompletionActionReset {
		t.Errorf("expected complete then reset, got %s then %s", entries[0].Action, entries[1].Action)
	}
	if entries[0].DueDate != dueDate {
		t.Errorf("expected due date %s, got %s", dueDate, entries[0].DueDate)
	}
}

func TestCompletionLogRepository_Recent(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	repo := repository.NewCompletionLogRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 8, 4, 7, 0, 0, 0, time.UTC)
	for i, personID := range []string{"alice", "bob", "charlie"} {
		repo.Append(ctx, models.CompletionLogEntry{
			InstanceID: "trash_2025-08-04", ChoreID: "trash", DueDate: models.DateOf(base),
			PersonID: personID, Action: models.CompletionActionComplete,
			At: base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("listing recent entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].PersonID != "charlie" || entries[1].PersonID != "bob" {
		t.Errorf("expected newest first [charlie bob], got [%s %s]", entries[0].PersonID, entries[1].PersonID)
	}
}
