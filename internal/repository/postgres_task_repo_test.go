package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
)

func TestPostgresTaskRepo_ImplementsInterface(t *testing.T) {
	var _ TaskRepository = (*PostgresTaskRepo)(nil)
}

func TestNullTime(t *testing.T) {
	if got := nullTime(&model.Task{}); got.Valid {
		t.Error("nil DueDate should map to NULL")
	}
	due := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := nullTime(&model.Task{DueDate: &due})
	if !got.Valid || !got.Time.Equal(due) {
		t.Errorf("nullTime() = %+v, want %v", got, due)
	}
}

// seedAccount はタスクの所有者となるアカウントを作成する。
func seedAccount(t *testing.T, repo *PostgresAccountRepo, subject string) string {
	t.Helper()
	account, identity := newAccountWithIdentity("google", subject, subject)
	if err := repo.CreateWithIdentity(context.Background(), account, identity); err != nil {
		t.Fatalf("アカウント作成に失敗: %v", err)
	}
	return account.ID
}

func newTask(ownerID, title string, createdAt time.Time) *model.Task {
	return &model.Task{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Priority:  model.TaskPriorityMedium,
		Status:    model.TaskStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestPostgresTaskRepo_CRUD(t *testing.T) {
	db := openTestDB(t)
	accounts := NewPostgresAccountRepo(db)
	repo := NewPostgresTaskRepo(db)
	ctx := context.Background()

	ownerID := seedAccount(t, accounts, "owner")
	base := time.Now().UTC().Truncate(time.Microsecond)

	older := newTask(ownerID, "older", base.Add(-time.Minute))
	due := base.Add(24 * time.Hour)
	newer := newTask(ownerID, "newer", base)
	newer.DueDate = &due
	for _, task := range []*model.Task{older, newer} {
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	t.Run("list_newest_first", func(t *testing.T) {
		tasks, err := repo.ListByOwner(ctx, ownerID, model.TaskFilterAll)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(tasks) != 2 {
			t.Fatalf("len = %d, want 2", len(tasks))
		}
		if tasks[0].ID != newer.ID || tasks[1].ID != older.ID {
			t.Errorf("unexpected order: %s, %s", tasks[0].Title, tasks[1].Title)
		}
		if tasks[0].DueDate == nil || !tasks[0].DueDate.Equal(due) {
			t.Errorf("DueDate = %v, want %v", tasks[0].DueDate, due)
		}
	})

	t.Run("update_and_filter", func(t *testing.T) {
		older.Completed = true
		older.Status = model.TaskStatusCompleted
		older.UpdatedAt = base.Add(time.Second)
		ok, err := repo.Update(ctx, older)
		if err != nil || !ok {
			t.Fatalf("Update = %v, %v", ok, err)
		}

		active, err := repo.ListByOwner(ctx, ownerID, model.TaskFilterActive)
		if err != nil {
			t.Fatalf("ListByOwner(active) failed: %v", err)
		}
		if len(active) != 1 || active[0].ID != newer.ID {
			t.Errorf("active = %v", active)
		}

		completed, err := repo.ListByOwner(ctx, ownerID, model.TaskFilterCompleted)
		if err != nil {
			t.Fatalf("ListByOwner(completed) failed: %v", err)
		}
		if len(completed) != 1 || completed[0].ID != older.ID {
			t.Errorf("completed = %v", completed)
		}
	})

	t.Run("delete", func(t *testing.T) {
		ok, err := repo.DeleteByIDAndOwner(ctx, newer.ID, ownerID)
		if err != nil || !ok {
			t.Fatalf("DeleteByIDAndOwner = %v, %v", ok, err)
		}
		got, err := repo.FindByIDAndOwner(ctx, newer.ID, ownerID)
		if err != nil {
			t.Fatalf("FindByIDAndOwner failed: %v", err)
		}
		if got != nil {
			t.Errorf("deleted task still found: %+v", got)
		}
	})
}

// 他アカウントのタスクは存在しないものとして扱われる。
func TestPostgresTaskRepo_OwnershipIsolation(t *testing.T) {
	db := openTestDB(t)
	accounts := NewPostgresAccountRepo(db)
	repo := NewPostgresTaskRepo(db)
	ctx := context.Background()

	ownerA := seedAccount(t, accounts, "a")
	ownerB := seedAccount(t, accounts, "b")

	task := newTask(ownerA, "A's task", time.Now().UTC())
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.FindByIDAndOwner(ctx, task.ID, ownerB)
	if err != nil {
		t.Fatalf("FindByIDAndOwner failed: %v", err)
	}
	if got != nil {
		t.Error("B must not see A's task")
	}

	list, err := repo.ListByOwner(ctx, ownerB, model.TaskFilterAll)
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("B's list should be empty, got %d", len(list))
	}

	hijack := *task
	hijack.OwnerID = ownerB
	hijack.Title = "hijacked"
	ok, err := repo.Update(ctx, &hijack)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ok {
		t.Error("B must not update A's task")
	}

	ok, err = repo.DeleteByIDAndOwner(ctx, task.ID, ownerB)
	if err != nil {
		t.Fatalf("DeleteByIDAndOwner failed: %v", err)
	}
	if ok {
		t.Error("B must not delete A's task")
	}

	still, err := repo.FindByIDAndOwner(ctx, task.ID, ownerA)
	if err != nil {
		t.Fatalf("FindByIDAndOwner failed: %v", err)
	}
	if still == nil || still.Title != "A's task" {
		t.Errorf("A's task was modified: %+v", still)
	}
}
