package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jmcleod/liftlog/storage"
	"github.com/jmcleod/liftlog/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository()
	})
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	desc := "original"
	u := &storage.User{UUID: "u-1", Email: "copy@example.com", PasswordHash: "h", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	w := &storage.Workout{UUID: "w-1", UserID: u.ID, Name: "A", Description: &desc}
	if err := repo.CreateWorkout(ctx, w); err != nil {
		t.Fatalf("CreateWorkout failed: %v", err)
	}

	desc = "mutated by caller"
	got, err := repo.Workout(ctx, u.ID, "w-1")
	if err != nil {
		t.Fatalf("Workout failed: %v", err)
	}
	if *got.Description != "original" {
		t.Errorf("stored description changed through caller pointer: %q", *got.Description)
	}

	*got.Description = "mutated via result"
	again, _ := repo.Workout(ctx, u.ID, "w-1")
	if *again.Description != "original" {
		t.Errorf("stored description changed through returned pointer: %q", *again.Description)
	}
}

func TestAtomicSeesOwnWrites(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now()

	err := repo.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.CreateTempSession(ctx, &storage.TempSession{SessionID: "s", CSRFToken: "c", ExpiresAt: now.Add(time.Minute)}); err != nil {
			return err
		}
		_, err := tx.FindTempSession(ctx, "s", "c", now)
		return err
	})
	if err != nil {
		t.Fatalf("Atomic failed: %v", err)
	}
}
