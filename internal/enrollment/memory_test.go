package enrollment

import (
	"context"
	"errors"
	"testing"

	"faceattend/internal/facematch"
)

func TestMemoryRepository_AddListOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, id := range []string{"c", "a", "b"} {
		if err := repo.Add(ctx, User{ID: id, Name: id, Descriptor: facematch.Descriptor{1}}); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("List order = %v, want [c a b]", ids)
	}
}

func TestMemoryRepository_DuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	if err := repo.Add(ctx, User{ID: "a", Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Add(ctx, User{ID: "a", Name: "second"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	u, _ := repo.Get(ctx, "a")
	if u.Name != "first" {
		t.Errorf("duplicate add overwrote user: %q", u.Name)
	}
}

func TestMemoryRepository_Remove(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, id := range []string{"a", "b", "c"} {
		_ = repo.Add(ctx, User{ID: id})
	}

	if err := repo.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove(missing): %v", err)
	}
	if users, _ := repo.List(ctx); len(users) != 3 {
		t.Fatalf("removing unknown id changed store: %d users", len(users))
	}

	if err := repo.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove(b): %v", err)
	}
	users, _ := repo.List(ctx)
	if len(users) != 2 || users[0].ID != "a" || users[1].ID != "c" {
		t.Errorf("after remove = %+v", users)
	}
}

func TestMemoryRepository_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Add(ctx, User{ID: "a", Descriptor: facematch.Descriptor{1, 2}})

	users, _ := repo.List(ctx)
	users[0].Descriptor[0] = 99

	again, _ := repo.Get(ctx, "a")
	if again.Descriptor[0] != 1 {
		t.Errorf("mutating a snapshot changed the store: %v", again.Descriptor)
	}
}

func TestMemoryRepository_ReplaceDescriptor(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Add(ctx, User{ID: "a", Descriptor: facematch.Descriptor{1, 2}, Image: "old"})

	if err := repo.ReplaceDescriptor(ctx, "a", facematch.Descriptor{3, 4}, ""); err != nil {
		t.Fatalf("ReplaceDescriptor: %v", err)
	}
	u, _ := repo.Get(ctx, "a")
	if u.Descriptor[0] != 3 || u.Descriptor[1] != 4 || len(u.Descriptor) != 2 {
		t.Errorf("descriptor = %v, want [3 4]", u.Descriptor)
	}
	if u.Image != "old" {
		t.Errorf("empty image should keep reference image, got %q", u.Image)
	}

	if err := repo.ReplaceDescriptor(ctx, "missing", facematch.Descriptor{1, 1}, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
