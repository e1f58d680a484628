package enrollment

import (
	"context"
	"sync"

	"faceattend/internal/facematch"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users []User
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) List(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, len(r.users))
	for i, u := range r.users {
		out[i] = u.Clone()
	}
	return out, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(id); i >= 0 {
		return r.users[i].Clone(), nil
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepository) Add(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(u.ID) >= 0 {
		return ErrDuplicateID
	}
	r.users = append(r.users, u.Clone())
	return nil
}

func (r *MemoryRepository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return nil
	}
	r.users = append(r.users[:i:i], r.users[i+1:]...)
	return nil
}

func (r *MemoryRepository) ReplaceDescriptor(ctx context.Context, id string, d facematch.Descriptor, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return ErrNotFound
	}
	r.users[i].Descriptor = d.Clone()
	if image != "" {
		r.users[i].Image = image
	}
	return nil
}

func (r *MemoryRepository) index(id string) int {
	for i, u := range r.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
