package attendance

import (
	"context"
	"sync"
)

// MemoryRepository keeps records in process memory in insertion order.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.UserID == rec.UserID && existing.Date == rec.Date {
			return false, nil
		}
	}
	r.records = append(r.records, rec)
	return true, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *MemoryRepository) ListByDate(ctx context.Context, date string) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.Date == date }), nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.UserID == userID }), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]Record, error) {
	return r.filter(func(Record) bool { return true }), nil
}

func (r *MemoryRepository) filter(keep func(Record) bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Record{}
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
