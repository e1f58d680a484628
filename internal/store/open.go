package store

import (
	"context"
	"fmt"

	"faceattend/internal/attendance"
	"faceattend/internal/enrollment"
)

// Repositories bundles the persistence used by the services.
type Repositories struct {
	Users      enrollment.Repository
	Attendance attendance.Repository
	// DB is nil for the memory backend.
	DB *DB
}

// Open selects a backend: "sqlite" (dsn is a file path), "postgres" (dsn is a
// connection URL) or "memory".
func Open(ctx context.Context, backend, dsn string) (*Repositories, error) {
	if backend == "memory" {
		return &Repositories{
			Users:      enrollment.NewMemoryRepository(),
			Attendance: attendance.NewMemoryRepository(),
		}, nil
	}
	dialect := Dialect(backend)
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}
	db, err := NewDB(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Users:      NewUserRepository(db),
		Attendance: NewAttendanceRepository(db),
		DB:         db,
	}, nil
}

// Healthy reports database reachability; the memory backend is always healthy.
func (r *Repositories) Healthy(ctx context.Context) bool {
	if r.DB == nil {
		return true
	}
	return r.DB.Healthy(ctx)
}

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
