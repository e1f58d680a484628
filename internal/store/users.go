package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"faceattend/internal/enrollment"
	"faceattend/internal/facematch"
)

// UserRepository persists enrolled users.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a repo.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, role, image_descriptor, image, created_at`

// List returns users in insertion order.
func (r *UserRepository) List(ctx context.Context) ([]enrollment.User, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []enrollment.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Get returns a single user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (enrollment.User, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.User{}, enrollment.ErrNotFound
	}
	return u, err
}

// Add inserts a user, failing with ErrDuplicateID when the id exists.
func (r *UserRepository) Add(ctx context.Context, u enrollment.User) error {
	encoded, err := facematch.EncodeDescriptor(u.Descriptor)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (id, name, role, image_descriptor, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), u.ID, u.Name, u.Role, encoded, u.Image, u.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return enrollment.ErrDuplicateID
	}
	return nil
}

// Remove deletes a user; unknown ids are ignored.
func (r *UserRepository) Remove(ctx context.Context, id string) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	return err
}

// ReplaceDescriptor swaps the stored descriptor, and the image when one is given.
func (r *UserRepository) ReplaceDescriptor(ctx context.Context, id string, d facematch.Descriptor, image string) error {
	encoded, err := facematch.EncodeDescriptor(d)
	if err != nil {
		return err
	}
	var res sql.Result
	if image == "" {
		res, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`UPDATE users SET image_descriptor = ? WHERE id = ?`), encoded, id)
	} else {
		res, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`UPDATE users SET image_descriptor = ?, image = ? WHERE id = ?`), encoded, image, id)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (enrollment.User, error) {
	var (
		u          enrollment.User
		descriptor string
		createdAt  string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Role, &descriptor, &u.Image, &createdAt); err != nil {
		return enrollment.User{}, err
	}
	d, err := facematch.DecodeDescriptor(descriptor)
	if err != nil {
		return enrollment.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Descriptor = d
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return enrollment.User{}, fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	return u, nil
}
