package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"faceattend/internal/attendance"
)

// AttendanceRepository persists check-in records.
type AttendanceRepository struct {
	db *DB
}

// NewAttendanceRepository creates a repo.
func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, user_id, user_name, check_in_time, date`

// InsertIfAbsent writes rec unless (user_id, date) already has a record.
// The existence check and the insert run as one statement.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec attendance.Record) (bool, error) {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (id, user_id, user_name, check_in_time, date)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT)
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance WHERE user_id = ? AND date = ?
		)
	`), rec.ID, rec.UserID, rec.UserName, rec.CheckInTime.Format(time.RFC3339Nano), rec.Date, rec.UserID, rec.Date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns a single record by id.
func (r *AttendanceRepository) Get(ctx context.Context, id string) (attendance.Record, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, err
}

// ListByDate returns the records of one calendar day in check-in order.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]attendance.Record, error) {
	return r.query(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE date = ? ORDER BY seq`, date)
}

// ListByUser returns every record of a user in check-in order.
func (r *AttendanceRepository) ListByUser(ctx context.Context, userID string) ([]attendance.Record, error) {
	return r.query(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id = ? ORDER BY seq`, userID)
}

// List returns the whole log.
func (r *AttendanceRepository) List(ctx context.Context) ([]attendance.Record, error) {
	return r.query(ctx, `SELECT `+attendanceColumns+` FROM attendance ORDER BY seq`)
}

func (r *AttendanceRepository) query(ctx context.Context, query string, args ...any) ([]attendance.Record, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []attendance.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(s scanner) (attendance.Record, error) {
	var (
		rec     attendance.Record
		checkIn string
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.UserName, &checkIn, &rec.Date); err != nil {
		return attendance.Record{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, checkIn)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("record %s check_in_time: %w", rec.ID, err)
	}
	rec.CheckInTime = t
	return rec, nil
}
