package attendance

import (
	"context"
	"errors"
	"time"
)

// DateLayout is the calendar date format used as the dedup key.
const DateLayout = "2006-01-02"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("attendance record not found")

// Record is a single check-in. Records are never modified once written.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	CheckInTime time.Time `json:"checkInTime"`
	Date        string    `json:"date"`
}

// Status is the outcome of a check-in attempt.
type Status int

const (
	Recorded Status = iota
	AlreadyPresentToday
)

func (s Status) String() string {
	if s == AlreadyPresentToday {
		return "already_present"
	}
	return "recorded"
}

// DayStatus marks a day in a summary history.
type DayStatus string

const (
	Present DayStatus = "present"
	Absent  DayStatus = "absent"
)

// Day is one entry of a summary history.
type Day struct {
	Date   string    `json:"date"`
	Status DayStatus `json:"status"`
}

// Summary is the presence of a user over a rolling window of days.
type Summary struct {
	TotalDays   int   `json:"totalDays"`
	PresentDays int   `json:"presentDays"`
	Percentage  int   `json:"percentage"`
	History     []Day `json:"history"`
}

// DailyStats is the dashboard view of one calendar day.
type DailyStats struct {
	Date     string `json:"date"`
	Enrolled int    `json:"totalUsers"`
	Present  int    `json:"presentCount"`
	Rate     int    `json:"attendanceRate"`
}

// Repository persists check-in records.
type Repository interface {
	// InsertIfAbsent writes rec unless a record for (rec.UserID, rec.Date) exists.
	InsertIfAbsent(ctx context.Context, rec Record) (bool, error)
	Get(ctx context.Context, id string) (Record, error)
	ListByDate(ctx context.Context, date string) ([]Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	List(ctx context.Context) ([]Record, error)
}
