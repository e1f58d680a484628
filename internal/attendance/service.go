package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/metrics"
)

// Ledger coordinates check-ins and enforces one record per user per calendar day.
type Ledger struct {
	repo  Repository
	loc   *time.Location
	now   func() time.Time
	newID func() string
	mu    sync.Mutex
}

// NewLedger creates a ledger. Calendar dates are computed in loc (time.Local when nil).
func NewLedger(repo Repository, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{repo: repo, loc: loc, now: time.Now, newID: uuid.NewString}
}

// Location returns the time zone used for calendar dates.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// DateOf returns the local calendar date of ts.
func (l *Ledger) DateOf(ts time.Time) string {
	return ts.In(l.loc).Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD string in the ledger's location.
func (l *Ledger) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, l.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// RecordCheckIn writes a record for userID unless one already exists for the same day.
// On AlreadyPresentToday the existing record is returned and nothing is written.
func (l *Ledger) RecordCheckIn(ctx context.Context, userID, userName string, ts time.Time) (Record, Status, error) {
	if userID == "" {
		return Record{}, Recorded, errors.New("user id required")
	}
	if ts.IsZero() {
		ts = l.now()
	}

	rec := Record{
		ID:          l.newID(),
		UserID:      userID,
		UserName:    userName,
		CheckInTime: ts,
		Date:        l.DateOf(ts),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inserted, err := l.repo.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Record{}, Recorded, fmt.Errorf("record check-in: %w", err)
	}
	if inserted {
		metrics.CheckIns.WithLabelValues(Recorded.String()).Inc()
		return rec, Recorded, nil
	}

	metrics.CheckIns.WithLabelValues(AlreadyPresentToday.String()).Inc()
	existing, err := l.findForDate(ctx, userID, rec.Date)
	if err != nil {
		return Record{}, AlreadyPresentToday, err
	}
	return existing, AlreadyPresentToday, nil
}

func (l *Ledger) findForDate(ctx context.Context, userID, date string) (Record, error) {
	records, err := l.repo.ListByDate(ctx, date)
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.UserID == userID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

// Get returns a record by id.
func (l *Ledger) Get(ctx context.Context, id string) (Record, error) {
	return l.repo.Get(ctx, id)
}

// RecordsForDate returns the records of one calendar day.
func (l *Ledger) RecordsForDate(ctx context.Context, date string) ([]Record, error) {
	return l.repo.ListByDate(ctx, date)
}

// RecordsForUser returns every record of a user.
func (l *Ledger) RecordsForUser(ctx context.Context, userID string) ([]Record, error) {
	return l.repo.ListByUser(ctx, userID)
}

// Today returns the records of the current calendar day.
func (l *Ledger) Today(ctx context.Context) ([]Record, error) {
	return l.repo.ListByDate(ctx, l.DateOf(l.now()))
}

// All returns the full log.
func (l *Ledger) All(ctx context.Context) ([]Record, error) {
	return l.repo.List(ctx)
}

// IsPresentToday reports whether userID already checked in today.
func (l *Ledger) IsPresentToday(ctx context.Context, userID string) (bool, error) {
	_, err := l.findForDate(ctx, userID, l.DateOf(l.now()))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Stats counts how many of the enrolled users checked in on date (today when empty).
// Records of users no longer enrolled are not counted.
func (l *Ledger) Stats(ctx context.Context, date string, enrolled []string) (DailyStats, error) {
	if date == "" {
		date = l.DateOf(l.now())
	}
	records, err := l.repo.ListByDate(ctx, date)
	if err != nil {
		return DailyStats{}, err
	}
	ids := make(map[string]bool, len(enrolled))
	for _, id := range enrolled {
		ids[id] = true
	}
	stats := DailyStats{Date: date, Enrolled: len(ids)}
	for _, rec := range records {
		if ids[rec.UserID] {
			stats.Present++
		}
	}
	if stats.Enrolled > 0 {
		stats.Rate = int(math.Round(float64(stats.Present) / float64(stats.Enrolled) * 100))
	}
	return stats, nil
}

// Summarize computes presence over windowDays calendar days ending on asOf.
func (l *Ledger) Summarize(ctx context.Context, userID string, windowDays int, asOf time.Time) (Summary, error) {
	if windowDays <= 0 {
		return Summary{}, fmt.Errorf("window must be positive, got %d", windowDays)
	}
	records, err := l.repo.ListByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.Date] = true
	}

	end := asOf.In(l.loc)
	history := make([]Day, windowDays)
	present := 0
	for i := range history {
		// Noon avoids DST edges when stepping back by calendar days.
		day := time.Date(end.Year(), end.Month(), end.Day()-(windowDays-1-i), 12, 0, 0, 0, l.loc)
		date := day.Format(DateLayout)
		history[i] = Day{Date: date, Status: Absent}
		if seen[date] {
			history[i].Status = Present
			present++
		}
	}

	return Summary{
		TotalDays:   windowDays,
		PresentDays: present,
		Percentage:  int(math.Round(float64(present) / float64(windowDays) * 100)),
		History:     history,
	}, nil
}
