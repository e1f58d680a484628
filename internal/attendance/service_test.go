package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testLoc = time.FixedZone("UTC+2", 2*60*60)

func newTestLedger(now time.Time) *Ledger {
	l := NewLedger(NewMemoryRepository(), testLoc)
	l.now = func() time.Time { return now }
	return l
}

func TestRecordCheckIn_Dedup(t *testing.T) {
	ctx := context.Background()
	morning := time.Date(2024, 5, 10, 8, 0, 0, 0, testLoc)
	l := newTestLedger(morning)

	rec, status, err := l.RecordCheckIn(ctx, "a", "Ann", morning)
	if err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	if status != Recorded {
		t.Fatalf("status = %v, want recorded", status)
	}
	if rec.Date != "2024-05-10" || rec.UserName != "Ann" || rec.ID == "" {
		t.Errorf("record = %+v", rec)
	}

	again, status, err := l.RecordCheckIn(ctx, "a", "Ann", morning.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("second check-in: %v", err)
	}
	if status != AlreadyPresentToday {
		t.Fatalf("status = %v, want already_present", status)
	}
	if again.ID != rec.ID {
		t.Errorf("AlreadyPresentToday should return the existing record, got %+v", again)
	}

	records, _ := l.RecordsForDate(ctx, "2024-05-10")
	if len(records) != 1 {
		t.Errorf("records for date = %d, want 1", len(records))
	}
}

func TestRecordCheckIn_LocalCalendarDay(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Time{})

	// 23:30 UTC on the 9th is 01:30 on the 10th in UTC+2.
	late := time.Date(2024, 5, 9, 23, 30, 0, 0, time.UTC)
	rec, _, err := l.RecordCheckIn(ctx, "a", "Ann", late)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Date != "2024-05-10" {
		t.Errorf("date = %s, want 2024-05-10", rec.Date)
	}

	nextDay := time.Date(2024, 5, 10, 22, 30, 0, 0, time.UTC) // 00:30 on the 11th local
	if _, status, _ := l.RecordCheckIn(ctx, "a", "Ann", nextDay); status != Recorded {
		t.Errorf("status for the next local day = %v, want recorded", status)
	}
}

func TestRecordCheckIn_Concurrent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 8, 0, 0, 0, testLoc)
	l := newTestLedger(now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, status, err := l.RecordCheckIn(ctx, "a", "Ann", now.Add(time.Duration(i)*time.Minute))
			if err != nil {
				t.Error(err)
				return
			}
			if status == Recorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if recorded != 1 {
		t.Errorf("recorded %d times, want exactly 1", recorded)
	}
	if records, _ := l.RecordsForUser(ctx, "a"); len(records) != 1 {
		t.Errorf("stored %d records, want 1", len(records))
	}
}

func TestRecordCheckIn_RequiresUser(t *testing.T) {
	l := newTestLedger(time.Now())
	if _, _, err := l.RecordCheckIn(context.Background(), "", "Nobody", time.Now()); err == nil {
		t.Error("expected error for empty user id")
	}
}

type failingRepo struct{ MemoryRepository }

func (f *failingRepo) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	return false, errors.New("quota exceeded")
}

func TestRecordCheckIn_StorageFailureSurfaces(t *testing.T) {
	l := NewLedger(&failingRepo{}, testLoc)
	if _, _, err := l.RecordCheckIn(context.Background(), "a", "Ann", time.Now()); err == nil {
		t.Fatal("expected storage error to surface")
	}
}

func TestTodayAndIsPresentToday(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, testLoc)
	l := newTestLedger(now)

	_, _, _ = l.RecordCheckIn(ctx, "a", "Ann", now.AddDate(0, 0, -1))
	_, _, _ = l.RecordCheckIn(ctx, "b", "Bob", now)

	today, err := l.Today(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(today) != 1 || today[0].UserID != "b" {
		t.Errorf("Today = %+v", today)
	}

	tests := []struct {
		user string
		want bool
	}{
		{"a", false},
		{"b", true},
		{"nobody", false},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			got, err := l.IsPresentToday(ctx, tt.user)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsPresentToday(%s) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}

	all, _ := l.All(ctx)
	if len(all) != 2 {
		t.Errorf("All = %d records, want 2", len(all))
	}
}

func TestSummarize_Window(t *testing.T) {
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, testLoc)
	day30 := day1.AddDate(0, 0, 29)
	l := newTestLedger(day30)

	for _, offset := range []int{0, 4, 29} {
		if _, _, err := l.RecordCheckIn(ctx, "a", "Ann", day1.AddDate(0, 0, offset)); err != nil {
			t.Fatal(err)
		}
	}
	// Outside the window and another user's records must not count.
	_, _, _ = l.RecordCheckIn(ctx, "a", "Ann", day1.AddDate(0, 0, -1))
	_, _, _ = l.RecordCheckIn(ctx, "b", "Bob", day1.AddDate(0, 0, 10))

	s, err := l.Summarize(ctx, "a", 30, day30)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.TotalDays != 30 || s.PresentDays != 3 || s.Percentage != 10 {
		t.Errorf("summary = total %d present %d pct %d, want 30/3/10", s.TotalDays, s.PresentDays, s.Percentage)
	}
	if len(s.History) != 30 {
		t.Fatalf("history length = %d", len(s.History))
	}
	if s.History[0].Date != "2024-03-01" || s.History[0].Status != Present {
		t.Errorf("history[0] = %+v, want 2024-03-01 present", s.History[0])
	}
	if s.History[1].Status != Absent {
		t.Errorf("history[1] = %+v, want absent", s.History[1])
	}
	if s.History[29].Date != "2024-03-30" || s.History[29].Status != Present {
		t.Errorf("history[29] = %+v, want 2024-03-30 present", s.History[29])
	}
}

func TestSummarize_OldestAbsent(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 3, 30, 18, 0, 0, 0, testLoc)
	l := newTestLedger(asOf)

	// Days 2, 6 and 30 of the window ending on asOf.
	for _, back := range []int{28, 24, 0} {
		_, _, _ = l.RecordCheckIn(ctx, "a", "Ann", asOf.AddDate(0, 0, -back))
	}

	s, err := l.Summarize(ctx, "a", 30, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if s.PresentDays != 3 || s.Percentage != 10 {
		t.Errorf("present %d pct %d, want 3/10", s.PresentDays, s.Percentage)
	}
	if s.History[0].Status != Absent {
		t.Errorf("oldest day = %v, want absent", s.History[0].Status)
	}
	if s.History[29].Status != Present {
		t.Errorf("today = %v, want present", s.History[29].Status)
	}
}

func TestSummarize_NoRecords(t *testing.T) {
	l := newTestLedger(time.Now())
	s, err := l.Summarize(context.Background(), "ghost", 7, time.Date(2024, 1, 7, 0, 0, 0, 0, testLoc))
	if err != nil {
		t.Fatal(err)
	}
	if s.PresentDays != 0 || s.Percentage != 0 || s.TotalDays != 7 {
		t.Errorf("summary = %+v", s)
	}
	for i, d := range s.History {
		if d.Status != Absent {
			t.Errorf("history[%d] = %v, want absent", i, d.Status)
		}
	}
	if s.History[0].Date != "2024-01-01" || s.History[6].Date != "2024-01-07" {
		t.Errorf("history range = %s..%s", s.History[0].Date, s.History[6].Date)
	}
}

func TestSummarize_Rounding(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 1, 3, 12, 0, 0, 0, testLoc)
	l := newTestLedger(asOf)
	_, _, _ = l.RecordCheckIn(ctx, "a", "Ann", asOf)
	_, _, _ = l.RecordCheckIn(ctx, "a", "Ann", asOf.AddDate(0, 0, -1))

	s, _ := l.Summarize(ctx, "a", 3, asOf)
	if s.Percentage != 67 {
		t.Errorf("percentage = %d, want 67", s.Percentage)
	}
}

func TestSummarize_InvalidWindow(t *testing.T) {
	l := newTestLedger(time.Now())
	if _, err := l.Summarize(context.Background(), "a", 0, time.Now()); err == nil {
		t.Error("expected error for zero window")
	}
}

func TestParseDate(t *testing.T) {
	l := newTestLedger(time.Now())
	if _, err := l.ParseDate("2024-02-30"); err == nil {
		t.Error("expected error for impossible date")
	}
	got, err := l.ParseDate("2024-02-29")
	if err != nil {
		t.Fatal(err)
	}
	if l.DateOf(got) != "2024-02-29" {
		t.Errorf("DateOf(ParseDate) = %s", l.DateOf(got))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, testLoc)
	l := newTestLedger(now)
	for _, id := range []string{"a", "b", "gone"} {
		if _, _, err := l.RecordCheckIn(ctx, id, id, now); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := l.RecordCheckIn(ctx, "c", "c", now.AddDate(0, 0, -1)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		date     string
		enrolled []string
		want     DailyStats
	}{
		{"today", "", []string{"a", "b", "c"}, DailyStats{Date: "2024-05-10", Enrolled: 3, Present: 2, Rate: 67}},
		{"other day", "2024-05-09", []string{"a", "b", "c"}, DailyStats{Date: "2024-05-09", Enrolled: 3, Present: 1, Rate: 33}},
		{"nobody enrolled", "", nil, DailyStats{Date: "2024-05-10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Stats(ctx, tt.date, tt.enrolled)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Stats = %+v, want %+v", got, tt.want)
			}
		})
	}
}
