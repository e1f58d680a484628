package queue

import (
	"context"
	"testing"
	"time"

	"faceattend/internal/attendance"
)

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	rec := attendance.Record{ID: "r1", UserID: "u1", UserName: "Ann", CheckInTime: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), Date: "2024-01-02"}
	msg, err := CheckInMessage(rec)
	if err != nil {
		t.Fatalf("CheckInMessage: %v", err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	select {
	case got := <-ch:
		c, err := ParseCheckIn(got)
		if err != nil {
			t.Fatalf("ParseCheckIn: %v", err)
		}
		if c.RecordID != "r1" || c.UserName != "Ann" || c.Date != "2024-01-02" || !c.CheckInTime.Equal(rec.CheckInTime) {
			t.Errorf("check-in = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemory_ConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := NewInMemory(1).Consume(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: TypeCheckIn}); err == nil {
		t.Error("expected context error on full queue")
	}
}

func TestParseCheckIn_WrongType(t *testing.T) {
	if _, err := ParseCheckIn(Message{Type: "other"}); err == nil {
		t.Error("expected error for unexpected type")
	}
}
