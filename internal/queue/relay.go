package queue

import (
	"context"
	"log/slog"

	"faceattend/internal/session"
)

// RelayCheckIns publishes a notification for every check-in a scan session
// records. AlreadyPresent outcomes are not relayed. It returns when events
// closes or ctx is done.
func RelayCheckIns(ctx context.Context, q Queue, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != session.EventState || ev.State != session.Resolved || ev.Outcome != session.Success || ev.Record == nil {
				continue
			}
			msg, err := CheckInMessage(*ev.Record)
			if err != nil {
				slog.Warn("encode check-in failed", "record_id", ev.Record.ID, "err", err)
				continue
			}
			if err := q.Publish(ctx, msg); err != nil {
				slog.Warn("queue publish failed", "record_id", ev.Record.ID, "err", err)
			}
		}
	}
}

// HandleCheckIns consumes check-in notifications until ctx is done, passing
// each decoded one to fn. Malformed messages and handler errors are logged
// and skipped.
func HandleCheckIns(ctx context.Context, q Queue, fn func(context.Context, CheckIn) error) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		c, err := ParseCheckIn(msg)
		if err != nil {
			slog.Warn("skipping queue message", "type", msg.Type, "err", err)
			continue
		}
		if err := fn(ctx, c); err != nil {
			slog.Warn("check-in handler failed", "record_id", c.RecordID, "err", err)
		}
	}
	return nil
}
