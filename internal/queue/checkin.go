package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"faceattend/internal/attendance"
)

// TypeCheckIn marks a message announcing a newly recorded check-in.
const TypeCheckIn = "checkin"

// CheckIn is the payload of a TypeCheckIn message.
type CheckIn struct {
	RecordID    string    `json:"record_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	CheckInTime time.Time `json:"check_in_time"`
	Date        string    `json:"date"`
}

// CheckInMessage builds the notification for a recorded check-in.
func CheckInMessage(rec attendance.Record) (Message, error) {
	body, err := json.Marshal(CheckIn{
		RecordID:    rec.ID,
		UserID:      rec.UserID,
		UserName:    rec.UserName,
		CheckInTime: rec.CheckInTime,
		Date:        rec.Date,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeCheckIn, Body: body}, nil
}

// ParseCheckIn decodes a TypeCheckIn message.
func ParseCheckIn(msg Message) (CheckIn, error) {
	if msg.Type != TypeCheckIn {
		return CheckIn{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var c CheckIn
	if err := json.Unmarshal(msg.Body, &c); err != nil {
		return CheckIn{}, fmt.Errorf("decode check-in: %w", err)
	}
	return c, nil
}
