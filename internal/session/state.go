package session

import (
	"errors"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/enrollment"
)

var (
	// ErrNotStarted is returned for commands sent while no session is running.
	ErrNotStarted = errors.New("scan session not started")
	// ErrInvalidTransition is returned when a command does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// User-facing messages.
const (
	msgModelUnavailable = "Failed to initialize face recognition. Please refresh the page."
	msgCameraDenied     = "Failed to access camera. Please ensure camera permissions are granted."
	msgLedgerFailed     = "Could not save attendance. Please try again."
)

// State is the scan session state.
type State int

const (
	Idle State = iota
	Detecting
	Matching
	Resolved
)

func (s State) String() string {
	switch s {
	case Detecting:
		return "detecting"
	case Matching:
		return "matching"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome qualifies a resolved match attempt.
type Outcome int

const (
	OutcomeNone Outcome = iota
	Success
	AlreadyPresent
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case AlreadyPresent:
		return "already_present"
	case Unknown:
		return "unknown"
	default:
		return ""
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// EventKind classifies session events.
type EventKind string

const (
	// EventState is emitted on every state transition.
	EventState EventKind = "state"
	// EventPresence is emitted when face visibility changes.
	EventPresence EventKind = "presence"
	// EventAttempt is emitted for match attempts that found a face but no enrolled user.
	EventAttempt EventKind = "attempt"
	// EventError is emitted for failures surfaced to the user.
	EventError EventKind = "error"
)

// UserView is the recognized user as shown to the presentation layer.
type UserView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Image string `json:"image,omitempty"`
}

func viewOf(u enrollment.User) *UserView {
	return &UserView{ID: u.ID, Name: u.Name, Role: u.Role, Image: u.Image}
}

// Event is a state change notification.
type Event struct {
	Kind        EventKind          `json:"kind"`
	State       State              `json:"state"`
	Outcome     Outcome            `json:"outcome,omitempty"`
	FaceVisible bool               `json:"faceVisible"`
	User        *UserView          `json:"user,omitempty"`
	Record      *attendance.Record `json:"record,omitempty"`
	Distance    float64            `json:"distance,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
	Err         error              `json:"-"`
	At          time.Time          `json:"at"`
}

// Snapshot is the current view of the session.
type Snapshot struct {
	State       State              `json:"state"`
	Outcome     Outcome            `json:"outcome,omitempty"`
	FaceVisible bool               `json:"faceVisible"`
	User        *UserView          `json:"user,omitempty"`
	Record      *attendance.Record `json:"record,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
}
