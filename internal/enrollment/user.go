package enrollment

import (
	"context"
	"errors"
	"time"

	"faceattend/internal/facematch"
)

var (
	// ErrDuplicateID is returned when adding a user whose id already exists.
	ErrDuplicateID = errors.New("user id already enrolled")
	// ErrNotFound is returned when a user id does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrNoFaceDetected is returned when a registration frame has no usable face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrInvalidUser is returned for missing or malformed profile fields.
	ErrInvalidUser = errors.New("invalid user")
	// ErrDescriptorLength is returned when the extractor yields a descriptor of the wrong size.
	ErrDescriptorLength = errors.New("descriptor length does not match the model")
)

// User is an enrolled person.
type User struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Role       string               `json:"role"`
	Descriptor facematch.Descriptor `json:"imageDescriptor"`
	Image      string               `json:"image"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Clone returns a copy that shares no memory with u.
func (u User) Clone() User {
	u.Descriptor = u.Descriptor.Clone()
	return u
}

// Repository persists enrolled users. Reads return point-in-time copies.
type Repository interface {
	// List returns users in insertion order.
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id string) (User, error)
	// Add fails with ErrDuplicateID if the id exists.
	Add(ctx context.Context, u User) error
	// Remove is a no-op for unknown ids.
	Remove(ctx context.Context, id string) error
	// ReplaceDescriptor swaps the descriptor and, when image is not empty, the reference image.
	ReplaceDescriptor(ctx context.Context, id string, d facematch.Descriptor, image string) error
}
