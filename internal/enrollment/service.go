package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"faceattend/internal/facematch"
	"faceattend/internal/frame"
	"faceattend/internal/metrics"
)

// Extractor turns a frame into a face descriptor of Dim values.
type Extractor interface {
	Extract(ctx context.Context, f frame.Frame) (facematch.Descriptor, bool, error)
	Dim() int
}

// Service runs the registration flow on top of a Repository.
type Service struct {
	repo        Repository
	extractor   Extractor
	maxFrameDim int
	newID       func() string
	now         func() time.Time
}

// NewService creates a service. Frames are scaled to maxFrameDim before extraction.
func NewService(repo Repository, extractor Extractor, maxFrameDim int) *Service {
	return &Service{
		repo:        repo,
		extractor:   extractor,
		maxFrameDim: maxFrameDim,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Register enrolls a new user from a captured frame.
func (s *Service) Register(ctx context.Context, name, role string, f frame.Frame) (User, error) {
	name = normalizeText(name)
	role = normalizeText(role)
	if name == "" {
		return User{}, fmt.Errorf("%w: name required", ErrInvalidUser)
	}

	normalized, d, err := s.describe(ctx, f)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:         s.newID(),
		Name:       name,
		Role:       role,
		Descriptor: d,
		Image:      normalized.DataURI(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Add(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			slog.Error("generated user id collided", "id", u.ID)
		}
		return User{}, fmt.Errorf("add user: %w", err)
	}
	slog.Info("user registered", "id", u.ID, "name", u.Name)
	s.refreshGauge(ctx)
	return u, nil
}

// Reenroll replaces the descriptor and reference image of an existing user.
func (s *Service) Reenroll(ctx context.Context, id string, f frame.Frame) (User, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return User{}, err
	}
	normalized, d, err := s.describe(ctx, f)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.ReplaceDescriptor(ctx, id, d, normalized.DataURI()); err != nil {
		return User{}, fmt.Errorf("replace descriptor: %w", err)
	}
	slog.Info("user re-enrolled", "id", id)
	return s.repo.Get(ctx, id)
}

// List returns enrolled users in insertion order.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// Remove deletes a user; unknown ids are ignored.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	s.refreshGauge(ctx)
	return nil
}

// Candidates returns a fresh matcher snapshot of all enrolled descriptors.
// Users whose descriptor length differs from the current model are left out
// until they are re-enrolled.
func (s *Service) Candidates(ctx context.Context) ([]facematch.Candidate, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]facematch.Candidate, 0, len(users))
	for _, u := range users {
		all = append(all, facematch.Candidate{ID: u.ID, Descriptor: u.Descriptor})
	}
	dim := s.extractor.Dim()
	out, skipped := facematch.Comparable(all, dim)
	if len(skipped) > 0 {
		slog.Warn("users skipped for matching, re-enroll them", "dim", dim, "user_ids", skipped)
	}
	return out, nil
}

func (s *Service) describe(ctx context.Context, f frame.Frame) (frame.Frame, facematch.Descriptor, error) {
	normalized, err := frame.Normalize(f, s.maxFrameDim)
	if err != nil {
		return frame.Frame{}, nil, err
	}
	d, found, err := s.extractor.Extract(ctx, normalized)
	if err != nil {
		return frame.Frame{}, nil, fmt.Errorf("extract descriptor: %w", err)
	}
	if !found {
		return frame.Frame{}, nil, ErrNoFaceDetected
	}
	if want := s.extractor.Dim(); len(d) != want {
		return frame.Frame{}, nil, fmt.Errorf("%w: got %d values, want %d", ErrDescriptorLength, len(d), want)
	}
	return normalized, d, nil
}

func (s *Service) refreshGauge(ctx context.Context) {
	if users, err := s.repo.List(ctx); err == nil {
		metrics.EnrolledUsers.Set(float64(len(users)))
	}
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
