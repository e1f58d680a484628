package enrollment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"faceattend/internal/facematch"
	"faceattend/internal/frame"
)

type stubExtractor struct {
	d     facematch.Descriptor
	found bool
	err   error
	dim   int
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context, f frame.Frame) (facematch.Descriptor, bool, error) {
	s.calls++
	return s.d.Clone(), s.found, s.err
}

func (s *stubExtractor) Dim() int {
	if s.dim > 0 {
		return s.dim
	}
	return facematch.Dim
}

func testFrame(t *testing.T) frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return frame.Frame{Data: buf.Bytes(), MIME: "image/png"}
}

func sampleDescriptor() facematch.Descriptor {
	d := make(facematch.Descriptor, facematch.Dim)
	for i := range d {
		d[i] = float32(math.Sin(float64(i))) * 0.1
	}
	return d
}

func TestRegister_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	want := sampleDescriptor()
	svc := NewService(repo, &stubExtractor{d: want, found: true}, 640)

	u, err := svc.Register(ctx, "  Jiří   Novák ", " Engineer ", testFrame(t))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
	if u.Name != "Jiří Novák" || u.Role != "Engineer" {
		t.Errorf("normalized profile = %q / %q", u.Name, u.Role)
	}
	if len(u.Image) == 0 || u.Image[:len("data:image/jpeg;base64,")] != "data:image/jpeg;base64," {
		t.Errorf("image should be a jpeg data uri, got %.30q", u.Image)
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("List = %+v", users)
	}
	for i := range want {
		if math.Abs(float64(users[0].Descriptor[i]-want[i])) > 1e-6 {
			t.Fatalf("descriptor[%d] = %v, want %v", i, users[0].Descriptor[i], want[i])
		}
	}
}

func TestRegister_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		user    string
		ext     *stubExtractor
		frame   func(t *testing.T) frame.Frame
		wantErr error
	}{
		{"missing name", "   ", &stubExtractor{found: true}, testFrame, ErrInvalidUser},
		{"no face", "Ann", &stubExtractor{found: false}, testFrame, ErrNoFaceDetected},
		{"extractor failure", "Ann", &stubExtractor{err: boom}, testFrame, boom},
		{"undecodable frame", "Ann", &stubExtractor{found: true}, func(*testing.T) frame.Frame {
			return frame.Frame{Data: []byte("nope")}
		}, frame.ErrInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			svc := NewService(repo, tt.ext, 640)
			_, err := svc.Register(context.Background(), tt.user, "", tt.frame(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if users, _ := repo.List(context.Background()); len(users) != 0 {
				t.Errorf("failed registration stored %d users", len(users))
			}
		})
	}
}

func TestRegister_DuplicateIDFailsLoudly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo, &stubExtractor{d: sampleDescriptor(), found: true}, 640)
	svc.newID = func() string { return "fixed" }

	if _, err := svc.Register(ctx, "Ann", "", testFrame(t)); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(ctx, "Bob", "", testFrame(t)); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	u, _ := repo.Get(ctx, "fixed")
	if u.Name != "Ann" {
		t.Errorf("duplicate id overwrote user: %q", u.Name)
	}
}

func TestReenroll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	ext := &stubExtractor{d: facematch.Descriptor{1, 1}, found: true, dim: 2}
	svc := NewService(repo, ext, 640)

	u, err := svc.Register(ctx, "Ann", "", testFrame(t))
	if err != nil {
		t.Fatal(err)
	}

	ext.d = facematch.Descriptor{2, 2}
	got, err := svc.Reenroll(ctx, u.ID, testFrame(t))
	if err != nil {
		t.Fatalf("Reenroll: %v", err)
	}
	if got.Descriptor[0] != 2 || len(got.Descriptor) != 2 {
		t.Errorf("descriptor not replaced: %v", got.Descriptor)
	}

	if _, err := svc.Reenroll(ctx, "missing", testFrame(t)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Add(ctx, User{ID: "a", Descriptor: facematch.Descriptor{1}})
	_ = repo.Add(ctx, User{ID: "b", Descriptor: facematch.Descriptor{2}})
	svc := NewService(repo, &stubExtractor{dim: 1}, 0)

	got, err := svc.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("Candidates = %+v", got)
	}

	_ = svc.Remove(ctx, "a")
	got, _ = svc.Candidates(ctx)
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("Candidates after remove = %+v", got)
	}
}

func TestRegister_DescriptorLength(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	ext := &stubExtractor{d: make(facematch.Descriptor, 64), found: true}
	svc := NewService(repo, ext, 640)

	if _, err := svc.Register(ctx, "Ann", "", testFrame(t)); !errors.Is(err, ErrDescriptorLength) {
		t.Fatalf("expected ErrDescriptorLength, got %v", err)
	}
	if users, _ := repo.List(ctx); len(users) != 0 {
		t.Fatalf("short descriptor was stored: %+v", users)
	}

	ext.d = sampleDescriptor()
	u, err := svc.Register(ctx, "Ann", "", testFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	ext.d = make(facematch.Descriptor, 64)
	if _, err := svc.Reenroll(ctx, u.ID, testFrame(t)); !errors.Is(err, ErrDescriptorLength) {
		t.Fatalf("expected ErrDescriptorLength on reenroll, got %v", err)
	}
	got, _ := repo.Get(ctx, u.ID)
	if len(got.Descriptor) != facematch.Dim {
		t.Fatalf("descriptor replaced with %d values", len(got.Descriptor))
	}
}

func TestCandidates_SkipsOtherModelDescriptors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Add(ctx, User{ID: "old", Descriptor: make(facematch.Descriptor, 64)})
	_ = repo.Add(ctx, User{ID: "current", Descriptor: sampleDescriptor()})
	svc := NewService(repo, &stubExtractor{}, 0)

	got, err := svc.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "current" {
		t.Fatalf("Candidates = %+v", got)
	}
	// Skipped users stay enrolled so they can be re-embedded.
	if users, _ := svc.List(ctx); len(users) != 2 {
		t.Fatalf("List = %d users", len(users))
	}
}
