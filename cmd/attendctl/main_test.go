package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/enrollment"
	"faceattend/internal/facematch"
	"faceattend/internal/frame"
)

type stubExtractor struct{ calls int }

func (s *stubExtractor) Dim() int { return facematch.Dim }

func (s *stubExtractor) Extract(ctx context.Context, f frame.Frame) (facematch.Descriptor, bool, error) {
	s.calls++
	d := make(facematch.Descriptor, facematch.Dim)
	d[1] = float32(s.calls)
	return d, true, nil
}

func pngFrame(t *testing.T) frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return frame.Frame{Data: buf.Bytes(), MIME: "image/png"}
}

func TestPrintUsers(t *testing.T) {
	users := []enrollment.User{{ID: "u1", Name: "Ann", Role: "staff", CreatedAt: time.Date(2024, 2, 3, 8, 30, 0, 0, time.UTC)}}

	var buf bytes.Buffer
	if err := printUsers(&buf, users, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "ID") || !strings.Contains(out, "Ann") || !strings.Contains(out, "2024-02-03 08:30") {
		t.Fatalf("unexpected table:\n%s", out)
	}

	buf.Reset()
	if err := printUsers(&buf, nil, true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", buf.String())
	}

	buf.Reset()
	_ = printUsers(&buf, nil, false)
	if buf.String() != "No users enrolled.\n" {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func TestPrintRecords(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	records := []attendance.Record{{ID: "r1", UserID: "u1", UserName: "Ann", CheckInTime: time.Date(2024, 2, 3, 7, 0, 0, 0, time.UTC), Date: "2024-02-03"}}

	var buf bytes.Buffer
	if err := printRecords(&buf, records, loc, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "09:00") {
		t.Fatalf("time should be shown in the ledger location:\n%s", buf.String())
	}

	buf.Reset()
	if err := printRecords(&buf, records, loc, true); err != nil {
		t.Fatal(err)
	}
	var decoded []attendance.Record
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || len(decoded) != 1 {
		t.Fatalf("bad JSON output %q: %v", buf.String(), err)
	}
}

func TestPrintSummary(t *testing.T) {
	s := attendance.Summary{
		TotalDays: 3, PresentDays: 1, Percentage: 33,
		History: []attendance.Day{
			{Date: "2024-03-01", Status: attendance.Absent},
			{Date: "2024-03-02", Status: attendance.Present},
			{Date: "2024-03-03", Status: attendance.Absent},
		},
	}
	var buf bytes.Buffer
	if err := printSummary(&buf, "Ann", s, false); err != nil {
		t.Fatal(err)
	}
	want := "Ann: present 1 of 3 days (33%)\n2024-03-01 .#. 2024-03-03\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestRemoveAndReembed(t *testing.T) {
	ctx := context.Background()
	extractor := &stubExtractor{}
	svc := enrollment.NewService(enrollment.NewMemoryRepository(), extractor, 0)

	ann, err := svc.Register(ctx, "Ann", "staff", pngFrame(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	bob, err := svc.Register(ctx, "Bob", "staff", pngFrame(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	users, _ := svc.List(ctx)
	users = append(users, enrollment.User{ID: "ghost"})
	steps := 0
	res := reembedAll(ctx, svc, users, func() { steps++ })
	if res.updated != 2 || len(res.failed) != 1 || res.failed["ghost"] == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if steps != 3 {
		t.Fatalf("progress steps = %d", steps)
	}
	got, _ := svc.Get(ctx, ann.ID)
	if got.Descriptor[1] == ann.Descriptor[1] {
		t.Fatal("descriptor should have been replaced")
	}
	if got.Image != ann.Image {
		t.Fatal("reference image should not be re-encoded by reembed")
	}

	var buf bytes.Buffer
	if err := removeUsers(ctx, &buf, svc, []string{bob.ID, "unknown"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if left, _ := svc.List(ctx); len(left) != 1 || left[0].ID != ann.ID {
		t.Fatalf("unexpected users after remove %+v", left)
	}
}

func TestCommands_SQLite(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("TIMEZONE", "UTC")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		if err := rootCmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("%v: %v\n%s", args, err, out.String())
		}
		return out.String()
	}

	if out := run("users", "list"); !strings.Contains(out, "No users enrolled.") {
		t.Fatalf("unexpected users output %q", out)
	}
	if out := run("attendance", "date", "2024-01-01"); !strings.Contains(out, "No attendance records.") {
		t.Fatalf("unexpected attendance output %q", out)
	}
	if out := run("attendance", "today", "--json"); strings.TrimSpace(out) != "[]" {
		t.Fatalf("unexpected JSON output %q", out)
	}
	jsonOutput = false
}
