package ingest

import (
	"errors"
	"testing"
)

func TestJobTracker_Lifecycle(t *testing.T) {
	tracker := NewJobTracker()

	job := tracker.Start("/docs")
	if job.ID == "" {
		t.Fatal("Start() returned a job without an ID")
	}
	if job.State != JobRunning {
		t.Errorf("State = %q, want %q", job.State, JobRunning)
	}
	if job.Directory != "/docs" {
		t.Errorf("Directory = %q, want %q", job.Directory, "/docs")
	}
	if job.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
	if job.FinishedAt != nil {
		t.Error("FinishedAt set before completion")
	}

	tracker.Complete(job.ID, 42)

	got, ok := tracker.Get(job.ID)
	if !ok {
		t.Fatalf("Get(%q) not found", job.ID)
	}
	if got.State != JobCompleted {
		t.Errorf("State = %q, want %q", got.State, JobCompleted)
	}
	if got.Fragments != 42 {
		t.Errorf("Fragments = %d, want 42", got.Fragments)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set after completion")
	}
}

func TestJobTracker_Fail(t *testing.T) {
	tracker := NewJobTracker()

	job := tracker.Start("/docs")
	tracker.Fail(job.ID, errors.New("directory vanished"))

	got, ok := tracker.Get(job.ID)
	if !ok {
		t.Fatalf("Get(%q) not found", job.ID)
	}
	if got.State != JobFailed {
		t.Errorf("State = %q, want %q", got.State, JobFailed)
	}
	if got.Error != "directory vanished" {
		t.Errorf("Error = %q, want %q", got.Error, "directory vanished")
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set after failure")
	}
}

func TestJobTracker_GetUnknown(t *testing.T) {
	tracker := NewJobTracker()

	if _, ok := tracker.Get("no-such-job"); ok {
		t.Error("Get() found a job that was never started")
	}
}

func TestJobTracker_UniqueIDs(t *testing.T) {
	tracker := NewJobTracker()

	a := tracker.Start("/a")
	b := tracker.Start("/b")
	if a.ID == b.ID {
		t.Errorf("Start() returned duplicate IDs: %q", a.ID)
	}
}
