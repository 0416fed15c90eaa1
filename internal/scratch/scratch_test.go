package scratch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteStageOutput(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := dir.WriteStageOutput("resume_001.pdf", "derived_metrics", "raw text"); err != nil {
		t.Fatalf("WriteStageOutput() error: %v", err)
	}

	data, err := os.ReadFile(dir.StageOutputPath("resume_001.pdf", "derived_metrics"))
	if err != nil {
		t.Fatalf("reading scratch file: %v", err)
	}
	if string(data) != "raw text" {
		t.Errorf("scratch content = %q, want %q", string(data), "raw text")
	}
}

func TestSanitizesIdentifiers(t *testing.T) {
	dir, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := dir.WriteStageOutput("a/b c", "stage", "x"); err != nil {
		t.Fatalf("WriteStageOutput() error: %v", err)
	}

	want := filepath.Join(dir.Path(), "a-b_c_stage.txt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected sanitized file at %s: %v", want, err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty path")
	}
}
