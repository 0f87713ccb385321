package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func TestHeader(t *testing.T) {
	h := Header(testNow)
	lines := strings.Split(strings.TrimSuffix(h, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 header lines, got %d: %q", len(lines), h)
	}
	if lines[0] != Title {
		t.Errorf("line 0 = %q, want %q", lines[0], Title)
	}
	if !strings.HasPrefix(lines[1], "Started: ") || !strings.Contains(lines[1], "2026") {
		t.Errorf("line 1 = %q, want start timestamp", lines[1])
	}
	if lines[2] != "---" {
		t.Errorf("line 2 = %q, want separator", lines[2])
	}
}

func TestEnsure(t *testing.T) {
	t.Run("creates missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "progress.txt")
		created, err := Ensure(path, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Error("expected created = true")
		}
		data, _ := os.ReadFile(path)
		if string(data) != Header(testNow) {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("leaves existing file alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "progress.txt")
		existing := "# Ralph Progress Log\nStarted: earlier\n---\n## Iteration 1\nlearned things\n"
		if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
			t.Fatal(err)
		}
		created, err := Ensure(path, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Error("expected created = false")
		}
		data, _ := os.ReadFile(path)
		if string(data) != existing {
			t.Errorf("existing content was modified: %q", data)
		}
	})

	t.Run("missing parent dir errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nope", "progress.txt")
		if _, err := Ensure(path, testNow); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	if err := os.WriteFile(path, []byte("old run notes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Reset(path, testNow); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != Header(testNow) {
		t.Errorf("content after reset = %q", data)
	}
}
