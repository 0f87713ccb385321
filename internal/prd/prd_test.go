package prd

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const validDoc = `{
  "project": "Shop",
  "branchName": "ralph/checkout",
  "description": "Checkout flow",
  "userStories": [
    {"id": "US-001", "title": "Cart", "description": "d", "acceptanceCriteria": ["a", "b"], "priority": 3, "passes": true, "notes": ""},
    {"id": "US-002", "title": "Pay", "priority": 1, "passes": false},
    {"id": "US-003", "title": "Receipt", "priority": 2, "passes": false, "notes": "flaky"}
  ]
}`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prd.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		p, err := Load(writeDoc(t, validDoc))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if p.Project != "Shop" || p.BranchName != "ralph/checkout" {
			t.Errorf("got project=%q branch=%q", p.Project, p.BranchName)
		}
		if len(p.UserStories) != 3 {
			t.Fatalf("got %d stories, want 3", len(p.UserStories))
		}
		if got := p.UserStories[0].AcceptanceCriteria; !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Errorf("acceptanceCriteria = %v", got)
		}
		if p.UserStories[1].AcceptanceCriteria == nil {
			t.Error("missing acceptanceCriteria should load as empty, not nil")
		}
		if p.UserStories[2].Notes != "flaky" {
			t.Errorf("notes = %q, want %q", p.UserStories[2].Notes, "flaky")
		}
	})

	t.Run("missing file is a parse error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParseError, got %T: %v", err, err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected wrapped fs.ErrNotExist, got %v", err)
		}
	})

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"malformed json", `{"project": "x",`, "unexpected end"},
		{"missing branchName", `{"project": "x", "userStories": []}`, "branchName"},
		{"empty branchName", `{"project": "x", "branchName": "", "userStories": []}`, "branchName"},
		{"missing project", `{"branchName": "b", "userStories": []}`, "project"},
		{"missing userStories", `{"project": "x", "branchName": "b"}`, "userStories"},
		{"story missing passes", `{"project": "x", "branchName": "b", "userStories": [{"id": "1", "title": "t", "priority": 1}]}`, "passes"},
		{"story missing priority", `{"project": "x", "branchName": "b", "userStories": [{"id": "1", "title": "t", "passes": true}]}`, "priority"},
		{"story missing id", `{"project": "x", "branchName": "b", "userStories": [{"title": "t", "priority": 1, "passes": true}]}`, "id"},
		{"duplicate id", `{"project": "x", "branchName": "b", "userStories": [
			{"id": "1", "title": "t", "priority": 1, "passes": true},
			{"id": "1", "title": "u", "priority": 2, "passes": false}]}`, "duplicate id"},
		{"wrong type", `{"project": "x", "branchName": "b", "userStories": [{"id": "1", "title": "t", "priority": "high", "passes": true}]}`, "cannot unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDoc(t, tt.content))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name   string
		passes []bool
		want   bool
	}{
		{"empty list", nil, true},
		{"all passing", []bool{true, true}, true},
		{"one failing", []bool{true, false, true}, false},
		{"all failing", []bool{false, false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PRD{}
			for i, passes := range tt.passes {
				p.UserStories = append(p.UserStories, Story{ID: string(rune('a' + i)), Passes: passes})
			}
			if got := p.IsComplete(); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext(t *testing.T) {
	t.Run("lowest priority value wins", func(t *testing.T) {
		p := &PRD{UserStories: []Story{
			{ID: "a", Priority: 3},
			{ID: "b", Priority: 1},
			{ID: "c", Priority: 2},
		}}
		s, ok := p.Next()
		if !ok || s.ID != "b" {
			t.Errorf("Next() = %q, %v; want b", s.ID, ok)
		}
	})

	t.Run("ties break by list order", func(t *testing.T) {
		p := &PRD{UserStories: []Story{
			{ID: "a", Priority: 2},
			{ID: "b", Priority: 1},
			{ID: "c", Priority: 1},
		}}
		if s, _ := p.Next(); s.ID != "b" {
			t.Errorf("Next() = %q, want b", s.ID)
		}
	})

	t.Run("skips passing stories", func(t *testing.T) {
		p := &PRD{UserStories: []Story{
			{ID: "a", Priority: 1, Passes: true},
			{ID: "b", Priority: 5},
		}}
		if s, _ := p.Next(); s.ID != "b" {
			t.Errorf("Next() = %q, want b", s.ID)
		}
	})

	t.Run("none left", func(t *testing.T) {
		p := &PRD{UserStories: []Story{{ID: "a", Passes: true}}}
		if _, ok := p.Next(); ok {
			t.Error("expected no next story")
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	src, err := Load(writeDoc(t, validDoc))
	if err != nil {
		t.Fatal(err)
	}
	src.UserStories[1].Passes = true

	path := filepath.Join(t.TempDir(), "prd.json")
	if err := Save(path, src); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, src)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestCounts(t *testing.T) {
	p := &PRD{UserStories: []Story{{ID: "a", Passes: true}, {ID: "b"}, {ID: "c", Passes: true}}}
	passing, total := p.Counts()
	if passing != 2 || total != 3 {
		t.Errorf("Counts() = %d, %d; want 2, 3", passing, total)
	}
}
