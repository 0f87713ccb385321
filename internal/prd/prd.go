// Package prd reads and writes the prd.json task store shared with the agent.
package prd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Story is one unit of work tracked in the task store. Stories are mutated
// only by the agent between iterations.
type Story struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	Priority           int      `json:"priority"` // lower = more urgent
	Passes             bool     `json:"passes"`
	Notes              string   `json:"notes"`
}

// PRD is the task store document. BranchName identifies the logical run.
type PRD struct {
	Project     string  `json:"project"`
	BranchName  string  `json:"branchName"`
	Description string  `json:"description"`
	UserStories []Story `json:"userStories"`
}

// ParseError reports a task store that could not be read or does not match
// the schema. It is never treated as "incomplete".
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("prd: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// rawPRD mirrors PRD with pointer fields so required keys can be told apart
// from zero values.
type rawPRD struct {
	Project     *string     `json:"project"`
	BranchName  *string     `json:"branchName"`
	Description string      `json:"description"`
	UserStories *[]rawStory `json:"userStories"`
}

type rawStory struct {
	ID                 *string  `json:"id"`
	Title              *string  `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	Priority           *int     `json:"priority"`
	Passes             *bool    `json:"passes"`
	Notes              string   `json:"notes"`
}

// Load reads the task store at path. Any failure, including a missing file,
// is returned as a *ParseError.
func Load(path string) (*PRD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	p, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return p, nil
}

// Parse decodes and validates a task store document.
func Parse(data []byte) (*PRD, error) {
	var raw rawPRD
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var errs []error
	if raw.Project == nil {
		errs = append(errs, errors.New("missing required field \"project\""))
	}
	if raw.BranchName == nil || *raw.BranchName == "" {
		errs = append(errs, errors.New("missing required field \"branchName\""))
	}
	if raw.UserStories == nil {
		errs = append(errs, errors.New("missing required field \"userStories\""))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	p := &PRD{
		Project:     *raw.Project,
		BranchName:  *raw.BranchName,
		Description: raw.Description,
		UserStories: make([]Story, 0, len(*raw.UserStories)),
	}
	seen := make(map[string]bool)
	for i, rs := range *raw.UserStories {
		s, err := rs.story(i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("userStories[%d]: duplicate id %q", i, s.ID))
			continue
		}
		seen[s.ID] = true
		p.UserStories = append(p.UserStories, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

func (rs rawStory) story(i int) (Story, error) {
	var missing []string
	if rs.ID == nil || *rs.ID == "" {
		missing = append(missing, "id")
	}
	if rs.Title == nil {
		missing = append(missing, "title")
	}
	if rs.Priority == nil {
		missing = append(missing, "priority")
	}
	if rs.Passes == nil {
		missing = append(missing, "passes")
	}
	if len(missing) > 0 {
		return Story{}, fmt.Errorf("userStories[%d]: missing required fields %q", i, missing)
	}
	criteria := rs.AcceptanceCriteria
	if criteria == nil {
		criteria = []string{}
	}
	return Story{
		ID:                 *rs.ID,
		Title:              *rs.Title,
		Description:        rs.Description,
		AcceptanceCriteria: criteria,
		Priority:           *rs.Priority,
		Passes:             *rs.Passes,
		Notes:              rs.Notes,
	}, nil
}

// Save writes p to path as indented JSON. The document is written to a temp
// file in the same directory and renamed into place so readers never observe
// a partial write.
func Save(path string, p *PRD) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("prd: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".prd-*.tmp")
	if err != nil {
		return fmt.Errorf("prd: create temp: %w", err)
	}
	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("prd: write: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prd: close: %w", closeErr)
	}
	if renameErr := os.Rename(tmp.Name(), path); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prd: finalize %s: %w", path, renameErr)
	}
	return nil
}

// IsComplete reports whether every story passes. An empty story list is
// complete.
func (p *PRD) IsComplete() bool {
	for _, s := range p.UserStories {
		if !s.Passes {
			return false
		}
	}
	return true
}

// Next returns the story the agent is expected to pick next: the failing
// story with the lowest priority value, ties broken by list order.
func (p *PRD) Next() (Story, bool) {
	best := -1
	for i, s := range p.UserStories {
		if s.Passes {
			continue
		}
		if best < 0 || s.Priority < p.UserStories[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return Story{}, false
	}
	return p.UserStories[best], true
}

// Counts returns the number of passing stories and the total.
func (p *PRD) Counts() (passing, total int) {
	for _, s := range p.UserStories {
		if s.Passes {
			passing++
		}
	}
	return passing, len(p.UserStories)
}
