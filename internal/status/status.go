// Package status renders the task store for the operator. Rendering never
// modifies the task store.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/config"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/prd"
)

// Format selects the status output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("status: unknown format %q (want text, yaml or json)", s)
}

const (
	passMarker = "✓"
	failMarker = "✗"
	barWidth   = 30
)

var (
	colorGreen = lipgloss.Color("#6BCB77")
	colorRed   = lipgloss.Color("#FF6B6B")
	colorGray  = lipgloss.Color("#888888")
)

// Reporter renders task store status. The zero value uses the default
// accent color.
type Reporter struct {
	Accent string // hex color for the header and progress bar
}

// New creates a Reporter with the given accent color.
func New(accent string) *Reporter {
	return &Reporter{Accent: accent}
}

// Render writes the text report: header, progress bar and one line per
// story with the next story marked.
func (r *Reporter) Render(w io.Writer, p *prd.PRD) error {
	renderer := lipgloss.NewRenderer(w)
	accent := lipgloss.Color(r.accent())
	header := renderer.NewStyle().Bold(true).Foreground(accent)
	dim := renderer.NewStyle().Foreground(colorGray)
	pass := renderer.NewStyle().Foreground(colorGreen)
	fail := renderer.NewStyle().Foreground(colorRed)
	next := renderer.NewStyle().Foreground(accent).Bold(true)

	s := Summarize(p)
	bar := progress.New(
		progress.WithSolidFill(r.accent()),
		progress.WithWidth(barWidth),
		progress.WithColorProfile(renderer.ColorProfile()),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", header.Render(s.Project), dim.Render(s.Branch))
	fmt.Fprintf(&b, "%s  %d/%d stories passing\n", bar.ViewAs(s.fraction()), s.Passing, s.Total)
	if s.Total == 0 {
		b.WriteString(dim.Render("  no stories") + "\n")
	}
	for _, st := range s.Stories {
		marker := fail.Render(failMarker)
		if st.Passes {
			marker = pass.Render(passMarker)
		}
		line := fmt.Sprintf("  %s %s  %s", marker, st.ID, st.Title)
		if st.Next {
			line += "  " + next.Render("(next)")
		}
		b.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderNext writes the story the agent is expected to pick next, or a
// completion line when none is left.
func (r *Reporter) RenderNext(w io.Writer, p *prd.PRD) error {
	s, ok := p.Next()
	if !ok {
		_, err := fmt.Fprintln(w, "All stories complete")
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s (priority %d)\n", s.ID, s.Title, s.Priority)
	if s.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Description)
	}
	if len(s.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if s.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", s.Notes)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Write renders p in the given format.
func (r *Reporter) Write(w io.Writer, p *prd.PRD, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Summarize(p)); err != nil {
			return fmt.Errorf("status: encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(Summarize(p)); err != nil {
			return fmt.Errorf("status: encode json: %w", err)
		}
		return nil
	default:
		return r.Render(w, p)
	}
}

func (r *Reporter) accent() string {
	if r.Accent == "" {
		return config.DefaultAccentColor
	}
	return r.Accent
}

// Summary is the machine-readable status report.
type Summary struct {
	Project  string         `yaml:"project" json:"project"`
	Branch   string         `yaml:"branch" json:"branch"`
	Passing  int            `yaml:"passing" json:"passing"`
	Total    int            `yaml:"total" json:"total"`
	Complete bool           `yaml:"complete" json:"complete"`
	Next     string         `yaml:"next,omitempty" json:"next,omitempty"`
	Stories  []StorySummary `yaml:"stories" json:"stories"`
}

// StorySummary is one story line of a Summary.
type StorySummary struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Priority int    `yaml:"priority" json:"priority"`
	Passes   bool   `yaml:"passes" json:"passes"`
	Next     bool   `yaml:"next,omitempty" json:"next,omitempty"`
}

// Summarize builds a Summary of p in task store order.
func Summarize(p *prd.PRD) Summary {
	passing, total := p.Counts()
	s := Summary{
		Project:  p.Project,
		Branch:   p.BranchName,
		Passing:  passing,
		Total:    total,
		Complete: p.IsComplete(),
		Stories:  make([]StorySummary, 0, total),
	}
	next, hasNext := p.Next()
	if hasNext {
		s.Next = next.ID
	}
	for _, st := range p.UserStories {
		s.Stories = append(s.Stories, StorySummary{
			ID:       st.ID,
			Title:    st.Title,
			Priority: st.Priority,
			Passes:   st.Passes,
			Next:     hasNext && st.ID == next.ID,
		})
	}
	return s
}

func (s Summary) fraction() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Passing) / float64(s.Total)
}
