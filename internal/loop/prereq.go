package loop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Missing describes one unavailable prerequisite.
type Missing struct {
	Kind string // "agent", "tool", "task store" or "prompt"
	Name string // executable name or file path
	Err  error
}

func (m Missing) String() string {
	switch m.Kind {
	case "agent":
		return fmt.Sprintf("agent executable %q not found on PATH", m.Name)
	case "tool":
		return fmt.Sprintf("required tool %q not found on PATH", m.Name)
	default:
		if errors.Is(m.Err, fs.ErrNotExist) {
			return fmt.Sprintf("%s %s not found", m.Kind, m.Name)
		}
		return fmt.Sprintf("%s %s: %v", m.Kind, m.Name, m.Err)
	}
}

// PrerequisiteError lists every prerequisite missing at start-up.
type PrerequisiteError struct {
	Missing []Missing
}

func (e *PrerequisiteError) Error() string {
	msgs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		msgs[i] = m.String()
	}
	return "loop: missing prerequisites: " + strings.Join(msgs, "; ")
}

// checkPrereqs verifies the agent executable, each required tool, the task
// store and the prompt template. It returns nil when all are present.
func (c *Controller) checkPrereqs(prdPath, promptPath string) *PrerequisiteError {
	var missing []Missing

	if _, err := c.lookPath(c.Config.Agent.Command); err != nil {
		missing = append(missing, Missing{Kind: "agent", Name: c.Config.Agent.Command, Err: err})
	}
	for _, tool := range c.Config.Agent.RequiredTools {
		if _, err := c.lookPath(tool); err != nil {
			missing = append(missing, Missing{Kind: "tool", Name: tool, Err: err})
		}
	}
	for _, f := range []struct{ kind, path string }{
		{"task store", prdPath},
		{"prompt", promptPath},
	} {
		if err := regularFile(f.path); err != nil {
			missing = append(missing, Missing{Kind: f.kind, Name: f.path, Err: err})
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return &PrerequisiteError{Missing: missing}
}

func regularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}
