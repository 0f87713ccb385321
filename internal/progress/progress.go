// Package progress owns the lifecycle of the progress log. The agent appends
// iteration narratives; this package only creates and resets the header.
package progress

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Title is the first line of every progress log.
const Title = "# Ralph Progress Log"

// Header returns the header written at the start of a run.
func Header(now time.Time) string {
	return fmt.Sprintf("%s\nStarted: %s\n---\n", Title, now.Format(time.UnixDate))
}

// Ensure creates the progress log with a fresh header if it does not exist.
// An existing file is left untouched. It reports whether the file was created.
func Ensure(path string, now time.Time) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("progress: create %s: %w", path, err)
	}
	if _, writeErr := f.WriteString(Header(now)); writeErr != nil {
		f.Close()
		return true, fmt.Errorf("progress: write %s: %w", path, writeErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		return true, fmt.Errorf("progress: close %s: %w", path, closeErr)
	}
	return true, nil
}

// Reset truncates the progress log to a fresh header.
func Reset(path string, now time.Time) error {
	if err := os.WriteFile(path, []byte(Header(now)), 0644); err != nil {
		return fmt.Errorf("progress: reset %s: %w", path, err)
	}
	return nil
}
