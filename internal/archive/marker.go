package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Marker persists the last-seen branch name. It is internal bookkeeping used
// only to detect run boundaries.
type Marker interface {
	// Load returns the recorded branch, or "" if none was recorded.
	Load() (string, error)
	Save(branch string) error
}

// FileMarker stores the branch name as a single line in a file.
type FileMarker struct {
	Path string
}

// NewFileMarker returns a FileMarker backed by path.
func NewFileMarker(path string) *FileMarker {
	return &FileMarker{Path: path}
}

// Load reads the recorded branch. A missing file is not an error.
func (m *FileMarker) Load() (string, error) {
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("archive: read marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save records branch using write-then-rename.
func (m *FileMarker) Save(branch string) error {
	dir := filepath.Dir(m.Path)
	tmp, err := os.CreateTemp(dir, ".last-branch-*.tmp")
	if err != nil {
		return fmt.Errorf("archive: create temp marker: %w", err)
	}
	if _, writeErr := tmp.WriteString(branch + "\n"); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("archive: write marker: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("archive: close marker: %w", closeErr)
	}
	if renameErr := os.Rename(tmp.Name(), m.Path); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("archive: finalize marker: %w", renameErr)
	}
	return nil
}
