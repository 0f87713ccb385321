// Package archive snapshots the previous run's task store and progress log
// when the task store's branch name changes.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/progress"
)

// branchPrefix is stripped from branch names before building folder names.
const branchPrefix = "ralph/"

// branchRecord is written into each archive folder and names the branch it
// holds, so branches that sanitize to the same folder name stay apart.
const branchRecord = ".branch"

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Manager detects run boundaries and archives the previous run.
type Manager struct {
	Dir          string // archive root, e.g. "archive"
	PRDPath      string
	ProgressPath string
	Marker       Marker
	Now          func() time.Time // defaults to time.Now
}

// Entry describes a completed rollover.
type Entry struct {
	Path           string
	PreviousBranch string
	Copied         []string
}

// Rollover archives the current files when branch differs from the recorded
// branch, then records branch. Archival never runs on the first recorded run.
//
// Failures are best effort: the returned error joins every problem seen,
// and the work that could be done is still done. archived reports whether a
// rollover happened.
func (m *Manager) Rollover(branch string) (entry Entry, archived bool, err error) {
	var errs []error

	last, loadErr := m.Marker.Load()
	if loadErr != nil {
		errs = append(errs, loadErr)
	}

	if last != "" && branch != "" && last != branch {
		entry, errs = m.archive(last, errs)
		archived = true
	}

	if branch != "" {
		if saveErr := m.Marker.Save(branch); saveErr != nil {
			errs = append(errs, saveErr)
		}
	}
	return entry, archived, errors.Join(errs...)
}

func (m *Manager) archive(previous string, errs []error) (Entry, []error) {
	now := m.now()
	entry := Entry{PreviousBranch: previous}

	path, err := m.folderFor(now, previous)
	if err != nil {
		errs = append(errs, err)
		return entry, errs
	}
	entry.Path = path

	if err := os.MkdirAll(entry.Path, 0755); err != nil {
		errs = append(errs, fmt.Errorf("archive: create %s: %w", entry.Path, err))
		return entry, errs
	}
	if err := os.WriteFile(filepath.Join(entry.Path, branchRecord), []byte(previous+"\n"), 0644); err != nil {
		errs = append(errs, fmt.Errorf("archive: record branch: %w", err))
	}

	progressSaved := true
	for _, src := range []string{m.PRDPath, m.ProgressPath} {
		dst := filepath.Join(entry.Path, filepath.Base(src))
		copied, err := copyFile(src, dst)
		if err != nil {
			errs = append(errs, err)
			if src == m.ProgressPath {
				progressSaved = false
			}
			continue
		}
		if copied {
			entry.Copied = append(entry.Copied, dst)
		}
	}

	// The live log is the only copy of the history until it is archived.
	if !progressSaved {
		errs = append(errs, fmt.Errorf("archive: progress log %s not reset, copy failed", m.ProgressPath))
		return entry, errs
	}
	if err := progress.Reset(m.ProgressPath, now); err != nil {
		errs = append(errs, err)
	}
	return entry, errs
}

// folderFor picks the archive folder for previous. A folder that already
// holds previous is reused; one recording a different branch gets a numeric
// suffix instead. Folders without a branch record are reused.
func (m *Manager) folderFor(now time.Time, previous string) (string, error) {
	base := filepath.Join(m.Dir, FolderName(now, previous))
	for n := 1; ; n++ {
		path := base
		if n > 1 {
			path = fmt.Sprintf("%s-%d", base, n)
		}
		data, err := os.ReadFile(filepath.Join(path, branchRecord))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return path, nil
		case err != nil:
			return "", fmt.Errorf("archive: read branch record in %s: %w", path, err)
		case strings.TrimSpace(string(data)) == previous:
			return path, nil
		}
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// FolderName returns "<YYYY-MM-DD>-<branch>" with the ralph/ prefix removed
// and path-unsafe characters replaced.
func FolderName(date time.Time, branch string) string {
	name := strings.TrimPrefix(branch, branchPrefix)
	name = unsafeNameRe.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "run"
	}
	return date.Format("2006-01-02") + "-" + name
}

// copyFile copies src to dst. A missing src is skipped and reported as
// not copied.
func copyFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("archive: create %s: %w", dst, err)
	}
	if _, copyErr := io.Copy(out, in); copyErr != nil {
		out.Close()
		return false, fmt.Errorf("archive: copy %s: %w", src, copyErr)
	}
	if closeErr := out.Close(); closeErr != nil {
		return false, fmt.Errorf("archive: close %s: %w", dst, closeErr)
	}
	return true, nil
}
