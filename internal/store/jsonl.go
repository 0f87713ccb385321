package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"
)

// JSONL is a Store backed by an append-only JSONL file. Each line is a
// JSON-serialized loop.LogEntry. The file is synced after every Append so
// the journal survives the controller being killed.
//
// Session identity: "<unix-timestamp>-<pid>.jsonl".
type JSONL struct {
	file      *os.File
	path      string
	mu        sync.Mutex
	idx       *fileIndex
	sessionID string
	startedAt time.Time
	branch    string
}

// NewJSONL creates the session journal in dir. dir is created with
// os.MkdirAll if it does not exist.
func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: mkdir %q: %w", dir, err)
	}
	now := time.Now()
	sessionID := fmt.Sprintf("%d-%d", now.Unix(), os.Getpid())
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	return &JSONL{
		file:      f,
		path:      path,
		idx:       newFileIndex(),
		sessionID: sessionID,
		startedAt: now,
	}, nil
}

// Append serializes entry as a JSON line, writes it to the file, and syncs.
// It is safe to call from multiple goroutines.
func (j *JSONL) Append(entry loop.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("store: sync: %w", err)
	}
	j.idx.onAppend(entry)
	if entry.Branch != "" {
		j.branch = entry.Branch
	}
	return nil
}

// Close closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Iterations returns summaries for all finished iterations in this session.
// The returned slice is a copy and safe to mutate.
func (j *JSONL) Iterations() ([]IterationSummary, error) {
	j.mu.Lock()
	result := make([]IterationSummary, len(j.idx.summaries))
	copy(result, j.idx.summaries)
	j.mu.Unlock()
	return result, nil
}

// SessionSummary returns metadata about the current session derived from
// the in-memory index.
func (j *JSONL) SessionSummary() (SessionSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return SessionSummary{
		SessionID:     j.sessionID,
		Path:          j.path,
		StartedAt:     j.startedAt,
		Iterations:    len(j.idx.summaries),
		AgentFailures: j.idx.failures,
		Branch:        j.branch,
		Outcome:       j.idx.outcome,
	}, nil
}

// ReadFile returns every entry in a journal file. Malformed lines are
// skipped.
func ReadFile(path string) ([]loop.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	defer f.Close()

	var entries []loop.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e loop.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Printf("store: skipping malformed line %d in %s: %v", n, path, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("store: read %q: %w", path, err)
	}
	return entries, nil
}

// Latest returns the path of the newest journal file in dir, or "" if there
// is none.
func Latest(dir string) (string, error) {
	files, err := journalFiles(dir)
	if err != nil || len(files) == 0 {
		return "", err
	}
	return filepath.Join(dir, files[len(files)-1]), nil
}

// Summarize replays a journal file and returns its session summary.
func Summarize(path string) (SessionSummary, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return SessionSummary{}, err
	}
	idx := newFileIndex()
	s := SessionSummary{
		SessionID: strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		Path:      path,
	}
	for i, e := range entries {
		if i == 0 {
			s.StartedAt = e.Timestamp
		}
		if e.Branch != "" {
			s.Branch = e.Branch
		}
		idx.onAppend(e)
	}
	s.Iterations = len(idx.summaries)
	s.AgentFailures = idx.failures
	s.Outcome = idx.outcome
	return s, nil
}

// EnforceRetention removes the oldest journal files in dir, keeping at most
// maxKeep files. If maxKeep is 0, no files are removed. Returns nil if dir does
// not exist or is empty.
func EnforceRetention(dir string, maxKeep int) error {
	if maxKeep <= 0 {
		return nil
	}
	files, err := journalFiles(dir)
	if err != nil {
		return err
	}

	toDelete := len(files) - maxKeep
	for i := 0; i < toDelete; i++ {
		path := filepath.Join(dir, files[i])
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %q: %w", path, err)
		}
	}
	return nil
}

// journalFiles returns the .jsonl file names in dir, oldest first. A missing
// dir has no files.
func journalFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files) // timestamp-prefixed names sort chronologically
	return files, nil
}
