// Package store persists controller events to a JSONL journal, one file per
// ralph invocation, and summarises the iterations it has seen.
package store

import (
	"time"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"
)

// Writer persists controller events to durable storage.
type Writer interface {
	Append(entry loop.LogEntry) error
	Close() error
}

// Reader summarises what has been written in this session.
type Reader interface {
	Iterations() ([]IterationSummary, error)
	SessionSummary() (SessionSummary, error)
}

// Store combines Writer and Reader into a single session-scoped handle.
type Store interface {
	Writer
	Reader
}

// IterationSummary summarises one finished agent invocation.
type IterationSummary struct {
	Number   int
	ExitCode int
	TimedOut bool
	Duration float64
	StartAt  time.Time
	EndAt    time.Time
}

// SessionSummary summarises the current session.
type SessionSummary struct {
	SessionID     string
	Path          string
	StartedAt     time.Time
	Iterations    int
	AgentFailures int
	Branch        string
	Outcome       string // kind name of the terminal event, "" while running
}
