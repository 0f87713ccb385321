package store

import "github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"

// fileIndex maintains in-memory per-iteration summaries, updated by onAppend
// as each LogEntry is written.
type fileIndex struct {
	summaries []IterationSummary // ordered by completion time
	pending   *IterationSummary  // iteration currently running (nil if none)
	failures  int
	outcome   string
}

func newFileIndex() *fileIndex {
	return &fileIndex{}
}

// onAppend folds entry into the index. An iteration closes on the first
// event after its start that carries the agent outcome or ends the run.
func (idx *fileIndex) onAppend(entry loop.LogEntry) {
	switch entry.Kind {
	case loop.LogIterStart:
		idx.pending = &IterationSummary{
			Number:  entry.Iteration,
			StartAt: entry.Timestamp,
		}
	case loop.LogAgentFailure:
		idx.failures++
		idx.close(entry)
	case loop.LogIterComplete:
		idx.close(entry)
	case loop.LogDone, loop.LogExhausted, loop.LogError, loop.LogStopped:
		idx.close(entry)
		idx.outcome = entry.Kind.String()
	}
}

func (idx *fileIndex) close(entry loop.LogEntry) {
	if idx.pending == nil {
		return
	}
	s := *idx.pending
	s.ExitCode = entry.ExitCode
	s.TimedOut = entry.TimedOut
	s.Duration = entry.Duration
	s.EndAt = entry.Timestamp
	idx.summaries = append(idx.summaries, s)
	idx.pending = nil
}
