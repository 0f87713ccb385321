package loop

import "time"

// LogKind identifies the type of a controller log event.
type LogKind int

const (
	LogInfo          LogKind = iota // General informational message
	LogPrereqMissing                // A prerequisite is missing
	LogArchive                      // Previous run archived
	LogWarning                      // Non-fatal problem (archive I/O, branch mismatch, journal)
	LogIterStart                    // Iteration starting
	LogAgentFailure                 // Agent exited nonzero or timed out
	LogIterComplete                 // Iteration finished without completing the run
	LogError                        // Run-ending error (parse error, agent start failure)
	LogDone                         // All stories complete
	LogExhausted                    // Iteration budget exhausted
	LogStopped                      // Run stopped (context cancelled)
)

var logKindNames = map[LogKind]string{
	LogInfo:          "info",
	LogPrereqMissing: "prereq_missing",
	LogArchive:       "archive",
	LogWarning:       "warning",
	LogIterStart:     "iter_start",
	LogAgentFailure:  "agent_failure",
	LogIterComplete:  "iter_complete",
	LogError:         "error",
	LogDone:          "done",
	LogExhausted:     "exhausted",
	LogStopped:       "stopped",
}

// String returns the kind's snake_case name.
func (k LogKind) String() string {
	if name, ok := logKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// LogEntry is a structured event emitted by the controller. Every entry is
// also rendered as a text line on Controller.Log.
type LogEntry struct {
	Kind      LogKind
	Timestamp time.Time
	Message   string
	State     State // controller state when the entry was emitted

	// Iteration state
	Iteration int
	MaxIter   int

	// Agent outcome
	ExitCode int
	TimedOut bool
	Duration float64 // seconds

	// Completion signal that ended the run: "sentinel" or "task_store".
	Signal string

	// Run state
	Branch      string
	ArchivePath string
}
