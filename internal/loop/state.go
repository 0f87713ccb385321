package loop

// State is a step of the controller state machine.
type State int

const (
	StateInit State = iota
	StateCheckPrereqs
	StateMaybeArchive
	StateEnsureProgressLog
	StateReportStatus
	StateIterate

	// Terminal states.
	StateAlreadyComplete
	StateComplete
	StateExhausted
	StateFailed
	StateStopped
)

var stateNames = map[State]string{
	StateInit:              "INIT",
	StateCheckPrereqs:      "CHECK_PREREQS",
	StateMaybeArchive:      "MAYBE_ARCHIVE",
	StateEnsureProgressLog: "ENSURE_PROGRESS_LOG",
	StateReportStatus:      "REPORT_STATUS",
	StateIterate:           "ITERATE",
	StateAlreadyComplete:   "ALREADY_COMPLETE",
	StateComplete:          "COMPLETE",
	StateExhausted:         "EXHAUSTED",
	StateFailed:            "FAILED",
	StateStopped:           "STOPPED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s >= StateAlreadyComplete
}

// Succeeded reports whether s is a successful terminal state.
func (s State) Succeeded() bool {
	return s == StateAlreadyComplete || s == StateComplete
}
