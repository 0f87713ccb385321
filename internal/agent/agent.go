// Package agent runs the external coding agent once per iteration and
// inspects its captured output.
package agent

import (
	"bufio"
	"context"
	"strings"
)

// Sentinel is printed alone on a line by the agent when it considers every
// story done.
const Sentinel = "<promise>COMPLETE</promise>"

// Result is the outcome of one agent invocation.
type Result struct {
	ExitCode int
	Output   string // combined stdout and stderr
	TimedOut bool
}

// Failed reports whether the invocation exited nonzero or timed out.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || r.TimedOut
}

// Command runs the agent with the given prompt on stdin and blocks until the
// process exits. A nonzero exit is reported through Result, not as an error.
// Errors are reserved for failures to start the process and for ctx
// cancellation.
type Command interface {
	Run(ctx context.Context, prompt []byte) (Result, error)
}

// HasSentinel reports whether output contains Sentinel on a line of its own.
// Surrounding whitespace on that line is ignored.
func HasSentinel(output string) bool {
	scanner := bufio.NewScanner(strings.NewReader(output))
	// Agents can print very long lines (diffs, tool output).
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == Sentinel {
			return true
		}
	}
	return false
}
