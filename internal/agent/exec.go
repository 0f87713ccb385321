package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Exec implements Command by spawning an executable. The prompt is fed on
// stdin and output is captured while being teed to Tee.
type Exec struct {
	// Executable is the agent binary, e.g. "claude".
	Executable string
	Args       []string
	Dir        string

	// Tee receives a live copy of the agent's output. May be nil.
	Tee io.Writer

	// Timeout bounds a single invocation. Zero means no timeout.
	Timeout time.Duration

	// Grace is how long the agent gets to exit after SIGTERM before it is
	// killed.
	Grace time.Duration
}

// NewExec creates an Exec for the given executable and arguments.
func NewExec(executable string, args ...string) *Exec {
	return &Exec{Executable: executable, Args: args, Grace: 10 * time.Second}
}

// Run starts the agent and waits for it to exit. If ctx is cancelled the
// agent's process group receives SIGTERM and Run returns ctx.Err().
func (e *Exec) Run(ctx context.Context, prompt []byte) (Result, error) {
	if e.Executable == "" {
		return Result{}, errors.New("agent: no executable configured")
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.Executable, e.Args...)
	cmd.Dir = e.Dir
	cmd.Stdin = bytes.NewReader(prompt)

	var captured bytes.Buffer
	var out io.Writer = &captured
	if e.Tee != nil {
		out = io.MultiWriter(&captured, e.Tee)
	}
	// A single comparable writer for both streams keeps writes serialized.
	cmd.Stdout = out
	cmd.Stderr = out
	configureProcess(cmd, e.Grace)

	err := cmd.Run()
	res := Result{Output: captured.String()}

	if ctx.Err() != nil {
		res.ExitCode = exitCode(cmd, err)
		return res, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = exitCode(cmd, err)
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("agent: run %s: %w", e.Executable, err)
	}
}

// exitCode returns the process exit code, or -1 if the process was killed
// or never started.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
