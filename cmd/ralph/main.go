// Package main is the entry point for the ralph CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/prd"
)

// version is set at build time via -ldflags.
var version = "dev"

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1 // budget exhausted or any other failure
	exitPrereq      = 2
	exitParse       = 3
	exitUsage       = 64 // bad arguments, flags or ralph.toml; nothing ran
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	var rep reportedError
	if err != nil && !errors.As(err, &rep) {
		fmt.Fprintf(stderr, "ralph: %v\n", err)
	}
	return exitCode(err)
}

// reportedError marks an error the controller has already logged.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// usageError marks a bad command line or configuration file.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var pre *loop.PrerequisiteError
	var pe *prd.ParseError
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		return exitUsage
	case errors.As(err, &pre):
		return exitPrereq
	case errors.As(err, &pe):
		return exitParse
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
// After the first signal the handler is removed, so a second signal
// terminates the process immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}
