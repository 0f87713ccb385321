// Package git reads repository state the controller reports alongside a run.
// The controller never commits or pushes; that is the agent's job.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes read-only git commands in a working directory.
type Runner struct {
	Dir string // working directory for git commands
}

// NewRunner creates a Runner for the given directory.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Available reports whether a git executable is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// CurrentBranch returns the name of the checked-out branch. A detached HEAD
// yields an empty name.
func (r *Runner) CurrentBranch() (string, error) {
	out, err := r.run("branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("git current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HasUncommittedChanges returns true if the working tree or index has changes.
func (r *Runner) HasUncommittedChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// LastCommit returns the short SHA and message of the most recent commit.
func (r *Runner) LastCommit() (string, error) {
	out, err := r.run("log", "-1", "--format=%h %s")
	if err != nil {
		return "", fmt.Errorf("git last commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// run executes a git command and returns its stdout.
func (r *Runner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s: %w", errMsg, err)
	}
	return stdout.String(), nil
}
