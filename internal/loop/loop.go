// Package loop drives the agent against the task store until every story
// passes or the iteration budget runs out.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/agent"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/archive"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/config"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/prd"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/progress"
)

// ErrBudgetExhausted is returned when max iterations ran without the run
// completing.
var ErrBudgetExhausted = errors.New("loop: iteration budget exhausted")

// Completion signals recorded in Result.Signal and LogEntry.Signal.
const (
	SignalSentinel  = "sentinel"
	SignalTaskStore = "task_store"
)

// Reporter renders the task store for the operator. *status.Reporter
// satisfies this interface.
type Reporter interface {
	Render(w io.Writer, p *prd.PRD) error
}

// GitInfo reads repository state for operator warnings. *git.Runner
// satisfies this interface.
type GitInfo interface {
	CurrentBranch() (string, error)
	HasUncommittedChanges() (bool, error)
	LastCommit() (string, error)
}

// Controller runs the loop once per invocation. Agent, Config and Marker are
// required; everything else is optional.
type Controller struct {
	Agent    agent.Command
	Config   *config.Config
	Marker   archive.Marker
	Reporter Reporter
	Git      GitInfo
	Log      io.Writer      // controller lines; defaults to os.Stdout
	Status   io.Writer      // status reports; defaults to Log
	Hook     func(LogEntry) // receives every emitted entry

	LookPath func(string) (string, error) // defaults to exec.LookPath
	Now      func() time.Time             // defaults to time.Now

	state State
}

// Result summarizes a finished run.
type Result struct {
	State      State
	Iterations int    // agent invocations performed
	Failures   int    // invocations that exited nonzero or timed out
	Signal     string // completion signal; empty unless State is StateComplete
}

// Run executes the state machine. maxIter overrides the configured budget
// when positive.
//
// It returns nil on success (already complete, or completed within budget),
// *PrerequisiteError when something required is missing, *prd.ParseError
// when the task store cannot be read, ErrBudgetExhausted when the budget
// runs out and ctx.Err() when ctx is cancelled. Agent failures are logged
// and never returned.
func (c *Controller) Run(ctx context.Context, maxIter int) (Result, error) {
	c.state = StateInit
	if maxIter <= 0 {
		maxIter = c.Config.Loop.MaxIterations
	}
	prdPath := c.Config.Path(c.Config.Files.PRD)
	promptPath := c.Config.Path(c.Config.Files.Prompt)

	c.emit(LogEntry{Kind: LogInfo, MaxIter: maxIter,
		Message: fmt.Sprintf("Starting Ralph - Max iterations: %d", maxIter)})

	c.state = StateCheckPrereqs
	if pe := c.checkPrereqs(prdPath, promptPath); pe != nil {
		for _, m := range pe.Missing {
			c.emit(LogEntry{Kind: LogPrereqMissing, Message: "Missing prerequisite: " + m.String()})
		}
		return c.finish(Result{}, StateFailed), pe
	}

	p, err := prd.Load(prdPath)
	if err != nil {
		return c.fail(Result{}, "Task store unreadable", err)
	}

	c.state = StateMaybeArchive
	c.rollover(p.BranchName, prdPath)

	c.state = StateEnsureProgressLog
	progressPath := c.Config.Path(c.Config.Files.Progress)
	created, err := progress.Ensure(progressPath, c.now())
	switch {
	case err != nil:
		c.emit(LogEntry{Kind: LogWarning, Message: fmt.Sprintf("Progress log: %v (continuing)", err)})
	case created:
		c.emit(LogEntry{Kind: LogInfo, Message: "Created progress log " + c.Config.Files.Progress})
	}

	c.state = StateReportStatus
	c.report(p)
	c.checkGit(p.BranchName)

	if p.IsComplete() {
		c.emit(LogEntry{Kind: LogDone, Branch: p.BranchName, Message: "All stories already complete"})
		return c.finish(Result{}, StateAlreadyComplete), nil
	}

	prompt, err := os.ReadFile(promptPath)
	if err != nil {
		return c.fail(Result{}, "Prompt unreadable", fmt.Errorf("loop: read prompt %s: %w", promptPath, err))
	}

	c.state = StateIterate
	var res Result
	for i := 1; i <= maxIter; i++ {
		if ctx.Err() != nil {
			return c.stop(res, ctx.Err())
		}

		out, elapsed, runErr := c.iteration(ctx, i, maxIter, prompt)
		if runErr != nil {
			if ctx.Err() != nil {
				return c.stop(res, ctx.Err())
			}
			return c.fail(res, "Agent could not run", fmt.Errorf("loop: iteration %d: %w", i, runErr))
		}
		res.Iterations = i
		if out.Failed() {
			res.Failures++
		}

		if agent.HasSentinel(out.Output) {
			res.Signal = SignalSentinel
			c.emit(LogEntry{Kind: LogDone, Iteration: i, MaxIter: maxIter, Signal: SignalSentinel,
				ExitCode: out.ExitCode, Duration: elapsed, Branch: p.BranchName, Message: fmt.Sprintf("Completion signal received at iteration %d of %d", i, maxIter)})
			c.reportFresh(prdPath, p)
			return c.finish(res, StateComplete), nil
		}

		// Always reload: the agent owns the file between iterations.
		p, err = prd.Load(prdPath)
		if err != nil {
			return c.fail(res, "Task store unreadable", err)
		}
		if p.IsComplete() {
			res.Signal = SignalTaskStore
			c.emit(LogEntry{Kind: LogDone, Iteration: i, MaxIter: maxIter, Signal: SignalTaskStore,
				ExitCode: out.ExitCode, Duration: elapsed, Branch: p.BranchName, Message: fmt.Sprintf("All stories complete at iteration %d of %d", i, maxIter)})
			c.report(p)
			return c.finish(res, StateComplete), nil
		}

		passing, total := p.Counts()
		c.emit(LogEntry{Kind: LogIterComplete, Iteration: i, MaxIter: maxIter, Duration: elapsed,
			Message: fmt.Sprintf("Iteration %d complete, %d of %d stories passing", i, passing, total)})

		if i < maxIter {
			if err := c.pause(ctx); err != nil {
				return c.stop(res, err)
			}
		}
	}

	c.emit(LogEntry{Kind: LogExhausted, MaxIter: maxIter, Branch: p.BranchName,
		Message: fmt.Sprintf("Reached max iterations (%d) without completing all stories", maxIter)})
	c.report(p)
	return c.finish(res, StateExhausted), ErrBudgetExhausted
}

// iteration invokes the agent once and returns its result and wall time in
// seconds. Nonzero exits and timeouts are logged here.
func (c *Controller) iteration(ctx context.Context, n, maxIter int, prompt []byte) (agent.Result, float64, error) {
	c.emit(LogEntry{Kind: LogIterStart, Iteration: n, MaxIter: maxIter,
		Message: fmt.Sprintf("── iteration %d of %d ──", n, maxIter)})

	start := c.now()
	out, err := c.Agent.Run(ctx, prompt)
	if err != nil {
		return out, 0, err
	}
	elapsed := c.now().Sub(start).Seconds()

	switch {
	case out.TimedOut:
		c.emit(LogEntry{Kind: LogAgentFailure, Iteration: n, MaxIter: maxIter, TimedOut: true, Duration: elapsed,
			Message: fmt.Sprintf("Agent timed out after %.1fs (continuing)", elapsed)})
	case out.ExitCode != 0:
		c.emit(LogEntry{Kind: LogAgentFailure, Iteration: n, MaxIter: maxIter, ExitCode: out.ExitCode, Duration: elapsed,
			Message: fmt.Sprintf("Agent exited with code %d after %.1fs (continuing)", out.ExitCode, elapsed)})
	default:
		c.emit(LogEntry{Kind: LogInfo, Iteration: n, MaxIter: maxIter, Duration: elapsed,
			Message: fmt.Sprintf("Agent finished in %.1fs", elapsed)})
	}

	if c.Git != nil {
		if commit, gitErr := c.Git.LastCommit(); gitErr == nil && commit != "" {
			c.emit(LogEntry{Kind: LogInfo, Iteration: n, Message: "HEAD: " + commit})
		}
	}
	return out, elapsed, nil
}

// rollover archives the previous run if the branch changed. Failures are
// logged, never fatal.
func (c *Controller) rollover(branch, prdPath string) {
	mgr := archive.Manager{
		Dir:          c.Config.Path(c.Config.Files.ArchiveDir),
		PRDPath:      prdPath,
		ProgressPath: c.Config.Path(c.Config.Files.Progress),
		Marker:       c.Marker,
		Now:          c.Now,
	}
	entry, archived, err := mgr.Rollover(branch)
	// A failed attempt that copied nothing is only a warning.
	if archived && (err == nil || len(entry.Copied) > 0) {
		c.emit(LogEntry{Kind: LogArchive, Branch: entry.PreviousBranch, ArchivePath: entry.Path,
			Message: fmt.Sprintf("Archived previous run (%s) to %s", entry.PreviousBranch, entry.Path)})
	}
	if err != nil {
		c.emit(LogEntry{Kind: LogWarning, Message: fmt.Sprintf("Archive: %v (continuing)", err)})
	}
}

// checkGit warns when the checked-out branch is not the task store's branch.
// Git being absent or the directory not being a repository is ignored.
func (c *Controller) checkGit(branch string) {
	if c.Git == nil {
		return
	}
	current, err := c.Git.CurrentBranch()
	if err != nil {
		return
	}
	if current != "" && current != branch {
		c.emit(LogEntry{Kind: LogWarning, Branch: branch,
			Message: fmt.Sprintf("Checked out branch %q differs from task store branch %q", current, branch)})
	}
	if dirty, dirtyErr := c.Git.HasUncommittedChanges(); dirtyErr == nil && dirty {
		c.emit(LogEntry{Kind: LogInfo, Message: "Working tree has uncommitted changes"})
	}
}

func (c *Controller) pause(ctx context.Context) error {
	d := c.Config.IterationDelay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) report(p *prd.PRD) {
	if c.Reporter == nil {
		return
	}
	if err := c.Reporter.Render(c.statusWriter(), p); err != nil {
		c.emit(LogEntry{Kind: LogWarning, Message: fmt.Sprintf("Status: %v", err)})
	}
}

// reportFresh re-reads the task store for the final report, falling back to
// the last good copy.
func (c *Controller) reportFresh(path string, last *prd.PRD) {
	if p, err := prd.Load(path); err == nil {
		last = p
	}
	c.report(last)
}

func (c *Controller) fail(res Result, what string, err error) (Result, error) {
	c.emit(LogEntry{Kind: LogError, Message: fmt.Sprintf("%s: %v", what, err)})
	return c.finish(res, StateFailed), err
}

func (c *Controller) stop(res Result, err error) (Result, error) {
	c.emit(LogEntry{Kind: LogStopped, Iteration: res.Iterations, Message: fmt.Sprintf("Loop stopped: %v", err)})
	return c.finish(res, StateStopped), err
}

func (c *Controller) finish(res Result, s State) Result {
	c.state = s
	res.State = s
	return res
}

// emit stamps entry with the current state, writes it as a log line and
// forwards it to Hook.
func (c *Controller) emit(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	entry.State = c.state
	c.logf(entry.Timestamp, "%s", entry.Message)
	if c.Hook != nil {
		c.Hook(entry)
	}
}

func (c *Controller) logf(ts time.Time, format string, args ...any) {
	fmt.Fprintf(c.logWriter(), "[%s]  %s\n", ts.Format("15:04:05"), fmt.Sprintf(format, args...))
}

func (c *Controller) logWriter() io.Writer {
	if c.Log == nil {
		return os.Stdout
	}
	return c.Log
}

func (c *Controller) statusWriter() io.Writer {
	if c.Status == nil {
		return c.logWriter()
	}
	return c.Status
}

func (c *Controller) lookPath(name string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(name)
	}
	return exec.LookPath(name)
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
