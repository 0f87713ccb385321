package main

import (
	"context"
	"fmt"
	"io"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/agent"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/archive"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/config"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/git"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/notify"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/status"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/store"
)

// executeLoop loads config, wires the controller and runs it. Errors the
// controller reports itself come back wrapped in reportedError.
func executeLoop(ctx context.Context, configPath string, maxIter int, stdout, stderr io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageError{err: err}
	}

	journal := openJournal(cfg, stderr)
	var notifier *notify.Notifier
	if cfg.Notifications.URL != "" {
		notifier = notify.New(cfg.Notifications.URL, cfg.Project.Name,
			cfg.Notifications.OnComplete, cfg.Notifications.OnError)
	}

	ctrl := &loop.Controller{
		Agent:    newAgent(cfg, stderr),
		Config:   cfg,
		Marker:   archive.NewFileMarker(cfg.Path(cfg.Files.LastBranch)),
		Reporter: status.New(cfg.Status.AccentColor),
		Log:      stdout,
		Hook:     newHook(journal, notifier, stderr),
	}
	if git.Available() {
		ctrl.Git = git.NewRunner(cfg.Dir)
	}

	_, runErr := ctrl.Run(ctx, maxIter)

	if notifier != nil {
		notifier.Wait()
	}
	if journal != nil {
		if sum, sumErr := journal.SessionSummary(); sumErr == nil {
			fmt.Fprintf(stderr, "Journal: %s (%d iteration(s), %d agent failure(s))\n",
				sum.Path, sum.Iterations, sum.AgentFailures)
		}
		if closeErr := journal.Close(); closeErr != nil {
			fmt.Fprintf(stderr, "journal: %v\n", closeErr)
		}
	}

	if runErr != nil {
		return reportedError{err: runErr}
	}
	return nil
}

// newAgent builds the exec-backed agent. Its output is teed live to stderr
// while being captured for completion detection.
func newAgent(cfg *config.Config, stderr io.Writer) *agent.Exec {
	a := agent.NewExec(cfg.Agent.Command, cfg.Agent.Args...)
	a.Dir = cfg.Dir
	a.Tee = stderr
	a.Timeout = cfg.IterationTimeout()
	a.Grace = cfg.ShutdownGrace()
	return a
}

// openJournal prunes old journals and opens this invocation's journal. A
// journal that cannot be opened is reported and skipped, returning a nil
// Store.
func openJournal(cfg *config.Config, stderr io.Writer) store.Store {
	dir := cfg.Path(cfg.Journal.Dir)
	if err := store.EnforceRetention(dir, cfg.Journal.Retention); err != nil {
		fmt.Fprintf(stderr, "journal: %v\n", err)
	}
	j, err := store.NewJSONL(dir)
	if err != nil {
		fmt.Fprintf(stderr, "journal: %v (continuing without journal)\n", err)
		return nil
	}
	return j
}

// newHook fans controller entries out to the journal and the notifier;
// either may be nil. The first journal write failure is reported and
// further writes are skipped.
func newHook(journal store.Writer, notifier *notify.Notifier, stderr io.Writer) func(loop.LogEntry) {
	journalOK := journal != nil
	return func(entry loop.LogEntry) {
		if journalOK {
			if err := journal.Append(entry); err != nil {
				fmt.Fprintf(stderr, "journal: %v (journal disabled)\n", err)
				journalOK = false
			}
		}
		if notifier != nil {
			notifier.Hook(entry)
		}
	}
}
