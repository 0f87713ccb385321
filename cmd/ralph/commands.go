package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/config"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/prd"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/status"
	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/store"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ralph [max_iterations]",
		Short: "Run a coding agent against prd.json until every story passes",
		Long: `Ralph runs the configured coding agent once per iteration with prompt.md on
stdin. After each iteration it checks for the completion signal and re-reads
prd.json. It stops when every story passes or max_iterations is reached.`,
		Version:       version,
		Args:          validateMaxIterations,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxIter, err := parseMaxIterations(args)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return executeLoop(ctx, stringFlag(cmd, "config"), maxIter, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.PersistentFlags().StringP("config", "c", "", "path to ralph.toml (default: search from the working directory up)")

	root.AddCommand(
		statusCmd(),
		nextCmd(),
		initCmd(),
	)
	return root
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show story status from prd.json",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := status.ParseFormat(stringFlag(cmd, "format"))
			if err != nil {
				return usageError{err: err}
			}
			cfg, p, err := loadTaskStore(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := status.New(cfg.Status.AccentColor).Write(out, p, format); err != nil {
				return err
			}
			if format == status.FormatText {
				if line := lastRunLine(cfg.Path(cfg.Journal.Dir)); line != "" {
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", string(status.FormatText), "output format: text, yaml or json")
	return cmd
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the story the agent should pick next",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, err := loadTaskStore(cmd)
			if err != nil {
				return err
			}
			return status.New(cfg.Status.AccentColor).RenderNext(cmd.OutOrStdout(), p)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold ralph.toml, prompt.md and a prd.json skeleton",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			created, err := config.ScaffoldProject(dir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatScaffoldResult(created))
			return nil
		},
	}
}

// validateMaxIterations is the root command's positional argument check.
func validateMaxIterations(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return usageError{err: err}
	}
	if _, err := parseMaxIterations(args); err != nil {
		return usageError{err: err}
	}
	return nil
}

// usageArgs marks failures of an argument validator as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

// parseMaxIterations returns the positional budget, or 0 when absent so the
// configured value applies.
func parseMaxIterations(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("max_iterations must be a positive integer, got %q", args[0])
	}
	return n, nil
}

func loadTaskStore(cmd *cobra.Command) (*config.Config, *prd.PRD, error) {
	cfg, err := config.Load(stringFlag(cmd, "config"))
	if err != nil {
		return nil, nil, usageError{err: err}
	}
	p, err := prd.Load(cfg.Path(cfg.Files.PRD))
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

// lastRunLine summarizes the newest journal, or returns "" if there is none.
func lastRunLine(dir string) string {
	path, err := store.Latest(dir)
	if err != nil || path == "" {
		return ""
	}
	s, err := store.Summarize(path)
	if err != nil {
		return ""
	}
	outcome := s.Outcome
	if outcome == "" {
		outcome = "running or interrupted"
	}
	line := fmt.Sprintf("\nLast run: %s after %d iteration(s)", outcome, s.Iterations)
	if s.AgentFailures > 0 {
		line += fmt.Sprintf(", %d agent failure(s)", s.AgentFailures)
	}
	if !s.StartedAt.IsZero() {
		line += ", started " + s.StartedAt.Format(time.DateTime)
	}
	return line
}

// formatScaffoldResult returns the user-facing summary of an init run.
func formatScaffoldResult(created []string) string {
	if len(created) == 0 {
		return "All files already exist, nothing to create.\n"
	}
	var b strings.Builder
	for _, path := range created {
		fmt.Fprintf(&b, "Created %s\n", path)
	}
	return b.String()
}

// stringFlag reads a string flag. Inherited persistent flags are merged
// into cmd.Flags() once cobra has parsed the command line.
func stringFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
