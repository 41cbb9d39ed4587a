package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/collcheck/internal/engine"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Trace bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario and print every replica's outputs",
		Long: `Run one scenario and print its outcome, transfer statistics and the
outputs of every replica. --trace adds the per-replica event trace.

Exit codes:
  0 - The scenario passed or was skipped
  1 - The scenario failed
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the event trace of every replica")

	return cmd
}

func runRun(opts *RunOptions, file string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	s, err := harness.LoadScenario(file)
	if err != nil {
		_ = out.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	st, err := opts.openStore(false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	outcome := harness.Run(cmd.Context(), s, harness.WithBackend(opts.backend()))
	if st != nil {
		recordOutcome(cmd, st, s, outcome)
	}
	out.VerboseLog("run %s took %s", outcome.RunID, outcome.Duration)

	text := outcome.String()
	if opts.Trace {
		text += formatTrace(outcome.Trace, s.Replicas)
	} else {
		outcome.Trace = nil
	}
	if err := out.Success(outcome, text); err != nil {
		return err
	}
	if outcome.Status == harness.StatusFail {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", outcome.Scenario))
	}
	return nil
}

func formatTrace(events []engine.Event, replicas int) string {
	var sb strings.Builder
	for r := range replicas {
		fmt.Fprintf(&sb, "trace of replica %d:\n", r)
		for _, e := range engine.ForReplica(events, r) {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
	}
	return sb.String()
}
