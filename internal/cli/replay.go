package cli

import (
	"fmt"

	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/store"
	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Last   string // replay the latest run of this scenario
	Record bool   // record the replayed run
}

// ReplayResult compares a stored run with its replay.
type ReplayResult struct {
	RunID         string         `json:"run_id"`
	ReplayRunID   string         `json:"replay_run_id"`
	Scenario      string         `json:"scenario"`
	Status        harness.Status `json:"status"`
	ReplayStatus  harness.Status `json:"replay_status"`
	Fingerprint   string         `json:"output_fingerprint,omitempty"`
	ReplayPrint   string         `json:"replay_output_fingerprint,omitempty"`
	Deterministic bool           `json:"deterministic"`
	Reason        string         `json:"reason,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-run a recorded run and verify determinism",
		Long: `Re-run a recorded run from the manifest stored with it and check that the
replay has the same status, program and outputs.

Exit codes:
  0 - The replay matches the recorded run
  1 - The replay diverged
  2 - Command error (database not found, unknown run, etc.)

Examples:
  collcheck replay --db history.db 01890a5d-ac96-774b-bcce-b302099a8057
  collcheck replay --db history.db --last async_send_recv`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Last, "last", "", "replay the latest run of this scenario")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the replayed run in the history")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if (len(args) == 1) == (opts.Last != "") {
		return NewExitError(ExitCommandError, "pass either a run id or --last <scenario>")
	}
	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	var recorded store.Run
	if opts.Last != "" {
		recorded, err = st.LatestRun(cmd.Context(), opts.Last)
	} else {
		recorded, err = st.GetRun(cmd.Context(), args[0])
	}
	if err != nil {
		_ = out.Error(ErrCodeReplay, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no such run", err)
	}
	s, err := recorded.LoadScenario()
	if err != nil {
		_ = out.Error(ErrCodeReplay, err.Error(), nil)
		return WrapExitError(ExitCommandError, "stored manifest is invalid", err)
	}

	outcome := harness.Run(cmd.Context(), s, harness.WithBackend(opts.backend()))
	if opts.Record {
		recordOutcome(cmd, st, s, outcome)
	}
	result := compareReplay(recorded, outcome)

	text := fmt.Sprintf("%s replay of %s (%s): %s\n",
		out.statusMark(passIf(result.Deterministic)), result.RunID, result.Scenario, replaySummary(result))
	if err := out.Success(result, text); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged: "+result.Reason)
	}
	return nil
}

// compareReplay checks outcome against the recorded run.
func compareReplay(recorded store.Run, outcome *harness.Outcome) ReplayResult {
	result := ReplayResult{
		RunID:        recorded.ID,
		ReplayRunID:  outcome.RunID,
		Scenario:     recorded.Scenario,
		Status:       recorded.Status,
		ReplayStatus: outcome.Status,
		Fingerprint:  recorded.OutputFingerprint,
		ReplayPrint:  outcome.OutputFingerprint,
	}
	switch {
	case recorded.Status != outcome.Status:
		result.Reason = fmt.Sprintf("status %s, recorded %s", outcome.Status, recorded.Status)
	case recorded.ProgramFingerprint != "" && recorded.ProgramFingerprint != outcome.ProgramFingerprint:
		result.Reason = "program fingerprint differs"
	case recorded.OutputFingerprint != outcome.OutputFingerprint:
		result.Reason = "outputs differ"
	default:
		result.Deterministic = true
	}
	return result
}

func replaySummary(r ReplayResult) string {
	if !r.Deterministic {
		return "diverged: " + r.Reason
	}
	if r.Fingerprint == "" {
		return fmt.Sprintf("%s again", r.Status)
	}
	return fmt.Sprintf("%s again, outputs match (%s)", r.Status, shortFingerprint(r.Fingerprint))
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func passIf(ok bool) harness.Status {
	if ok {
		return harness.StatusPass
	}
	return harness.StatusFail
}

