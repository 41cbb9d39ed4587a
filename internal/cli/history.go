package cli

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/store"
	"github.com/spf13/cobra"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Scenario string
	Status   string
	Limit    int
}

// HistoryEntry is one listed run.
type HistoryEntry struct {
	RunID             string         `json:"run_id"`
	Seq               int64          `json:"seq"`
	Scenario          string         `json:"scenario"`
	Status            harness.Status `json:"status"`
	Reason            string         `json:"reason,omitempty"`
	Transfers         int64          `json:"transfers"`
	Bytes             int64          `json:"bytes"`
	Duration          time.Duration  `json:"duration_ns"`
	RecordedAt        time.Time      `json:"recorded_at"`
	OutputFingerprint string         `json:"output_fingerprint,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Long: `List runs recorded by "test" and "run" in the --db history database.

Examples:
  collcheck history --db history.db
  collcheck history --db history.db --scenario async_send_recv --status fail`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (pass|fail|skip)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	switch harness.Status(opts.Status) {
	case "", harness.StatusPass, harness.StatusFail, harness.StatusSkip:
	default:
		return NewExitError(ExitCommandError, "invalid status "+strconv.Quote(opts.Status))
	}
	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), store.Filter{
		Scenario: opts.Scenario,
		Status:   harness.Status(opts.Status),
		Limit:    opts.Limit,
	})
	if err != nil {
		_ = out.Error(ErrCodeHistory, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	entries := make([]HistoryEntry, len(runs))
	rows := make([][]string, len(runs))
	for i, r := range runs {
		entries[i] = HistoryEntry{
			RunID:             r.ID,
			Seq:               r.Seq,
			Scenario:          r.Scenario,
			Status:            r.Status,
			Reason:            r.Reason,
			Transfers:         r.Transfers,
			Bytes:             r.Bytes,
			Duration:          r.Duration,
			RecordedAt:        r.RecordedAt,
			OutputFingerprint: r.OutputFingerprint,
		}
		rows[i] = []string{
			r.ID,
			r.Scenario,
			string(r.Status),
			humanize.Time(r.RecordedAt),
			strconv.FormatInt(r.Transfers, 10),
			humanize.Bytes(uint64(r.Bytes)),
			r.Reason,
		}
	}
	if len(runs) == 0 {
		return out.Success(entries, "No runs recorded.\n")
	}
	return out.Success(entries, renderTable(
		[]string{"run", "scenario", "status", "recorded", "transfers", "bytes", "reason"}, rows))
}
