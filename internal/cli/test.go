package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/canon"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter   string // scenario filter (glob pattern)
	Update   bool   // regenerate golden files
	Progress bool   // show a progress bar on stderr
}

// ScenarioResult holds the result of a single scenario.
type ScenarioResult struct {
	File     string         `json:"file"`
	Name     string         `json:"name"`
	Status   harness.Status `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run scenarios and check their outputs",
		Long: `Run scenario files (YAML, JSON, CUE or HCL) and check every replica's
outputs. Directories are searched recursively. A scenario that needs more
devices than available is skipped, not failed.

When golden/<name>.golden exists next to a scenario, the outputs must also
match it; --update rewrites the golden files.

Exit codes:
  0 - All scenarios passed or were skipped
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  collcheck test ./scenarios
  collcheck test ./scenarios --filter "async_*" --progress
  collcheck test ./scenarios --db history.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().BoolVar(&opts.Progress, "progress", false, "show a progress bar")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	st, err := opts.openStore(false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		return out.Success(result, "No scenarios found.\n")
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(out.GetErrWriter()),
			progressbar.OptionSetDescription("scenarios"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	backend := opts.backend()
	for _, file := range files {
		r := runScenarioFile(cmd, opts, backend, st, file)
		result.Scenarios = append(result.Scenarios, r)
		switch r.Status {
		case harness.StatusPass:
			result.Passed++
		case harness.StatusSkip:
			result.Skipped++
		default:
			result.Failed++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := out.Success(result, formatTestResult(out, result)); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// runScenarioFile loads, runs, checks and records one scenario file.
func runScenarioFile(cmd *cobra.Command, opts *TestOptions, backend harness.Backend, st *store.Store, file string) ScenarioResult {
	s, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{File: file, Name: filepath.Base(file), Status: harness.StatusFail,
			Reason: fmt.Sprintf("load error: %v", err)}
	}
	outcome := harness.Run(cmd.Context(), s, harness.WithBackend(backend))
	if outcome.Status == harness.StatusPass {
		if err := checkGolden(file, outcome, opts.Update); err != nil {
			outcome.Status, outcome.Reason = harness.StatusFail, err.Error()
		}
	}
	if st != nil {
		recordOutcome(cmd, st, s, outcome)
	}
	return ScenarioResult{
		File:     file,
		Name:     outcome.Scenario,
		Status:   outcome.Status,
		Reason:   outcome.Reason,
		RunID:    outcome.RunID,
		Duration: outcome.Duration,
	}
}

// recordOutcome appends outcome to the history. Failures to record are
// logged, they do not change the result.
func recordOutcome(cmd *cobra.Command, st *store.Store, s *harness.Scenario, outcome *harness.Outcome) {
	row, err := store.FromOutcome(s, outcome)
	if err == nil {
		_, err = st.RecordRun(cmd.Context(), row)
	}
	if err != nil {
		klog.Warningf("not recording run %s of %s: %v", outcome.RunID, outcome.Scenario, err)
	}
}

// goldenFilePath returns the path to the golden file for a scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// goldenSnapshot is the canonical JSON of the outputs of every replica.
func goldenSnapshot(outcome *harness.Outcome) ([]byte, error) {
	replicas := make([]any, len(outcome.Outputs))
	for r, out := range outcome.Outputs {
		values := make([]any, len(out))
		for i, l := range out {
			values[i] = l.Encodable()
		}
		replicas[r] = values
	}
	data, err := canon.Marshal(map[string]any{
		"scenario": outcome.Scenario,
		"outputs":  replicas,
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// checkGolden compares outcome with the scenario's golden file, or rewrites
// it when update is set. A missing golden file is not an error.
func checkGolden(scenarioFile string, outcome *harness.Outcome, update bool) error {
	path := goldenFilePath(scenarioFile)
	snapshot, err := goldenSnapshot(outcome)
	if err != nil {
		return errors.WithMessage(err, "golden snapshot")
	}
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrap(err, "failed to create golden directory")
		}
		return errors.Wrap(os.WriteFile(path, snapshot, 0o644), "failed to write golden file")
	}
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read golden file")
	}
	if !bytes.Equal(want, snapshot) {
		return errors.Errorf("outputs do not match %s (run with --update to regenerate)", path)
	}
	return nil
}

func formatTestResult(out *OutputFormatter, result TestResult) string {
	var sb strings.Builder
	rows := make([][]string, len(result.Scenarios))
	for i, r := range result.Scenarios {
		rows[i] = []string{r.Name, string(r.Status), r.Duration.Round(time.Millisecond).String(), r.Reason}
	}
	sb.WriteString(renderTable([]string{"scenario", "status", "time", "reason"}, rows))
	status := harness.StatusPass
	if result.Failed > 0 {
		status = harness.StatusFail
	}
	fmt.Fprintf(&sb, "%s %d passed, %d failed, %d skipped (%d total)\n",
		out.statusMark(status), result.Passed, result.Failed, result.Skipped, result.Total)
	return sb.String()
}
