package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/collcheck/internal/harness"
	"github.com/spf13/cobra"
)

// ValidationEntry is the validation result of one scenario file.
type ValidationEntry struct {
	File         string `json:"file"`
	Name         string `json:"name,omitempty"`
	Valid        bool   `json:"valid"`
	Error        string `json:"error,omitempty"`
	Computations int    `json:"computations,omitempty"`
	Instructions int    `json:"instructions,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Entries []ValidationEntry `json:"entries"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Check scenarios and their programs without running them",
		Long: `Validate scenario manifests against the scenario schema, then parse and
verify their programs: shapes, channel pairing, async groups and control
edges. Nothing is executed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	files, err := findScenarioFiles(paths, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := ValidationResult{Valid: true, Entries: make([]ValidationEntry, 0, len(files))}
	for _, file := range files {
		entry := validateFile(file)
		result.Valid = result.Valid && entry.Valid
		result.Entries = append(result.Entries, entry)
	}

	var sb strings.Builder
	for _, e := range result.Entries {
		if e.Valid {
			fmt.Fprintf(&sb, "%s %s (%d computations, %d instructions)\n",
				out.statusMark(harness.StatusPass), e.File, e.Computations, e.Instructions)
			continue
		}
		fmt.Fprintf(&sb, "%s %s\n  %s\n", out.statusMark(harness.StatusFail), e.File, e.Error)
	}
	if err := out.Success(result, sb.String()); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(file string) ValidationEntry {
	entry := ValidationEntry{File: file}
	s, err := harness.LoadScenario(file)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Name = s.Name
	cfg, err := s.Config()
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	text, err := s.ProgramText()
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	m, err := harness.LoadProgram(text, cfg)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Valid = true
	entry.Computations = len(m.Computations)
	for _, c := range m.Computations {
		entry.Instructions += len(c.Instructions)
	}
	return entry
}
