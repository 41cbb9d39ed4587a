package cli

import (
	"github.com/roach88/collcheck/internal/compiler"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/spf13/cobra"
)

// ChannelRoute is the resolved routing of one channel.
type ChannelRoute struct {
	Channel int64       `json:"channel"`
	Target  map[int]int `json:"target"`
}

// CompileResult is the JSON form of a compiled scenario.
type CompileResult struct {
	Scenario string         `json:"scenario"`
	Module   string         `json:"module"`
	Passes   []PassChange   `json:"passes"`
	Channels []ChannelRoute `json:"channels"`
	Listing  string         `json:"listing"`
}

// PassChange records whether a compiler pass changed the module.
type PassChange struct {
	Name    string `json:"name"`
	Changed bool   `json:"changed"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <scenario-file>",
		Short: "Compile a scenario's program and print its schedule",
		Long: `Compile the program of a scenario for the scenario's configuration and
print the pass results, the resolved route of every channel and the
per-computation schedule, including the completions each instruction waits on.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}
}

func runCompile(opts *RootOptions, file string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	s, err := harness.LoadScenario(file)
	if err != nil {
		_ = out.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	cfg, err := s.Config()
	if err != nil {
		_ = out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	text, err := s.ProgramText()
	if err != nil {
		_ = out.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read program", err)
	}
	m, err := harness.LoadProgram(text, cfg)
	if err != nil {
		_ = out.Error(ErrCodeProgram, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid program", err)
	}
	name := m.Name
	exe, err := compiler.Compile(m, cfg)
	if err != nil {
		_ = out.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitFailure, "compilation failed", err)
	}

	result := CompileResult{Scenario: s.Name, Module: name, Listing: exe.String()}
	for _, p := range exe.Passes() {
		result.Passes = append(result.Passes, PassChange{Name: p.Name, Changed: p.Changed})
	}
	for _, id := range exe.Channels() {
		route, _ := exe.Route(id)
		result.Channels = append(result.Channels, ChannelRoute{Channel: id, Target: route.Target})
	}
	return out.Success(result, result.Listing)
}
