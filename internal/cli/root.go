package cli

import (
	"flag"
	"fmt"
	"slices"

	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/store"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Devices overrides the device count of the local backend; 0 reads
	// $COLLCHECK_NUM_DEVICES.
	Devices int

	// Database is the run history; empty disables recording.
	Database string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the collcheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)

	cmd := &cobra.Command{
		Use:   "collcheck",
		Short: "Correctness harness for replica-parallel send/recv programs",
		Long: `collcheck runs programs whose replicas exchange values over send/recv
channels, grouped into async start/done pairs, and checks that every replica
finishes with the expected outputs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Devices < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid device count %d", opts.Devices))
			}
			if opts.Verbose && !klog.V(1).Enabled() {
				_ = klogFlags.Set("v", "1")
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false, "verbose output (same as -v=1)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().IntVar(&opts.Devices, "devices", 0, "number of local devices (default $COLLCHECK_NUM_DEVICES or 8)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "run history database (SQLite)")
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

// backend returns the local backend sized by the --devices flag.
func (o *RootOptions) backend() harness.Backend {
	if o.Devices > 0 {
		return harness.Local(o.Devices)
	}
	return harness.DefaultBackend()
}

// openStore opens the history database. When required is false and no
// database is configured it returns nil.
func (o *RootOptions) openStore(required bool) (*store.Store, error) {
	if o.Database == "" {
		if required {
			return nil, NewExitError(ExitCommandError, "no history database: pass --db")
		}
		return nil, nil
	}
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
