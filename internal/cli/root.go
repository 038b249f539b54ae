package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/config"
	"github.com/roach88/kinstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dir     string // store directory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kinstore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stderr, or as a JSON error response on stdout with
// --format json. Failures (exit code 1) carry their own JSON response, so
// only command errors get one here.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	code := GetExitCode(err)
	var exitErr *ExitError
	reported := errors.As(err, &exitErr) && exitErr.Code == ExitFailure
	if opts.Format == "json" && !reported {
		f := &OutputFormatter{Format: "json", Writer: stdout}
		_ = f.Error(errorCode(err), err.Error(), nil)
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return code
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kinstore",
		Short: "kinstore - embedded family tree store",
		Long: `Inspect, load, check and repair kinstore family tree databases.

A store lives in a directory. Settings are read from kinstore.yaml in
that directory when present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "d", ".", "store directory")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewBacklinksCommand(opts))
	cmd.AddCommand(NewSurnamesCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns a text logger on stderr at the configured level, or at
// debug level with --verbose.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openStore loads the settings of the store directory and opens the store.
// Unless create is set, a missing store is a command error.
func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command, create bool, extra ...store.Option) (*store.Store, error) {
	cfg, err := config.LoadDir(o.Dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	opts := append(cfg.StoreOptions(),
		store.WithLogger(o.logger(cmd, cfg)),
		store.WithCreate(create),
	)
	st, err := store.Open(ctx, o.Dir, append(opts, extra...)...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("no store in %s (run kinstore init)", o.Dir), err)
		}
		return nil, storeError("failed to open store", err)
	}
	return st, nil
}
