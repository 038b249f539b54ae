package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Backend string
}

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Dir     string `json:"dir"`
	Backend string `json:"backend"`
	Version int    `json:"version"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty store",
		Long: `Create an empty store in the store directory.

Opening an existing store is not an error: init then reports the
backend and format version already in place, upgrading an older
supported format.

Examples:
  kinstore init --dir ./tree
  kinstore init --dir ./tree --backend badger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "", "storage engine for a new store (sqlite|badger)")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, cmd *cobra.Command) error {
	var extra []store.Option
	switch opts.Backend {
	case "":
	case store.BackendSQLite, store.BackendBadger:
		extra = append(extra, store.WithBackend(opts.Backend))
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", opts.Backend))
	}

	st, err := opts.openStore(ctx, cmd, true, extra...)
	if err != nil {
		return err
	}
	defer st.Close()

	res := InitResult{Dir: st.Dir(), Backend: st.Backend(), Version: st.Version()}
	return opts.formatter(cmd).Success(
		fmt.Sprintf("✓ store ready in %s (%s, version %d)", res.Dir, res.Backend, res.Version),
		res,
	)
}
