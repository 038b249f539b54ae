package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// RemoveOptions holds flags for the remove command.
type RemoveOptions struct {
	*RootOptions
	Force bool
}

// RemoveResult is the JSON payload of the remove command.
type RemoveResult struct {
	Changes    []store.Change `json:"changes"`
	Referenced []record.Ref   `json:"referenced_by,omitempty"`
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remove <kind> <handle>",
		Short: "Delete one record",
		Long: `Delete a record and the references it owns.

Records that still reference it are left untouched, so by default a
referenced record is not removed; --force removes it anyway and leaves
the references dangling.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), opts, args[0], record.Handle(args[1]), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "remove even when other records reference it")

	return cmd
}

func runRemove(ctx context.Context, opts *RemoveOptions, kindName string, h record.Handle, cmd *cobra.Command) error {
	kind, err := record.ParseKind(kindName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	st, err := opts.openStore(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer st.Close()

	refs, err := st.Backlinks(ctx, h)
	if err != nil {
		return storeError("failed to read backlinks", err)
	}
	if len(refs) > 0 && !opts.Force {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s %s is referenced by %d record(s); use --force to remove it anyway", kind, h, len(refs)))
	}

	desc := fmt.Sprintf("remove %s %s", kind, h)
	txn, err := st.Begin(ctx, desc)
	if err != nil {
		return storeError(desc, err)
	}
	if err := st.Remove(ctx, txn, kind, h); err != nil {
		if !store.IsTransactionAbort(err) {
			txn.Abort()
		}
		return storeError(desc, err)
	}
	changes, err := txn.Commit()
	if err != nil {
		return storeError(desc, err)
	}

	return opts.formatter(cmd).Success(fmt.Sprintf("✓ removed %s %s", kind, h), RemoveResult{Changes: changes, Referenced: refs})
}
