package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	ByID bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <kind> <handle>",
		Short: "Print one record",
		Long: `Print a record as JSON.

The record is looked up by handle, or by its natural id with --id.

Examples:
  kinstore get person 0190a6c4-58f1-7b2e-9d1c-2f3a4b5c6d7e
  kinstore get person --id I0042`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ByID, "id", false, "look the record up by id instead of handle")

	return cmd
}

func runGet(ctx context.Context, opts *GetOptions, kindName, key string, cmd *cobra.Command) error {
	kind, err := record.ParseKind(kindName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	st, err := opts.openStore(ctx, cmd, false, store.WithReadOnly())
	if err != nil {
		return err
	}
	defer st.Close()

	var r record.Record
	if opts.ByID {
		r, err = st.GetByID(ctx, kind, key)
	} else {
		r, err = st.Get(ctx, kind, record.Handle(key))
	}
	if err != nil {
		return storeError(fmt.Sprintf("%s %s", kind, key), err)
	}

	text, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(string(text), r)
}
