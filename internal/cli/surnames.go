package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// NewSurnamesCommand creates the surnames command.
func NewSurnamesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "surnames [surname]",
		Short: "List surnames, or the people filed under one",
		Long: `Without an argument, list every surname in collation order.
With a surname, list the handles of the people filed under it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurnames(cmd.Context(), rootOpts, args, cmd)
		},
	}
}

func runSurnames(ctx context.Context, opts *RootOptions, args []string, cmd *cobra.Command) error {
	st, err := opts.openStore(ctx, cmd, false, store.WithReadOnly())
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	if len(args) == 0 {
		names := st.Surnames()
		if names == nil {
			names = []string{}
		}
		return f.Success(strings.Join(names, "\n"), names)
	}

	hs, err := st.SurnameHandles(ctx, args[0])
	if err != nil {
		return storeError("failed to read surname index", err)
	}
	if hs == nil {
		hs = []record.Handle{}
	}
	lines := make([]string, len(hs))
	for i, h := range hs {
		lines[i] = string(h)
	}
	return f.Success(strings.Join(lines, "\n"), hs)
}
