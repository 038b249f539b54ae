package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// BacklinksOptions holds flags for the backlinks command.
type BacklinksOptions struct {
	*RootOptions
	Kinds []string
}

// NewBacklinksCommand creates the backlinks command.
func NewBacklinksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BacklinksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backlinks <handle>",
		Short: "List the records that reference a handle",
		Long: `List every record that references the given handle, read from the
reference map. The handle need not belong to a stored record.

Examples:
  kinstore backlinks 0190a6c4-58f1-7b2e-9d1c-2f3a4b5c6d7e
  kinstore backlinks n1 --kind person --kind family`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacklinks(cmd.Context(), opts, record.Handle(args[0]), cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only list referencing records of this kind (repeatable)")

	return cmd
}

func runBacklinks(ctx context.Context, opts *BacklinksOptions, target record.Handle, cmd *cobra.Command) error {
	kinds := make([]record.Kind, 0, len(opts.Kinds))
	for _, name := range opts.Kinds {
		k, err := record.ParseKind(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
		kinds = append(kinds, k)
	}

	st, err := opts.openStore(ctx, cmd, false, store.WithReadOnly())
	if err != nil {
		return err
	}
	defer st.Close()

	refs, err := st.Backlinks(ctx, target, kinds...)
	if err != nil {
		return storeError("failed to read backlinks", err)
	}
	if refs == nil {
		refs = []record.Ref{}
	}

	lines := make([]string, 0, len(refs)+1)
	for _, r := range refs {
		lines = append(lines, fmt.Sprintf("%-10s %s", r.Kind, r.Handle))
	}
	if len(refs) == 0 {
		lines = append(lines, fmt.Sprintf("no records reference %s", target))
	}
	return opts.formatter(cmd).Success(strings.Join(lines, "\n"), refs)
}
