package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RebuildOptions holds flags for the rebuild command.
type RebuildOptions struct {
	*RootOptions
	Index string
}

// RebuildResult is the JSON payload of the rebuild command.
type RebuildResult struct {
	Index   string `json:"index,omitempty"`
	Records int    `json:"records"`
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild indices and the reference map",
		Long: `Drop and refill every derived structure from the records.

Rebuilding is idempotent: on a healthy store it changes nothing. With
--index only the named secondary index is rebuilt.

Examples:
  kinstore rebuild --dir ./tree
  kinstore rebuild --dir ./tree --index surnames`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Index, "index", "", "rebuild only this secondary index")

	return cmd
}

func runRebuild(ctx context.Context, opts *RebuildOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	res := RebuildResult{Index: opts.Index}
	if opts.Index != "" {
		if err := st.RebuildIndex(ctx, opts.Index); err != nil {
			return storeError("rebuild failed", err)
		}
	} else {
		err := st.RebuildSecondary(ctx, func(done, total int) {
			res.Records = total
			f.VerboseLog("rebuilt %d/%d records", done, total)
		})
		if err != nil {
			return storeError("rebuild failed", err)
		}
	}

	what := "all derived structures"
	if opts.Index != "" {
		what = "index " + opts.Index
	}
	return f.Success(fmt.Sprintf("✓ rebuilt %s", what), res)
}
