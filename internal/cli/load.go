package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/fixture"
	"github.com/roach88/kinstore/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Batch bool
}

// LoadResult is the JSON payload of the load command.
type LoadResult struct {
	Files   []string       `json:"files"`
	Changes []store.Change `json:"changes"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <fixture.yaml>...",
		Short: "Commit records from YAML fixture files",
		Long: `Commit the records of one or more fixture files, one transaction per
file. A file that fails to apply is rolled back entirely; files before
it stay committed.

With --batch every file is imported as a batch transaction: faster for
large imports, but not undoable.

Examples:
  kinstore load --dir ./tree household.yaml
  kinstore load --dir ./tree --batch census-1851.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Batch, "batch", false, "import as batch transactions")

	return cmd
}

func runLoad(ctx context.Context, opts *LoadOptions, paths []string, cmd *cobra.Command) error {
	files := make([]*fixture.File, 0, len(paths))
	for _, p := range paths {
		f, err := fixture.Load(p)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid fixture", err)
		}
		if opts.Batch {
			f.Batch = true
		}
		files = append(files, f)
	}

	st, err := opts.openStore(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer st.Close()

	out := opts.formatter(cmd)
	res := LoadResult{Files: paths, Changes: []store.Change{}}
	for i, f := range files {
		desc := "load " + filepath.Base(paths[i])
		changes, err := fixture.Apply(ctx, st, f, desc)
		if err != nil {
			return storeError(desc, err)
		}
		out.VerboseLog("%s: %d change(s)", paths[i], len(changes))
		res.Changes = append(res.Changes, changes...)
	}
	return out.Success(fmt.Sprintf("✓ loaded %d record(s) from %d file(s)", len(res.Changes), len(paths)), res)
}
