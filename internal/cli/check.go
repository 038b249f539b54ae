package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Repair bool
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	Report   *store.Report `json:"report"`
	Repaired bool          `json:"repaired,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify indices and the reference map",
		Long: `Verify every derived structure of a store against its records.

Each record must decode, the reference map must hold exactly the
references of each record, and every index entry must agree with its
record. Nothing is changed unless --repair is given, in which case the
derived structures are rebuilt and checked again.

Exit codes:
  0 - No problems (or all repaired)
  1 - Problems found
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "rebuild derived structures when problems are found")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, cmd *cobra.Command) error {
	var extra []store.Option
	if !opts.Repair {
		extra = append(extra, store.WithReadOnly())
	}
	st, err := opts.openStore(ctx, cmd, false, extra...)
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	report, err := st.Check(ctx)
	if err != nil {
		return storeError("check failed", err)
	}
	res := CheckResult{Report: report}

	if !report.OK() && opts.Repair {
		f.VerboseLog("found %d problem(s), rebuilding", len(report.Problems))
		if err := st.RebuildSecondary(ctx, nil); err != nil {
			return storeError("repair failed", err)
		}
		if report, err = st.Check(ctx); err != nil {
			return storeError("check failed", err)
		}
		res = CheckResult{Report: report, Repaired: true}
	}

	var b strings.Builder
	if report.OK() {
		fmt.Fprintf(&b, "✓ %d records, %d references, no problems", report.Records, report.References)
		if res.Repaired {
			b.WriteString(" after repair")
		}
	} else {
		fmt.Fprintf(&b, "✗ %d problem(s) in %d records:", len(report.Problems), report.Records)
		for _, p := range report.Problems {
			fmt.Fprintf(&b, "\n  %s", p)
		}
	}
	if err := f.Success(b.String(), res); err != nil {
		return err
	}
	if !report.OK() {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d problem(s) found", len(report.Problems)), report.Err())
	}
	return nil
}
