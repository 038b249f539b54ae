package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// InfoResult is the JSON payload of the info command.
type InfoResult struct {
	Dir        string           `json:"dir"`
	Backend    string           `json:"backend"`
	Version    int              `json:"version"`
	Counts     map[string]int   `json:"counts"`
	Surnames   int              `json:"surnames"`
	Researcher store.Researcher `json:"researcher"`
	MediaPath  string           `json:"media_path,omitempty"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarise a store",
		Long: `Print the backend, format version and record counts of a store.

The store is opened read-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runInfo(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(ctx, cmd, false, store.WithReadOnly())
	if err != nil {
		return err
	}
	defer st.Close()

	res := InfoResult{
		Dir:      st.Dir(),
		Backend:  st.Backend(),
		Version:  st.Version(),
		Counts:   map[string]int{},
		Surnames: len(st.Surnames()),
	}
	for _, k := range record.Kinds() {
		n, err := st.Count(ctx, k)
		if err != nil {
			return storeError("failed to count records", err)
		}
		res.Counts[k.String()] = n
	}
	if res.Researcher, err = st.Researcher(ctx); err != nil {
		return storeError("failed to read researcher", err)
	}
	if res.MediaPath, err = st.MediaPath(ctx); err != nil {
		return storeError("failed to read media path", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Store:    %s\n", res.Dir)
	fmt.Fprintf(&b, "Backend:  %s\n", res.Backend)
	fmt.Fprintf(&b, "Version:  %d\n", res.Version)
	if res.Researcher.Name != "" {
		fmt.Fprintf(&b, "Owner:    %s\n", res.Researcher.Name)
	}
	if res.MediaPath != "" {
		fmt.Fprintf(&b, "Media:    %s\n", res.MediaPath)
	}
	fmt.Fprintf(&b, "Surnames: %d\n", res.Surnames)
	for _, k := range record.Kinds() {
		fmt.Fprintf(&b, "%-12s %d\n", k.Title()+":", res.Counts[k.String()])
	}
	return opts.formatter(cmd).Success(strings.TrimRight(b.String(), "\n"), res)
}
