package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/internal/output"
)

func newIndexCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the search index",
		Long: `Delete the search index for the corpus root.

Documents and the manifest of stable ids are untouched; the next
` + "`oc index build`" + ` rebuilds from scratch.`,
		Args: cobra.NoArgs,
		RunE: runClean,
	}
}

func runClean(cmd *cobra.Command, _ []string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp()
	if err != nil {
		out.Errorf("%v", err)
		return err
	}
	defer a.cleanup()

	stats, err := a.store.Stats()
	if err != nil {
		out.Errorf("%v", err)
		return err
	}
	if !stats.Exists {
		out.Status("", "no index to remove")
		return nil
	}

	if err := a.store.Remove(); err != nil {
		out.Errorf("%v", err)
		return err
	}
	out.Success("index removed")
	return nil
}
