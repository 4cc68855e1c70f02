package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/internal/index"
	"github.com/opencontext/opencontext/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the search index",
	}

	cmd.AddCommand(newIndexBuildCmd())
	cmd.AddCommand(newIndexStatusCmd())
	cmd.AddCommand(newIndexCleanCmd())

	return cmd
}

type indexBuildOptions struct {
	scope string
	force bool
}

func newIndexBuildCmd() *cobra.Command {
	opts := &indexBuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or update the search index",
		Long: `Build the search index for the corpus root.

Rebuilds are incremental: only sections whose content changed since the
last build are re-embedded. Use --force to re-embed everything, and
--scope to restrict the build to a subtree (documents outside the scope
keep their previous index entries).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexBuild(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.scope, "scope", "", "Restrict the build to a relative path prefix")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed all chunks, ignoring the previous generation")

	return cmd
}

func runIndexBuild(cmd *cobra.Command, opts *indexBuildOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp()
	if err != nil {
		out.Errorf("%v", err)
		return err
	}
	defer a.cleanup()

	stats, err := a.builder.Build(cmd.Context(), index.BuildOptions{
		Scope:    opts.scope,
		Force:    opts.force,
		Observer: output.NewBuildProgress(out),
	})
	if err != nil {
		a.logger.Error("index build failed", slog.String("error", err.Error()))
		out.Errorf("%v", err)
		return err
	}

	out.Successf("index updated: %d chunks (model %s)", stats.TotalChunks, stats.Model)
	return nil
}
