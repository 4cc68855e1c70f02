package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/internal/index"
	ocmcp "github.com/opencontext/opencontext/internal/mcp"
	"github.com/opencontext/opencontext/internal/watcher"
)

type serveOptions struct {
	watch bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the Model Context Protocol server over stdio, exposing search
and index management tools to AI assistants.

Stdout carries the protocol; logs go to the configured log file or
stderr. With --watch, Markdown changes under the corpus root trigger
debounced incremental rebuilds while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Rebuild the index automatically on corpus changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.cleanup()

	ctx := cmd.Context()
	server := ocmcp.NewServer(a.corpus, a.builder, a.engine, a.store, a.logger)

	if opts.watch || a.cfg.Watcher.Enabled {
		w := watcher.New(corpusRoot, a.cfg.Watcher.Debounce, func(ctx context.Context) error {
			_, err := a.builder.Build(ctx, index.BuildOptions{})
			return err
		}, a.logger)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return server.Serve(ctx)
}
