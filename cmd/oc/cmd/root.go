// Package cmd provides the CLI commands for OpenContext.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/pkg/version"
)

var (
	// corpusRoot is the corpus directory, settable via --root.
	corpusRoot string

	// debugMode enables debug logging.
	debugMode bool
)

// NewRootCmd creates the root command for the oc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oc",
		Short: "Personal knowledge store with hybrid search",
		Long: `OpenContext indexes a folder of Markdown documents and answers
queries with hybrid (vector + keyword) search.

Results carry durable oc://doc/<id> citations that stay valid when
files are renamed or moved. An MCP server exposes the same search to
AI assistants.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("oc version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&corpusRoot, "root", ".", "Corpus root directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}
