package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/internal/output"
)

type statusOptions struct {
	format string
}

func newIndexStatusCmd() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Report whether the index exists, its chunk count, model and last update time.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *statusOptions) error {
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

	docs, err := a.corpus.ListDocuments(cmd.Context(), "")
	if err != nil {
		out.Errorf("%v", err)
		return err
	}

	if opts.format == "json" {
		payload := map[string]any{
			"exists":          stats.Exists,
			"total_chunks":    stats.TotalChunks,
			"model":           stats.Model,
			"total_documents": len(docs),
		}
		if stats.Exists {
			payload["last_updated"] = stats.LastUpdated.Format(time.RFC3339)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	out.Statusf("", "documents: %d", len(docs))
	if !stats.Exists {
		out.Warning("index not built, run `oc index build` first")
		return nil
	}
	out.Statusf("", "chunks:    %d", stats.TotalChunks)
	out.Statusf("", "model:     %s", stats.Model)
	out.Statusf("", "updated:   %s", stats.LastUpdated.Format(time.RFC3339))
	return nil
}
