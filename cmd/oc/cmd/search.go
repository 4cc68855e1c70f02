package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/output"
	"github.com/opencontext/opencontext/internal/search"
)

type searchOptions struct {
	limit     int
	mode      string
	aggregate string
	docType   string
	format    string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search indexed documents with hybrid vector plus keyword retrieval.

Each result carries a durable oc://doc/<id> citation that stays valid
when the underlying file is renamed or moved.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (0 = configured default)")
	cmd.Flags().StringVar(&opts.mode, "mode", "hybrid", "Retrieval mode: hybrid, vector or keyword")
	cmd.Flags().StringVar(&opts.aggregate, "group-by", "content", "Group results by: content, doc or folder")
	cmd.Flags().StringVar(&opts.docType, "type", "", "Restrict to a document type: doc or idea")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp()
	if err != nil {
		out.Errorf("%v", err)
		return err
	}
	defer a.cleanup()

	results, err := a.engine.Search(cmd.Context(), query, search.Options{
		Limit:       opts.limit,
		Mode:        search.Mode(opts.mode),
		AggregateBy: search.Aggregate(opts.aggregate),
		DocType:     corpus.DocType(opts.docType),
	})
	if err != nil {
		out.Errorf("%v", err)
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		out.Status("", "no results")
		return nil
	}

	for i, r := range results {
		renderResult(cmd, i+1, r)
	}
	return nil
}

func renderResult(cmd *cobra.Command, rank int, r search.Result) {
	w := cmd.OutOrStdout()

	title := r.RelPath
	if len(r.HeadingPath) > 0 {
		title += " · " + strings.Join(r.HeadingPath, " > ")
	}
	fmt.Fprintf(w, "%d. %s\n", rank, title)
	fmt.Fprintf(w, "   %s  score=%.4f  matched=%s", r.Citation, r.Score, r.MatchedBy)
	if r.HitCount > 1 {
		fmt.Fprintf(w, "  hits=%d", r.HitCount)
	}
	if r.DocCount > 0 {
		fmt.Fprintf(w, "  docs=%d", r.DocCount)
	}
	fmt.Fprintln(w)
	if r.EntryID != "" {
		fmt.Fprintf(w, "   entry %s", r.EntryID)
		if r.EntryDate != nil {
			fmt.Fprintf(w, " (%s)", r.EntryDate.Format("2006-01-02"))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "   %s\n\n", snippet(r.Text, 200))
}

// snippet trims text to a single displayable line.
func snippet(text string, max int) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) > max {
		s = s[:max] + "…"
	}
	return s
}
