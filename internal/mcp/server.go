package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/index"
	"github.com/opencontext/opencontext/internal/search"
	"github.com/opencontext/opencontext/internal/store"
	"github.com/opencontext/opencontext/pkg/version"
)

// Server exposes OpenContext over the Model Context Protocol.
type Server struct {
	corpus  corpus.Store
	builder *index.Builder
	engine  *search.Engine
	idx     *store.Store
	logger  *slog.Logger

	mcp *mcp.Server
}

// NewServer wires the MCP server and registers its tools.
func NewServer(cs corpus.Store, builder *index.Builder, engine *search.Engine, idx *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		corpus:  cs,
		builder: builder,
		engine:  engine,
		idx:     idx,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "OpenContext",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oc_search",
		Description: "Search the knowledge base with hybrid vector plus keyword retrieval. Results carry durable oc://doc/<id> citations that stay valid when files move.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oc_index_build",
		Description: "Build or update the search index. Incremental: only changed content is re-embedded unless force is set.",
	}, s.indexBuildHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oc_index_status",
		Description: "Report whether the index exists, its chunk count and when it was last updated.",
	}, s.indexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oc_index_clean",
		Description: "Delete the search index entirely. The document corpus is untouched.",
	}, s.indexCleanHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oc_list_documents",
		Description: "List documents in the corpus with their citations. Works without an index; use as a fallback when search reports none exists.",
	}, s.listDocumentsHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 5))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := search.Options{
		Limit:       input.Limit,
		Mode:        search.Mode(input.Mode),
		AggregateBy: search.Aggregate(input.AggregateBy),
		DocType:     corpus.DocType(input.DocType),
	}
	results, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		item := SearchResultOutput{
			Citation:    r.Citation,
			RelPath:     r.RelPath,
			Folder:      r.Folder,
			HeadingPath: r.HeadingPath,
			Text:        r.Text,
			Score:       r.Score,
			MatchedBy:   r.MatchedBy,
			HitCount:    r.HitCount,
			DocCount:    r.DocCount,
			EntryID:     r.EntryID,
		}
		if r.EntryDate != nil {
			item.EntryDate = r.EntryDate.Format("2006-01-02")
		}
		out.Results = append(out.Results, item)
	}
	return nil, out, nil
}

func (s *Server) indexBuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexBuildInput) (*mcp.CallToolResult, IndexBuildOutput, error) {
	stats, err := s.builder.Build(ctx, index.BuildOptions{
		Scope: input.Scope,
		Force: input.Force,
		Observer: index.ObserverFunc(func(e index.Event) {
			s.logger.Debug("build progress",
				slog.String("phase", string(e.Phase)),
				slog.Int("current", e.Current),
				slog.Int("total", e.Total))
		}),
	})
	if err != nil {
		return nil, IndexBuildOutput{}, MapError(err)
	}
	return nil, IndexBuildOutput{
		TotalChunks: stats.TotalChunks,
		LastUpdated: stats.LastUpdated.Format(time.RFC3339),
		Model:       stats.Model,
	}, nil
}

func (s *Server) indexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	stats, err := s.idx.Stats()
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	out := IndexStatusOutput{
		Exists:      stats.Exists,
		TotalChunks: stats.TotalChunks,
		Model:       stats.Model,
	}
	if stats.Exists {
		out.LastUpdated = stats.LastUpdated.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) indexCleanHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexCleanInput) (*mcp.CallToolResult, IndexCleanOutput, error) {
	stats, err := s.idx.Stats()
	if err != nil {
		return nil, IndexCleanOutput{}, MapError(err)
	}
	if err := s.idx.Remove(); err != nil {
		return nil, IndexCleanOutput{}, MapError(err)
	}
	return nil, IndexCleanOutput{Removed: stats.Exists}, nil
}

func (s *Server) listDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.corpus.ListDocuments(ctx, input.Scope)
	if err != nil {
		return nil, ListDocumentsOutput{}, MapError(err)
	}
	out := ListDocumentsOutput{Documents: make([]DocumentOutput, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, DocumentOutput{
			Citation:    corpus.CitationURL(d.StableID),
			RelPath:     d.RelPath,
			DocType:     string(d.DocType),
			Description: d.Description,
			UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
