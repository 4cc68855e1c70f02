package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/index"
	"github.com/opencontext/opencontext/internal/ocerrors"
	"github.com/opencontext/opencontext/internal/search"
	"github.com/opencontext/opencontext/internal/store"
)

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fixedEmbedder) Dimensions() int   { return 2 }
func (fixedEmbedder) ModelName() string { return "fixed" }
func (fixedEmbedder) Close() error      { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "plan.md"),
		[]byte("# Plan\n\n## Goals\n\nShip it.\n\n## Risks\n\nQuota limits.\n"), 0o644))

	cs, err := corpus.NewFSStore(root)
	require.NoError(t, err)

	st := store.Open(filepath.Join(root, ".oc", "index"), nil)
	emb := fixedEmbedder{}
	builder := index.NewBuilder(cs, chunk.New(chunk.Options{}), emb, st, 32, 2, nil)
	engine := search.NewEngine(st, emb, search.Config{}, nil)

	return NewServer(cs, builder, engine, st, nil)
}

func TestSearchHandler_NoIndexReportsDistinctError(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "risk"})
	require.Error(t, err)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeIndexNotAvailable, me.Code)
	assert.Equal(t, string(ocerrors.KindIndexNotAvailable), me.Kind)
}

func TestBuildStatusSearchCleanCycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, status, err := s.indexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.False(t, status.Exists)

	_, built, err := s.indexBuildHandler(ctx, nil, IndexBuildInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, built.TotalChunks)
	assert.Equal(t, "fixed", built.Model)

	_, status, err = s.indexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, 2, status.TotalChunks)

	_, found, err := s.searchHandler(ctx, nil, SearchInput{Query: "quota", Mode: "keyword", Limit: 5})
	require.NoError(t, err)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "keyword", found.Results[0].MatchedBy)
	assert.Contains(t, found.Results[0].Citation, "oc://doc/")
	assert.Equal(t, []string{"Plan", "Risks"}, found.Results[0].HeadingPath)

	_, cleaned, err := s.indexCleanHandler(ctx, nil, IndexCleanInput{})
	require.NoError(t, err)
	assert.True(t, cleaned.Removed)

	_, status, err = s.indexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.False(t, status.Exists)
}

func TestSearchHandler_RequiresQuery(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{})
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestListDocumentsWorksWithoutIndex(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.listDocumentsHandler(context.Background(), nil, ListDocumentsInput{})
	require.NoError(t, err)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "notes/plan.md", out.Documents[0].RelPath)
	assert.Contains(t, out.Documents[0].Citation, "oc://doc/")
}
