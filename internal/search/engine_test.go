package search

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/ocerrors"
	"github.com/opencontext/opencontext/internal/store"
)

// stubEmbedder returns a fixed query vector.
type stubEmbedder struct {
	queryVec []float32
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.queryVec, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.queryVec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int   { return len(s.queryVec) }
func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Close() error      { return nil }

type testChunk struct {
	stableID string
	seq      int
	heading  string
	text     string
	vector   []float32
}

type testDoc struct {
	stableID  string
	relPath   string
	docType   corpus.DocType
	updatedAt time.Time
}

func buildIndex(t *testing.T, docs []testDoc, chunks []testChunk) *store.Store {
	t.Helper()
	st := store.Open(t.TempDir(), nil)
	w, err := st.BeginBuild("stub")
	require.NoError(t, err)
	for _, d := range docs {
		docType := d.docType
		if docType == "" {
			docType = corpus.DocTypeDoc
		}
		w.PutDocument(store.DocMeta{
			StableID:  d.stableID,
			RelPath:   d.relPath,
			DocType:   docType,
			UpdatedAt: d.updatedAt,
		})
	}
	for _, c := range chunks {
		var path []string
		if c.heading != "" {
			path = []string{c.heading}
		}
		require.NoError(t, w.PutChunk(store.Record{
			Chunk: chunk.Chunk{
				ChunkID:        chunk.ChunkID(c.stableID, c.seq),
				OwningStableID: c.stableID,
				Seq:            c.seq,
				HeadingPath:    path,
				Text:           c.text,
				ContentHash:    chunk.ContentHash(path, c.text),
			},
			Vector: c.vector,
		}))
	}
	_, err = w.Commit()
	require.NoError(t, err)
	return st
}

func newEngine(st *store.Store, queryVec []float32) *Engine {
	return NewEngine(st, &stubEmbedder{queryVec: queryVec}, Config{}, nil)
}

func TestSearch_IndexNotAvailable(t *testing.T) {
	st := store.Open(t.TempDir(), nil)
	e := newEngine(st, []float32{1, 0})

	_, err := e.Search(context.Background(), "anything", Options{})
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindIndexNotAvailable))
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}},
		[]testChunk{{stableID: "d1", seq: 0, text: "text", vector: []float32{1, 0}}})
	e := newEngine(st, []float32{1, 0})

	_, err := e.Search(context.Background(), "   ", Options{})
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindInvalidInput))
}

func TestSearch_KeywordMode(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "doc-plan", relPath: "notes/plan.md"}},
		[]testChunk{
			{stableID: "doc-plan", seq: 0, heading: "Goals", text: "Ship the hybrid search index.", vector: []float32{1, 0}},
			{stableID: "doc-plan", seq: 1, heading: "Risks", text: "Embedding API quota exhaustion is the main risk.", vector: []float32{0, 1}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "risk", Options{Mode: ModeKeyword, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, []string{"Risks"}, r.HeadingPath)
	assert.Equal(t, MatchedByKeyword, r.MatchedBy)
	assert.Equal(t, "oc://doc/doc-plan", r.Citation)
	assert.Equal(t, "notes/plan.md", r.RelPath)
	assert.InDelta(t, 1.0, r.Score, 1e-9) // best keyword match normalizes to 1
}

func TestSearch_KeywordModeChinese(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "doc-notes", relPath: "notes/meeting.md"}},
		[]testChunk{
			{stableID: "doc-notes", seq: 0, heading: "会议", text: "今天讨论了搜索引擎的设计方案", vector: []float32{1, 0}},
			{stableID: "doc-notes", seq: 1, heading: "Other", text: "nothing relevant here", vector: []float32{0, 1}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "搜索", Options{Mode: ModeKeyword, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, chunk.ChunkID("doc-notes", 0), results[0].ChunkID)
	assert.Equal(t, MatchedByKeyword, results[0].MatchedBy)
}

func TestSearch_UnknownModeRejected(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}},
		[]testChunk{{stableID: "d1", seq: 0, text: "text", vector: []float32{1, 0}}})
	e := newEngine(st, []float32{1, 0})

	_, err := e.Search(context.Background(), "query", Options{Mode: Mode("hybird")})
	require.Error(t, err)
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindInvalidInput))
	assert.Contains(t, err.Error(), "hybird")
}

func TestSearch_UnknownAggregationRejected(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}},
		[]testChunk{{stableID: "d1", seq: 0, text: "text", vector: []float32{1, 0}}})
	e := newEngine(st, []float32{1, 0})

	_, err := e.Search(context.Background(), "query", Options{AggregateBy: Aggregate("folders")})
	require.Error(t, err)
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindInvalidInput))
}

func TestSearch_VectorMode(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}, {stableID: "d2", relPath: "b.md"}},
		[]testChunk{
			{stableID: "d1", seq: 0, text: "close match", vector: []float32{1, 0}},
			{stableID: "d2", seq: 0, text: "far match", vector: []float32{0.6, 0.8}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "query", Options{Mode: ModeVector, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close match", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.6, results[1].Score, 1e-6)
	assert.Equal(t, MatchedByVector, results[0].MatchedBy)
}

func TestSearch_HybridLabelsBothAxes(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}, {stableID: "d2", relPath: "b.md"}},
		[]testChunk{
			// Matches the query vector and contains the query token.
			{stableID: "d1", seq: 0, text: "database migration steps", vector: []float32{1, 0}},
			// Vector-only match.
			{stableID: "d2", seq: 0, text: "unrelated words entirely", vector: []float32{0.9, 0.436}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "database migration", Options{Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "database migration steps", results[0].Text)
	assert.Equal(t, MatchedByBoth, results[0].MatchedBy)
	assert.Equal(t, MatchedByVector, results[1].MatchedBy)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_DocAggregationUsesRepresentativeScore(t *testing.T) {
	// Three chunks of one document scoring 0.9, 0.7, 0.5 on the vector
	// axis collapse to a single doc result carrying the best score.
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "notes/plan.md"}},
		[]testChunk{
			{stableID: "d1", seq: 0, text: "best", vector: []float32{0.9, float32(sqrt1m(0.9))}},
			{stableID: "d1", seq: 1, text: "middle", vector: []float32{0.7, float32(sqrt1m(0.7))}},
			{stableID: "d1", seq: 2, text: "worst", vector: []float32{0.5, float32(sqrt1m(0.5))}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "query",
		Options{Mode: ModeVector, AggregateBy: AggregateDoc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "d1", r.OwningStableID)
	assert.Equal(t, "best", r.Text)
	assert.InDelta(t, 0.9, r.Score, 1e-6)
	assert.Equal(t, 3, r.HitCount)
}

func TestSearch_FolderAggregation(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{
			{stableID: "d1", relPath: "projects/a.md"},
			{stableID: "d2", relPath: "projects/b.md"},
			{stableID: "d3", relPath: "journal/c.md"},
		},
		[]testChunk{
			{stableID: "d1", seq: 0, text: "one", vector: []float32{1, 0}},
			{stableID: "d2", seq: 0, text: "two", vector: []float32{0.9, float32(sqrt1m(0.9))}},
			{stableID: "d3", seq: 0, text: "three", vector: []float32{0.8, float32(sqrt1m(0.8))}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "query",
		Options{Mode: ModeVector, AggregateBy: AggregateFolder, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "projects", results[0].Folder)
	assert.Equal(t, 2, results[0].HitCount)
	assert.Equal(t, 2, results[0].DocCount)
	assert.Equal(t, "journal", results[1].Folder)
	assert.Equal(t, 1, results[1].HitCount)
	assert.Equal(t, 1, results[1].DocCount)
}

func TestSearch_DocTypeFilterAppliesBeforeLimit(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{
			{stableID: "d1", relPath: "notes/a.md", docType: corpus.DocTypeDoc},
			{stableID: "i1", relPath: "ideas/b.md", docType: corpus.DocTypeIdea},
		},
		[]testChunk{
			{stableID: "d1", seq: 0, text: "doc text about topic", vector: []float32{1, 0}},
			{stableID: "i1", seq: 0, text: "idea text about topic", vector: []float32{0.99, float32(sqrt1m(0.99))}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "topic",
		Options{Mode: ModeVector, DocType: corpus.DocTypeIdea, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "i1", results[0].OwningStableID)
}

func TestSearch_ZeroResultsIsNotAnError(t *testing.T) {
	st := buildIndex(t,
		[]testDoc{{stableID: "d1", relPath: "a.md"}},
		[]testChunk{{stableID: "d1", seq: 0, text: "alpha beta", vector: []float32{0, 1}}})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "zzzz", Options{Mode: ModeKeyword})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_TieBreaksByDocRecencyThenChunkID(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	st := buildIndex(t,
		[]testDoc{
			{stableID: "d-old", relPath: "old.md", updatedAt: older},
			{stableID: "d-new", relPath: "new.md", updatedAt: newer},
		},
		[]testChunk{
			{stableID: "d-old", seq: 0, text: "identical", vector: []float32{1, 0}},
			{stableID: "d-new", seq: 0, text: "identical", vector: []float32{1, 0}},
		})
	e := newEngine(st, []float32{1, 0})

	results, err := e.Search(context.Background(), "query", Options{Mode: ModeVector, Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d-new", results[0].OwningStableID)
	assert.Equal(t, "d-old", results[1].OwningStableID)
}

// sqrt1m returns sqrt(1-x*x) so test vectors are unit length.
func sqrt1m(x float64) float64 {
	return math.Sqrt(1 - x*x)
}
