package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/ocerrors"
)

func testRecord(stableID string, seq int, text string) Record {
	return Record{
		Chunk: chunk.Chunk{
			ChunkID:        chunk.ChunkID(stableID, seq),
			OwningStableID: stableID,
			Seq:            seq,
			Text:           text,
			ContentHash:    chunk.ContentHash(nil, text),
		},
		Vector: []float32{1, 0, 0},
	}
}

func testDoc(stableID, relPath string) DocMeta {
	return DocMeta{
		StableID:  stableID,
		RelPath:   relPath,
		DocType:   corpus.DocTypeDoc,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func commitOne(t *testing.T, s *Store, records ...Record) *Generation {
	t.Helper()
	w, err := s.BeginBuild("test-model")
	require.NoError(t, err)
	w.PutDocument(testDoc("doc-1", "notes/plan.md"))
	for _, rec := range records {
		require.NoError(t, w.PutChunk(rec))
	}
	gen, err := w.Commit()
	require.NoError(t, err)
	return gen
}

func TestLoad_NotBuilt(t *testing.T) {
	s := Open(t.TempDir(), nil)

	_, err := s.Load()
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindIndexNotAvailable))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.False(t, stats.Exists)
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	s := Open(t.TempDir(), nil)

	rec := testRecord("doc-1", 0, "the goals section")
	commitOne(t, s, rec)

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()
	require.Len(t, gen.Chunks, 1)
	assert.Equal(t, rec.ChunkID, gen.Chunks[0].ChunkID)
	assert.Equal(t, rec.Vector, gen.Chunks[0].Vector)
	assert.Equal(t, "test-model", gen.Model)
	assert.Equal(t, "notes/plan.md", gen.Docs["doc-1"].RelPath)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestAbortLeavesPreviousGenerationIntact(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s, testRecord("doc-1", 0, "original"))

	w, err := s.BeginBuild("test-model")
	require.NoError(t, err)
	require.NoError(t, w.PutChunk(testRecord("doc-1", 0, "replacement")))
	w.Abort()

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()
	require.Len(t, gen.Chunks, 1)
	assert.Equal(t, "original", gen.Chunks[0].Text)
}

func TestLoadDuringBuildSeesOldGeneration(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s, testRecord("doc-1", 0, "old"))

	w, err := s.BeginBuild("test-model")
	require.NoError(t, err)
	require.NoError(t, w.PutChunk(testRecord("doc-1", 0, "new")))

	// Pointer not swapped yet: readers still get the old snapshot.
	gen, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "old", gen.Chunks[0].Text)
	require.NoError(t, gen.Close())

	_, err = w.Commit()
	require.NoError(t, err)

	gen, err = s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()
	assert.Equal(t, "new", gen.Chunks[0].Text)
}

func TestConcurrentBuildRejected(t *testing.T) {
	s := Open(t.TempDir(), nil)

	w, err := s.BeginBuild("test-model")
	require.NoError(t, err)
	defer w.Abort()

	_, err = s.BeginBuild("test-model")
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindConcurrentBuildRejected))
}

func TestBuildAllowedAfterAbort(t *testing.T) {
	s := Open(t.TempDir(), nil)

	w, err := s.BeginBuild("test-model")
	require.NoError(t, err)
	w.Abort()

	w, err = s.BeginBuild("test-model")
	require.NoError(t, err)
	w.Abort()
}

func TestRemoveReportsNotBuilt(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s, testRecord("doc-1", 0, "text"))

	require.NoError(t, s.Remove())

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.False(t, stats.Exists)

	_, err = s.Load()
	assert.True(t, ocerrors.IsKind(err, ocerrors.KindIndexNotAvailable))

	// Remove on an already-clean store is a no-op.
	require.NoError(t, s.Remove())
}

func TestCommitPrunesOldGenerations(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, nil)

	commitOne(t, s, testRecord("doc-1", 0, "first"))
	commitOne(t, s, testRecord("doc-1", 0, "second"))

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()
	assert.Equal(t, "second", gen.Chunks[0].Text)
}

func TestIdeaMetadataSurvivesRoundTrip(t *testing.T) {
	s := Open(t.TempDir(), nil)

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := testRecord("idea-1", 0, "a dated thought")
	rec.EntryID = "idea-1#1"
	rec.EntryDate = &date
	commitOne(t, s, rec)

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()
	require.Len(t, gen.Chunks, 1)
	assert.Equal(t, "idea-1#1", gen.Chunks[0].EntryID)
	require.NotNil(t, gen.Chunks[0].EntryDate)
	assert.True(t, date.Equal(*gen.Chunks[0].EntryDate))
}

func TestSearchKeyword_MatchesCommittedChunks(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s,
		testRecord("doc-1", 0, "database migration rollback plan"),
		testRecord("doc-1", 1, "quarterly budget review"))

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()

	hits, err := gen.SearchKeyword(context.Background(), "migration", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunk.ChunkID("doc-1", 0), hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = gen.SearchKeyword(context.Background(), "nonexistentterm", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchKeyword_ChineseBigrams(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s,
		testRecord("doc-1", 0, "今天讨论了搜索引擎的设计方案"),
		testRecord("doc-1", 1, "unrelated english text"))

	gen, err := s.Load()
	require.NoError(t, err)
	defer func() { _ = gen.Close() }()

	// A two-character query overlaps the indexed 2-grams of the longer
	// run, no word segmentation needed.
	hits, err := gen.SearchKeyword(context.Background(), "搜索", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, chunk.ChunkID("doc-1", 0), hits[0].ChunkID)
}

func TestLoadDuringCommitNeverFails(t *testing.T) {
	s := Open(t.TempDir(), nil)
	commitOne(t, s, testRecord("doc-1", 0, "generation zero"))

	// Committers prune the replaced generation right after the pointer
	// swap; a reader that resolved the old pointer must transparently
	// re-resolve instead of surfacing a missing-file error.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			w, err := s.BeginBuild("test-model")
			if err != nil {
				continue
			}
			w.PutDocument(testDoc("doc-1", "notes/plan.md"))
			if err := w.PutChunk(testRecord("doc-1", 0, "generation text")); err != nil {
				w.Abort()
				continue
			}
			_, _ = w.Commit()
		}
	}()

	for i := 0; i < 50; i++ {
		gen, err := s.Load()
		require.NoError(t, err)
		require.Len(t, gen.Chunks, 1)
		require.NoError(t, gen.Close())
	}
	close(stop)
	wg.Wait()
}
