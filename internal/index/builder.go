// Package index orchestrates the build pipeline: enumerate documents,
// chunk, diff against the previous generation, embed what changed, and
// commit a fresh index generation atomically.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/embed"
	"github.com/opencontext/opencontext/internal/ocerrors"
	"github.com/opencontext/opencontext/internal/store"
)

// BuildOptions controls one build.
type BuildOptions struct {
	// Scope restricts re-chunking and re-embedding to a folder path.
	// Documents outside the scope keep their previous chunks.
	Scope string

	// Force bypasses the content-hash diff and re-embeds everything.
	// Used to recover from an embedding model change.
	Force bool

	// Observer receives progress events. Optional.
	Observer Observer
}

// Builder drives the chunk, embed, store pipeline.
type Builder struct {
	corpus   corpus.Store
	chunker  *chunk.Chunker
	embedder embed.Client
	store    *store.Store
	logger   *slog.Logger

	// batchSize and concurrency shape the embedding phase.
	batchSize   int
	concurrency int

	running atomic.Bool
}

// NewBuilder wires a builder from its collaborators.
func NewBuilder(cs corpus.Store, chunker *chunk.Chunker, embedder embed.Client, st *store.Store, batchSize, concurrency int, logger *slog.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = embed.DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		corpus:      cs,
		chunker:     chunker,
		embedder:    embedder,
		store:       st,
		logger:      logger,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// pendingChunk is a chunk queued for embedding, remembering its slot in
// the final record list.
type pendingChunk struct {
	recordIdx int
}

// Build runs the pipeline and commits a new generation. A build already
// in progress rejects the call. On any embedding failure the previous
// generation stays authoritative.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (store.Stats, error) {
	if !b.running.CompareAndSwap(false, true) {
		return store.Stats{}, ocerrors.New(ocerrors.KindConcurrentBuildRejected,
			"an index build is already in progress")
	}
	defer b.running.Store(false)

	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	prev := b.loadPrevious()

	// Phase: chunking.
	docs, err := b.corpus.ListDocuments(ctx, "")
	if err != nil {
		return store.Stats{}, err
	}

	scope := strings.Trim(opts.Scope, "/")
	records := make([]store.Record, 0, len(docs)*4)
	docMeta := make([]store.DocMeta, 0, len(docs))
	var pending []pendingChunk
	var pendingTexts []string

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return store.Stats{}, err
		}
		docMeta = append(docMeta, store.DocMeta{
			StableID:    doc.StableID,
			RelPath:     doc.RelPath,
			Description: doc.Description,
			DocType:     doc.DocType,
			UpdatedAt:   doc.UpdatedAt,
		})

		if scope != "" && !inScope(doc.RelPath, scope) {
			// Out-of-scope documents keep their previous chunks.
			records = append(records, prev.chunksOf(doc.StableID)...)
			obs.OnProgress(Event{Phase: PhaseChunking, Current: i + 1, Total: len(docs), Message: doc.RelPath})
			continue
		}

		text, err := b.corpus.GetContent(ctx, doc.RelPath)
		if err != nil {
			if ocerrors.IsKind(err, ocerrors.KindDocumentVanished) {
				// Deleted between listing and reading: drop its chunks.
				b.logger.Warn("document vanished during build", slog.String("path", doc.RelPath))
				docMeta = docMeta[:len(docMeta)-1]
				continue
			}
			return store.Stats{}, err
		}

		for _, ch := range b.chunker.Chunk(chunk.Input{StableID: doc.StableID, DocType: doc.DocType, Text: text}) {
			rec := store.Record{Chunk: ch}
			if !opts.Force {
				if vec, ok := prev.vectorFor(doc.StableID, ch.ContentHash); ok {
					rec.Vector = vec
				}
			}
			records = append(records, rec)
			if rec.Vector == nil {
				pending = append(pending, pendingChunk{recordIdx: len(records) - 1})
				pendingTexts = append(pendingTexts, embeddingText(ch))
			}
		}
		obs.OnProgress(Event{Phase: PhaseChunking, Current: i + 1, Total: len(docs), Message: doc.RelPath})
	}

	if err := ctx.Err(); err != nil {
		return store.Stats{}, err
	}

	// Phase: embedding. Batches run concurrently; the progress counter
	// is advanced under a lock so observers see monotonic counts.
	if err := b.embedPending(ctx, obs, records, pending, pendingTexts); err != nil {
		return store.Stats{}, err
	}

	if err := ctx.Err(); err != nil {
		return store.Stats{}, err
	}

	// Phase: storing.
	w, err := b.store.BeginBuild(b.embedder.ModelName())
	if err != nil {
		return store.Stats{}, err
	}
	for _, meta := range docMeta {
		w.PutDocument(meta)
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			w.Abort()
			return store.Stats{}, err
		}
		if err := w.PutChunk(rec); err != nil {
			w.Abort()
			return store.Stats{}, err
		}
		obs.OnProgress(Event{Phase: PhaseStoring, Current: i + 1, Total: len(records)})
	}
	gen, err := w.Commit()
	if err != nil {
		return store.Stats{}, err
	}

	stats := store.Stats{
		Exists:      true,
		TotalChunks: len(records),
		LastUpdated: gen.CreatedAt,
		Model:       gen.Model,
	}
	obs.OnProgress(Event{
		Phase:   PhaseDone,
		Current: len(records),
		Total:   len(records),
		Message: fmt.Sprintf("%d chunks indexed", len(records)),
	})
	b.logger.Info("build complete",
		slog.Int("documents", len(docMeta)),
		slog.Int("chunks", len(records)),
		slog.Int("embedded", len(pending)))
	return stats, nil
}

// embedPending embeds queued chunks in deterministic batches and writes
// vectors back into their record slots.
func (b *Builder) embedPending(ctx context.Context, obs Observer, records []store.Record, pending []pendingChunk, texts []string) error {
	total := len(pending)
	if total == 0 {
		obs.OnProgress(Event{Phase: PhaseEmbedding, Current: 0, Total: 0, Message: "nothing to embed"})
		return nil
	}

	var mu sync.Mutex
	completed := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < total; start += b.batchSize {
		start := start
		end := start + b.batchSize
		if end > total {
			end = total
		}
		g.Go(func() error {
			vectors, err := b.embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			mu.Lock()
			for i, vec := range vectors {
				records[pending[start+i].recordIdx].Vector = vec
			}
			completed += end - start
			obs.OnProgress(Event{Phase: PhaseEmbedding, Current: completed, Total: total})
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// embeddingText is what actually gets embedded: heading context plus
// body, so section titles contribute to similarity.
func embeddingText(ch chunk.Chunk) string {
	if len(ch.HeadingPath) == 0 {
		return ch.Text
	}
	return strings.Join(ch.HeadingPath, " > ") + "\n\n" + ch.Text
}

// previous wraps the prior generation for diff lookups.
type previous struct {
	// byHash maps owning id + content hash to the existing vector.
	byHash map[string][]float32
	// byDoc maps owning id to its chunks, for out-of-scope carry.
	byDoc map[string][]store.Record
}

func (b *Builder) loadPrevious() *previous {
	p := &previous{
		byHash: make(map[string][]float32),
		byDoc:  make(map[string][]store.Record),
	}
	gen, err := b.store.Load()
	if err != nil {
		if !ocerrors.IsKind(err, ocerrors.KindIndexNotAvailable) {
			b.logger.Warn("previous generation unreadable, rebuilding from scratch",
				slog.String("error", err.Error()))
		}
		return p
	}
	defer func() { _ = gen.Close() }()
	for _, rec := range gen.Chunks {
		p.byHash[rec.OwningStableID+"\x00"+rec.ContentHash] = rec.Vector
		p.byDoc[rec.OwningStableID] = append(p.byDoc[rec.OwningStableID], rec)
	}
	return p
}

func (p *previous) vectorFor(stableID, contentHash string) ([]float32, bool) {
	vec, ok := p.byHash[stableID+"\x00"+contentHash]
	return vec, ok && vec != nil
}

func (p *previous) chunksOf(stableID string) []store.Record {
	return p.byDoc[stableID]
}

func inScope(relPath, scope string) bool {
	return relPath == scope || strings.HasPrefix(relPath, scope+"/")
}
