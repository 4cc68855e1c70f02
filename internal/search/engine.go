package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/embed"
	"github.com/opencontext/opencontext/internal/ocerrors"
	"github.com/opencontext/opencontext/internal/store"
)

// candidateFactor widens the chunk pool before aggregation so grouping
// by document or folder still has enough distinct groups to fill the
// requested limit.
const candidateFactor = 5

// Config holds the fusion parameters.
type Config struct {
	VectorWeight  float64
	KeywordWeight float64
	RRFConstant   int
	DefaultLimit  int
}

// Engine runs queries against the committed index generation.
type Engine struct {
	store    *store.Store
	embedder embed.Client
	cfg      Config
	logger   *slog.Logger
}

// NewEngine wires a search engine.
func NewEngine(st *store.Store, embedder embed.Client, cfg Config, logger *slog.Logger) *Engine {
	if cfg.VectorWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.VectorWeight, cfg.KeywordWeight = 0.7, 0.3
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = 60
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, embedder: embedder, cfg: cfg, logger: logger}
}

// Search runs one query. Fails with a KindIndexNotAvailable error when
// no generation exists; zero results on a built index is not an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ocerrors.New(ocerrors.KindInvalidInput, "query must not be empty")
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	switch opts.Mode {
	case ModeHybrid, ModeVector, ModeKeyword:
	default:
		return nil, ocerrors.New(ocerrors.KindInvalidInput,
			fmt.Sprintf("unknown search mode %q", opts.Mode))
	}
	if opts.AggregateBy == "" {
		opts.AggregateBy = AggregateContent
	}
	switch opts.AggregateBy {
	case AggregateContent, AggregateDoc, AggregateFolder:
	default:
		return nil, ocerrors.New(ocerrors.KindInvalidInput,
			fmt.Sprintf("unknown aggregation %q", opts.AggregateBy))
	}
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.DefaultLimit
	}

	gen, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	defer func() { _ = gen.Close() }()

	// DocType filter applies before ranking so limit counts only the
	// relevant subset.
	chunks := gen.Chunks
	if opts.DocType != "" {
		chunks = filterByDocType(gen, opts.DocType)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	var vectorRanked, keywordRanked []scored
	if opts.Mode == ModeHybrid || opts.Mode == ModeVector {
		queryVec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		vectorRanked = rankVector(chunks, queryVec)
	}
	if opts.Mode == ModeHybrid || opts.Mode == ModeKeyword {
		hits, err := gen.SearchKeyword(ctx, query, len(gen.Chunks))
		if err != nil {
			return nil, err
		}
		keywordRanked = rankKeywordHits(hits, chunks)
	}

	var candidates []fused
	switch opts.Mode {
	case ModeVector:
		candidates = singleAxis(vectorRanked, true)
	case ModeKeyword:
		candidates = singleAxis(keywordRanked, false)
	default:
		candidates = fuseRRF(vectorRanked, keywordRanked,
			e.cfg.RRFConstant, e.cfg.VectorWeight, e.cfg.KeywordWeight)
	}

	e.sortCandidates(candidates, chunks, gen)

	if pool := opts.Limit * candidateFactor; len(candidates) > pool {
		candidates = candidates[:pool]
	}

	results := e.aggregate(candidates, chunks, gen, opts)
	e.logger.Debug("search complete",
		slog.String("query", query),
		slog.String("mode", string(opts.Mode)),
		slog.Int("results", len(results)))
	return results, nil
}

// sortCandidates orders by fused score descending; ties break by the
// owning document's recency, then chunk id.
func (e *Engine) sortCandidates(candidates []fused, chunks []store.Record, gen *store.Generation) {
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		ua := gen.Docs[chunks[ca.idx].OwningStableID].UpdatedAt
		ub := gen.Docs[chunks[cb.idx].OwningStableID].UpdatedAt
		if !ua.Equal(ub) {
			return ua.After(ub)
		}
		return chunks[ca.idx].ChunkID < chunks[cb.idx].ChunkID
	})
}

// aggregate collapses ranked chunks to the requested granularity. The
// representative of a group is its highest-ranked chunk and the group
// scores what its representative scores.
func (e *Engine) aggregate(candidates []fused, chunks []store.Record, gen *store.Generation, opts Options) []Result {
	switch opts.AggregateBy {
	case AggregateDoc:
		return e.groupBy(candidates, chunks, gen, opts.Limit, false, func(rec store.Record) string {
			return rec.OwningStableID
		})
	case AggregateFolder:
		return e.groupBy(candidates, chunks, gen, opts.Limit, true, func(rec store.Record) string {
			return topFolder(gen.Docs[rec.OwningStableID].RelPath)
		})
	default:
		limit := opts.Limit
		if len(candidates) < limit {
			limit = len(candidates)
		}
		results := make([]Result, 0, limit)
		for _, c := range candidates[:limit] {
			results = append(results, e.newResult(c, chunks, gen))
		}
		return results
	}
}

// groupBy keeps one result per group key, in representative order.
// With countDocs set, each group also counts its distinct documents.
func (e *Engine) groupBy(candidates []fused, chunks []store.Record, gen *store.Generation, limit int, countDocs bool, keyOf func(store.Record) string) []Result {
	var results []Result
	byKey := make(map[string]int)
	docsInGroup := make(map[string]map[string]struct{})

	addDoc := func(key, stableID string) int {
		if docsInGroup[key] == nil {
			docsInGroup[key] = make(map[string]struct{})
		}
		docsInGroup[key][stableID] = struct{}{}
		return len(docsInGroup[key])
	}

	for _, c := range candidates {
		rec := chunks[c.idx]
		key := keyOf(rec)
		if pos, ok := byKey[key]; ok {
			results[pos].HitCount++
			if countDocs {
				results[pos].DocCount = addDoc(key, rec.OwningStableID)
			}
			continue
		}
		if len(results) >= limit {
			// Group already full; later chunks of unseen groups are
			// beyond the cut but existing groups keep counting hits.
			continue
		}
		byKey[key] = len(results)
		res := e.newResult(c, chunks, gen)
		res.Folder = topFolder(res.RelPath)
		if countDocs {
			res.DocCount = addDoc(key, rec.OwningStableID)
		}
		results = append(results, res)
	}
	return results
}

// newResult materializes one hit, attaching the citation from metadata
// cached in the generation. The content store is never consulted here.
func (e *Engine) newResult(c fused, chunks []store.Record, gen *store.Generation) Result {
	rec := chunks[c.idx]
	meta := gen.Docs[rec.OwningStableID]

	citation := corpus.CitationURL(rec.OwningStableID)
	if rec.OwningStableID == "" {
		citation = corpus.CitationURLWithFallback("", meta.RelPath)
	}

	return Result{
		ChunkID:        rec.ChunkID,
		OwningStableID: rec.OwningStableID,
		RelPath:        meta.RelPath,
		HeadingPath:    rec.HeadingPath,
		Text:           rec.Text,
		Score:          c.score,
		MatchedBy:      c.matchedBy(),
		Citation:       citation,
		HitCount:       1,
		EntryID:        rec.EntryID,
		EntryDate:      rec.EntryDate,
	}
}

// filterByDocType narrows chunks to those owned by documents of the
// given type.
func filterByDocType(gen *store.Generation, docType corpus.DocType) []store.Record {
	var out []store.Record
	for _, rec := range gen.Chunks {
		if gen.Docs[rec.OwningStableID].DocType == docType {
			out = append(out, rec)
		}
	}
	return out
}

// topFolder returns the top-level path segment, or the empty string
// for documents at the corpus root.
func topFolder(relPath string) string {
	if idx := strings.Index(relPath, "/"); idx >= 0 {
		return relPath[:idx]
	}
	return ""
}
