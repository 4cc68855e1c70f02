package search

import (
	"sort"

	"github.com/opencontext/opencontext/internal/store"
)

// scored pairs a chunk index with a relevance score on one axis.
type scored struct {
	idx   int
	score float64
}

// rankVector scores chunks by similarity to the query vector and
// returns them best first. Vectors are unit length, so cosine
// similarity is a dot product.
func rankVector(chunks []store.Record, query []float32) []scored {
	var ranked []scored
	for i, rec := range chunks {
		if len(rec.Vector) != len(query) {
			continue
		}
		var dot float64
		for j, q := range query {
			dot += float64(q) * float64(rec.Vector[j])
		}
		if dot > 0 {
			ranked = append(ranked, scored{idx: i, score: dot})
		}
	}
	sortRanked(ranked, chunks)
	return ranked
}

// rankKeywordHits maps keyword index hits onto the candidate chunk
// slice and normalizes scores so the best match is 1.0, keeping keyword
// scores comparable across queries. Hits outside the slice, dropped by
// a doc-type filter, are skipped.
func rankKeywordHits(hits []store.KeywordHit, chunks []store.Record) []scored {
	if len(hits) == 0 {
		return nil
	}

	byID := make(map[string]int, len(chunks))
	for i, rec := range chunks {
		byID[rec.ChunkID] = i
	}

	var ranked []scored
	maxScore := 0.0
	for _, hit := range hits {
		idx, ok := byID[hit.ChunkID]
		if !ok || hit.Score <= 0 {
			continue
		}
		ranked = append(ranked, scored{idx: idx, score: hit.Score})
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	for i := range ranked {
		ranked[i].score /= maxScore
	}
	sortRanked(ranked, chunks)
	return ranked
}

// sortRanked orders by score descending with the deterministic
// tie-break: owning document recency, then chunk id.
func sortRanked(ranked []scored, chunks []store.Record) {
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return chunks[ranked[a].idx].ChunkID < chunks[ranked[b].idx].ChunkID
	})
}
