package search

// fused is a chunk's combined standing across both retrieval axes.
type fused struct {
	idx       int
	score     float64
	inVector  bool
	inKeyword bool
}

func (f fused) matchedBy() string {
	switch {
	case f.inVector && f.inKeyword:
		return MatchedByBoth
	case f.inKeyword:
		return MatchedByKeyword
	default:
		return MatchedByVector
	}
}

// fuseRRF merges the two ranked lists with weighted reciprocal rank
// fusion: each list contributes weight/(k+rank). A chunk present in
// both lists is labeled vector+keyword.
func fuseRRF(vector, keyword []scored, k int, vectorWeight, keywordWeight float64) []fused {
	byIdx := make(map[int]*fused, len(vector)+len(keyword))

	get := func(idx int) *fused {
		if f, ok := byIdx[idx]; ok {
			return f
		}
		f := &fused{idx: idx}
		byIdx[idx] = f
		return f
	}

	for rank, s := range vector {
		f := get(s.idx)
		f.inVector = true
		f.score += vectorWeight / float64(k+rank+1)
	}
	for rank, s := range keyword {
		f := get(s.idx)
		f.inKeyword = true
		f.score += keywordWeight / float64(k+rank+1)
	}

	out := make([]fused, 0, len(byIdx))
	for _, f := range byIdx {
		out = append(out, *f)
	}
	return out
}

// singleAxis converts one ranked list into the fused shape, keeping the
// axis's native scores.
func singleAxis(ranked []scored, isVector bool) []fused {
	out := make([]fused, len(ranked))
	for i, s := range ranked {
		out[i] = fused{idx: s.idx, score: s.score, inVector: isVector, inKeyword: !isVector}
	}
	return out
}
