package store

import (
	"context"
	"strings"

	bleve "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/ocerrors"
)

// keywordDir is the bleve index inside a generation directory. It is
// written during the build and becomes visible with the rest of the
// generation at the CURRENT pointer swap.
const keywordDir = "keyword.bleve"

const (
	keywordTokenizer = "chunk_tokens"
	keywordAnalyzer  = "chunk_tokens"
)

// chunkTokenizer adapts chunk.Tokenize to bleve's analysis chain. Both
// indexed text and match queries pass through it, so chunks and queries
// share one vocabulary, han characters and their 2-grams included.
type chunkTokenizer struct{}

func (chunkTokenizer) Tokenize(input []byte) analysis.TokenStream {
	terms := chunk.Tokenize(string(input))
	stream := make(analysis.TokenStream, 0, len(terms))
	for i, term := range terms {
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Position: i + 1,
			Start:    0,
			End:      len(term),
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

func init() {
	registry.RegisterTokenizer(keywordTokenizer,
		func(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
			return chunkTokenizer{}, nil
		})
}

// keywordDoc is the indexed shape of one chunk.
type keywordDoc struct {
	Content string `json:"content"`
}

// keywordMapping builds an index mapping around the chunk tokenizer.
func keywordMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(keywordAnalyzer, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": keywordTokenizer,
	})
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindInternal, "failed to register keyword analyzer", err)
	}
	m.DefaultAnalyzer = keywordAnalyzer
	return m, nil
}

// keywordText is the searchable text of a record: heading context plus
// body, matching what the embedding sees.
func keywordText(rec Record) string {
	if len(rec.HeadingPath) == 0 {
		return rec.Text
	}
	return strings.Join(rec.HeadingPath, " ") + "\n" + rec.Text
}

// KeywordHit is one keyword match against a generation's index.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// SearchKeyword runs a match query over the generation's keyword index
// and returns up to size hits, best first. Scores are bleve's raw
// relevance scores; callers normalize across hits as needed.
func (g *Generation) SearchKeyword(ctx context.Context, query string, size int) ([]KeywordHit, error) {
	if g.keyword == nil {
		return nil, ocerrors.New(ocerrors.KindInternal, "generation has no keyword index open")
	}
	if size <= 0 {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequestOptions(mq, size, 0, false)

	res, err := g.keyword.SearchInContext(ctx, req)
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "keyword search failed", err)
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, KeywordHit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the generation's keyword index handle. Safe to call on
// a generation that never had one open.
func (g *Generation) Close() error {
	if g == nil || g.keyword == nil {
		return nil
	}
	idx := g.keyword
	g.keyword = nil
	if err := idx.Close(); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to close keyword index", err)
	}
	return nil
}
