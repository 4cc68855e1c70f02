package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontext/opencontext/internal/corpus"
)

func TestChunk_HeadingSections(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text: `# Plan

## Goals

Ship the search index.

## Risks

Embedding API quota exhaustion.
`,
	})

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"Plan", "Goals"}, chunks[0].HeadingPath)
	assert.Equal(t, "Ship the search index.", chunks[0].Text)
	assert.Equal(t, []string{"Plan", "Risks"}, chunks[1].HeadingPath)
	assert.Contains(t, chunks[1].Text, "quota")

	// Seq and ids are positional and deterministic.
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, 1, chunks[1].Seq)
	assert.Equal(t, ChunkID("doc-1", 0), chunks[0].ChunkID)
	assert.Equal(t, ChunkID("doc-1", 1), chunks[1].ChunkID)
}

func TestChunk_HeadingStackClearsDeeperLevels(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text: `# A

## B

under b

# C

under c
`,
	})

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"A", "B"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"C"}, chunks[1].HeadingPath)
}

func TestChunk_NoHeadings(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text:     "just a paragraph\n\nand another\n",
	})

	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].HeadingPath)
	assert.Contains(t, chunks[0].Text, "just a paragraph")
}

func TestChunk_EmptySectionsDropped(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text:     "# Empty\n\n## Also Empty\n\n## Full\n\ncontent\n",
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Empty", "Full"}, chunks[0].HeadingPath)
}

func TestChunk_WhitespaceOnlyDocument(t *testing.T) {
	c := New(Options{})
	assert.Nil(t, c.Chunk(Input{StableID: "doc-1", DocType: corpus.DocTypeDoc, Text: "  \n\t\n"}))
}

func TestChunk_OversizedSectionSplitsWithOverlap(t *testing.T) {
	c := New(Options{MaxChunkChars: 200, OverlapChars: 40})

	var b strings.Builder
	b.WriteString("# Big\n\n")
	for i := 0; i < 10; i++ {
		b.WriteString("paragraph with enough words to take up meaningful space here\n\n")
	}

	chunks := c.Chunk(Input{StableID: "doc-1", DocType: corpus.DocTypeDoc, Text: b.String()})
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.Equal(t, []string{"Big"}, ch.HeadingPath)
		assert.LessOrEqual(t, len(ch.Text), 200+40+4)
	}
	// Overlap: each continuation chunk starts with the tail of its predecessor.
	tail := overlapTail(chunks[0].Text, 40)
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail))
}

func TestChunk_FencedCodeBlockStaysIntact(t *testing.T) {
	code := "```go\nfunc main() {\n\n\tprintln(\"hi\")\n\n}\n```"
	c := New(Options{MaxChunkChars: 60, OverlapChars: 0})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text:     "# Code\n\nintro paragraph\n\n" + code + "\n",
	})

	var withCode *Chunk
	for i := range chunks {
		if strings.Contains(chunks[i].Text, "```go") {
			withCode = &chunks[i]
		}
	}
	require.NotNil(t, withCode)
	assert.Contains(t, withCode.Text, "func main()")
	assert.Equal(t, 2, strings.Count(withCode.Text, "```"))
}

func TestChunk_HeadingInsideFenceIsNotStructure(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text:     "# Real\n\n```\n# not a heading\n```\n",
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Real"}, chunks[0].HeadingPath)
	assert.Contains(t, chunks[0].Text, "# not a heading")
}

func TestChunk_IdeaEntries(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk(Input{
		StableID: "idea-1",
		DocType:  corpus.DocTypeIdea,
		Text: `## 2026-01-05 Use RRF for fusion

Reciprocal rank fusion handles scale mismatch.

## 2026-02-10 Stable citations

Cite by id, not path.

## Untitled thought

No date on this one.
`,
	})

	require.Len(t, chunks, 3)

	assert.Equal(t, "idea-1#1", chunks[0].EntryID)
	require.NotNil(t, chunks[0].EntryDate)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), *chunks[0].EntryDate)
	assert.Equal(t, []string{"2026-01-05 Use RRF for fusion"}, chunks[0].HeadingPath)

	assert.Equal(t, "idea-1#2", chunks[1].EntryID)
	require.NotNil(t, chunks[1].EntryDate)

	assert.Equal(t, "idea-1#3", chunks[2].EntryID)
	assert.Nil(t, chunks[2].EntryDate)
}

func TestChunk_HashStability(t *testing.T) {
	c := New(Options{})
	in := Input{
		StableID: "doc-1",
		DocType:  corpus.DocTypeDoc,
		Text:     "# A\n\nalpha\n\n# B\n\nbeta\n",
	}

	first := c.Chunk(in)
	second := c.Chunk(in)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

func TestContentHash_HeadingContextMatters(t *testing.T) {
	body := "same body"
	assert.NotEqual(t,
		ContentHash([]string{"A"}, body),
		ContentHash([]string{"B"}, body))
}

func TestTokenize_DropsPunctuationAndShortWords(t *testing.T) {
	toks := Tokenize("Hello, world! 42x a")
	assert.Equal(t, []string{"hello", "world", "42x"}, toks)
}

func TestTokenize_HanCharactersAndBigrams(t *testing.T) {
	// A han run yields every character plus overlapping 2-grams, so a
	// two-character query like 笔记 overlaps indexed longer runs.
	toks := Tokenize("中文笔记")
	assert.Equal(t, []string{"中", "中文", "文", "文笔", "笔", "笔记", "记"}, toks)
}

func TestTokenize_MixedHanAndLatin(t *testing.T) {
	toks := Tokenize("搜索engine设计")
	assert.Equal(t, []string{"搜", "搜索", "索", "engine", "设", "设计", "计"}, toks)
}

func TestTokenize_SingleHanCharacterKept(t *testing.T) {
	// The two-character minimum applies to alphabetic runs only.
	assert.Equal(t, []string{"茶"}, Tokenize("茶"))
}

func TestTokenize_HanRunsSplitByPunctuation(t *testing.T) {
	// Punctuation breaks a run: no 2-gram spans the comma.
	toks := Tokenize("开会，记录")
	assert.Equal(t, []string{"开", "开会", "会", "记", "记录", "录"}, toks)
}
