// Package search answers queries against the committed index using
// hybrid vector plus keyword retrieval with rank fusion.
package search

import (
	"time"

	"github.com/opencontext/opencontext/internal/corpus"
)

// Mode selects the retrieval axes.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
)

// Aggregate selects the result granularity.
type Aggregate string

const (
	AggregateContent Aggregate = "content"
	AggregateDoc     Aggregate = "doc"
	AggregateFolder  Aggregate = "folder"
)

// Matched-by labels. A chunk found on both axes gets the combined label.
const (
	MatchedByVector  = "vector"
	MatchedByKeyword = "keyword"
	MatchedByBoth    = "vector+keyword"
)

// Options controls one search call. Zero values mean hybrid mode,
// content aggregation and the engine's default limit.
type Options struct {
	Limit       int
	Mode        Mode
	AggregateBy Aggregate
	DocType     corpus.DocType
}

// Result is one search hit. Ephemeral, never persisted.
type Result struct {
	// ChunkID identifies the matched (or representative) chunk.
	ChunkID string `json:"chunk_id"`

	// OwningStableID and RelPath identify the owning document.
	OwningStableID string `json:"owning_stable_id"`
	RelPath        string `json:"rel_path"`

	// Folder is the top-level path segment, set for folder aggregation.
	Folder string `json:"folder,omitempty"`

	HeadingPath []string `json:"heading_path,omitempty"`
	Text        string   `json:"text"`

	// Score is the fused relevance score.
	Score float64 `json:"score"`

	// MatchedBy is vector, keyword or vector+keyword.
	MatchedBy string `json:"matched_by"`

	// Citation is the durable oc://doc/<stable_id> reference.
	Citation string `json:"citation"`

	// HitCount is how many chunks matched within the same document or
	// folder; 1 for content aggregation.
	HitCount int `json:"hit_count"`

	// DocCount is how many distinct documents matched within a folder
	// group; 0 outside folder aggregation.
	DocCount int `json:"doc_count,omitempty"`

	// EntryID and EntryDate are set for idea-document chunks.
	EntryID   string     `json:"entry_id,omitempty"`
	EntryDate *time.Time `json:"entry_date,omitempty"`
}
