// Package store persists index generations: versioned snapshots of all
// chunks plus the document metadata the searcher needs for citations.
//
// A generation lives in its own directory; a CURRENT pointer file names
// the committed one. Readers always see either the previous complete
// generation or the next complete one, never a partial write.
package store

import (
	"time"

	bleve "github.com/blevesearch/bleve/v2"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/corpus"
)

// DocMeta is the per-document metadata cached inside a generation so
// the searcher can attach citations without touching the content store.
type DocMeta struct {
	StableID    string         `json:"stable_id"`
	RelPath     string         `json:"rel_path"`
	Description string         `json:"description,omitempty"`
	DocType     corpus.DocType `json:"doc_type"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Record is one persisted chunk with its embedding vector.
type Record struct {
	chunk.Chunk
	Vector []float32 `json:"vector"`
}

// Generation is a complete committed index snapshot.
type Generation struct {
	// ID orders generations; newer builds get larger ids.
	ID string `json:"id"`

	// Model is the embedding model the vectors came from.
	Model string `json:"model"`

	// CreatedAt is the commit time.
	CreatedAt time.Time `json:"created_at"`

	// Docs maps owning stable id to cached document metadata.
	Docs map[string]DocMeta `json:"docs"`

	// Chunks is every chunk in the snapshot.
	Chunks []Record `json:"-"`

	// keyword is the generation's open bleve index. Set by Load,
	// released by Close. Nil on a Generation returned from Commit.
	keyword bleve.Index
}

// Stats summarizes the committed generation for status reporting.
type Stats struct {
	Exists      bool      `json:"exists"`
	TotalChunks int       `json:"total_chunks"`
	LastUpdated time.Time `json:"last_updated"`
	Model       string    `json:"model,omitempty"`
}
