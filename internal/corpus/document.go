// Package corpus is the content store: the durable registry of folders
// and Markdown documents, each carrying a stable identity that survives
// renames and moves.
//
// The indexer and searcher consume this package through the Store
// interface and never own document existence themselves: a document
// absent from the store is implicitly deleted from the index on the
// next rebuild.
package corpus

import (
	"context"
	"time"
)

// DocType distinguishes freeform pages from journal-style idea documents.
type DocType string

const (
	// DocTypeDoc is a freeform Markdown page.
	DocTypeDoc DocType = "doc"
	// DocTypeIdea is a journal-style document of timestamped entries.
	DocTypeIdea DocType = "idea"
)

// Document describes one Markdown document in the corpus.
type Document struct {
	// StableID is an immutable UUID assigned once at creation, never reused.
	StableID string `json:"stable_id"`
	// RelPath is the current location relative to the corpus root.
	RelPath string `json:"rel_path"`
	// Description is optional free text set by the user.
	Description string `json:"description,omitempty"`
	// DocType is doc or idea.
	DocType DocType `json:"doc_type"`
	// UpdatedAt is the timestamp of the last content write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the content store contract consumed by the indexer and the
// citation resolver. Implementations own the stable id to path mapping.
type Store interface {
	// ListDocuments enumerates documents, optionally restricted to a
	// folder scope (path prefix relative to the corpus root).
	ListDocuments(ctx context.Context, scope string) ([]Document, error)

	// GetContent returns the raw Markdown text of a document.
	GetContent(ctx context.Context, relPath string) (string, error)

	// ResolveByStableID returns the current rel path for a stable id.
	// Used only for citation display, never during search scoring.
	ResolveByStableID(ctx context.Context, stableID string) (string, error)
}
