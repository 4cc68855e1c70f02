// Package chunk splits Markdown documents into retrievable units.
//
// Chunking is a pure function of document text plus owning stable id:
// the same input always yields the same chunk ids and content hashes,
// which is what incremental re-embedding diffs against.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/opencontext/opencontext/internal/corpus"
)

// Default splitting parameters, overridable via config.
const (
	DefaultMaxChunkChars = 2000
	DefaultOverlapChars  = 200
)

// Chunk is the smallest retrievable unit of document text.
type Chunk struct {
	// ChunkID is deterministic for a given owning document and position.
	ChunkID string `json:"chunk_id"`

	// OwningStableID is the stable id of the owning document.
	OwningStableID string `json:"owning_stable_id"`

	// Seq is the chunk's position within its document.
	Seq int `json:"seq"`

	// HeadingPath is the stack of ancestor headings, outermost first.
	// Empty for text before the first heading or headingless documents.
	HeadingPath []string `json:"heading_path,omitempty"`

	// Text is the chunk body, without the heading line itself.
	Text string `json:"text"`

	// ContentHash detects changed content between index generations.
	ContentHash string `json:"content_hash"`

	// EntryID and EntryDate are set only for idea-document chunks.
	EntryID   string     `json:"entry_id,omitempty"`
	EntryDate *time.Time `json:"entry_date,omitempty"`
}

// Input is the document handed to the chunker.
type Input struct {
	StableID string
	DocType  corpus.DocType
	Text     string
}

// ChunkID derives the deterministic id for a chunk position.
func ChunkID(stableID string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", stableID, seq)))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash hashes a chunk's heading context and text. Moving a
// section under a different heading changes the hash, so it gets
// re-embedded even when the body is unchanged.
func ContentHash(headingPath []string, text string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(headingPath, " > ")))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
