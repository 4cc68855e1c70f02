package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencontext/opencontext/internal/ocerrors"
)

// manifestName is the manifest file under the data directory.
const manifestName = "manifest.json"

// ideaDirName is the top-level folder whose documents default to idea type.
const ideaDirName = "ideas"

// manifestEntry is the persisted record for one document. The content
// hash is kept so a moved file can be re-associated with its stable id.
type manifestEntry struct {
	StableID    string    `json:"stable_id"`
	RelPath     string    `json:"rel_path"`
	Description string    `json:"description,omitempty"`
	DocType     DocType   `json:"doc_type"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// manifest is the on-disk id-to-path registry.
type manifest struct {
	Version   int              `json:"version"`
	Documents []*manifestEntry `json:"documents"`
}

// FSStore is a content store backed by a directory of Markdown files.
// Stable ids are assigned once and persisted in .oc/manifest.json; a
// file moved without content change keeps its id (matched by content
// hash), which is what makes citations survive renames.
type FSStore struct {
	root    string
	dataDir string

	mu      sync.Mutex
	entries map[string]*manifestEntry // keyed by stable id
}

var _ Store = (*FSStore)(nil)

// NewFSStore opens (or initializes) a filesystem content store rooted
// at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to resolve corpus root", err)
	}
	s := &FSStore{
		root:    abs,
		dataDir: filepath.Join(abs, ".oc"),
		entries: make(map[string]*manifestEntry),
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute corpus root path.
func (s *FSStore) Root() string {
	return s.root
}

// ListDocuments enumerates documents after reconciling the manifest
// with the filesystem.
func (s *FSStore) ListDocuments(ctx context.Context, scope string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return nil, err
	}

	scope = filepath.ToSlash(strings.Trim(scope, "/"))
	var docs []Document
	for _, e := range s.entries {
		if scope != "" && !strings.HasPrefix(e.RelPath, scope+"/") && e.RelPath != scope {
			continue
		}
		docs = append(docs, Document{
			StableID:    e.StableID,
			RelPath:     e.RelPath,
			Description: e.Description,
			DocType:     e.DocType,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].RelPath < docs[j].RelPath })
	return docs, nil
}

// GetContent returns the raw Markdown text of a document.
func (s *FSStore) GetContent(_ context.Context, relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ocerrors.Wrap(ocerrors.KindDocumentVanished,
				fmt.Sprintf("document %s no longer exists", relPath), err)
		}
		return "", ocerrors.Wrap(ocerrors.KindIO, "failed to read document", err)
	}
	return string(data), nil
}

// ResolveByStableID returns the current rel path for a stable id.
func (s *FSStore) ResolveByStableID(ctx context.Context, stableID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return "", err
	}
	if e, ok := s.entries[stableID]; ok {
		return e.RelPath, nil
	}
	return "", ocerrors.New(ocerrors.KindDocumentVanished,
		fmt.Sprintf("no document with stable id %s", stableID))
}

// SetDescription updates the free-text description for a document.
func (s *FSStore) SetDescription(stableID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[stableID]
	if !ok {
		return ocerrors.New(ocerrors.KindDocumentVanished,
			fmt.Sprintf("no document with stable id %s", stableID))
	}
	e.Description = description
	return s.saveManifestLocked()
}

// syncLocked reconciles the manifest with the filesystem: new files get
// fresh stable ids, moved files are adopted by content hash, and entries
// whose file is gone are dropped. Caller holds s.mu.
func (s *FSStore) syncLocked(ctx context.Context) error {
	onDisk, err := s.scanMarkdown(ctx)
	if err != nil {
		return err
	}

	byPath := make(map[string]*manifestEntry, len(s.entries))
	for _, e := range s.entries {
		byPath[e.RelPath] = e
	}

	changed := false

	// Entries whose path still exists: refresh mtime and hash.
	var orphans []*manifestEntry
	for _, e := range s.entries {
		info, ok := onDisk[e.RelPath]
		if !ok {
			orphans = append(orphans, e)
			continue
		}
		if !info.modTime.Equal(e.UpdatedAt) {
			hash, err := s.hashFile(e.RelPath)
			if err != nil {
				return err
			}
			e.ContentHash = hash
			e.UpdatedAt = info.modTime
			changed = true
		}
	}

	// New paths: adopt an orphan with identical content (rename/move),
	// otherwise mint a new document.
	for relPath, info := range onDisk {
		if _, ok := byPath[relPath]; ok {
			continue
		}
		hash, err := s.hashFile(relPath)
		if err != nil {
			return err
		}

		var adopted *manifestEntry
		for _, o := range orphans {
			if o.ContentHash == hash {
				adopted = o
				break
			}
		}
		if adopted != nil {
			adopted.RelPath = relPath
			adopted.UpdatedAt = info.modTime
			orphans = removeEntry(orphans, adopted)
			changed = true
			continue
		}

		id := uuid.NewString()
		e := &manifestEntry{
			StableID:    id,
			RelPath:     relPath,
			DocType:     docTypeForPath(relPath),
			ContentHash: hash,
			UpdatedAt:   info.modTime,
		}
		s.entries[id] = e
		changed = true
	}

	// Whatever is left orphaned is deleted.
	for _, o := range orphans {
		delete(s.entries, o.StableID)
		changed = true
	}

	if changed {
		return s.saveManifestLocked()
	}
	return nil
}

type fileInfo struct {
	modTime time.Time
}

// scanMarkdown walks the corpus root collecting Markdown files, skipping
// the data directory and hidden entries.
func (s *FSStore) scanMarkdown(ctx context.Context) (map[string]fileInfo, error) {
	result := make(map[string]fileInfo)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		result[filepath.ToSlash(rel)] = fileInfo{modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to scan corpus", err)
	}
	return result, nil
}

// hashFile hashes a document's content for move detection.
func (s *FSStore) hashFile(relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil {
		return "", ocerrors.Wrap(ocerrors.KindIO, "failed to hash document", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// loadManifest reads the manifest from disk; a missing manifest means a
// fresh corpus.
func (s *FSStore) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, manifestName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to read manifest", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to parse manifest", err)
	}
	for _, e := range m.Documents {
		if e.DocType == "" {
			e.DocType = DocTypeDoc
		}
		s.entries[e.StableID] = e
	}
	return nil
}

// saveManifestLocked writes the manifest atomically. Caller holds s.mu.
func (s *FSStore) saveManifestLocked() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to create data dir", err)
	}

	m := manifest{Version: 1, Documents: make([]*manifestEntry, 0, len(s.entries))}
	for _, e := range s.entries {
		m.Documents = append(m.Documents, e)
	}
	sort.Slice(m.Documents, func(i, j int) bool { return m.Documents[i].RelPath < m.Documents[j].RelPath })

	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to marshal manifest", err)
	}

	target := filepath.Join(s.dataDir, manifestName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to write manifest", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to replace manifest", err)
	}
	return nil
}

// docTypeForPath assigns the default doc type on first sight of a file.
// Documents under the top-level ideas/ folder are journal-style.
func docTypeForPath(relPath string) DocType {
	if relPath == ideaDirName || strings.HasPrefix(relPath, ideaDirName+"/") {
		return DocTypeIdea
	}
	return DocTypeDoc
}

// removeEntry removes one entry from a slice, preserving order.
func removeEntry(entries []*manifestEntry, target *manifestEntry) []*manifestEntry {
	out := entries[:0]
	for _, e := range entries {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}
