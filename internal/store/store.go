package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	bleve "github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"

	"github.com/opencontext/opencontext/internal/ocerrors"
)

const (
	currentFile   = "CURRENT"
	manifestFile  = "manifest.json"
	chunksFile    = "chunks.jsonl"
	buildLockFile = ".build.lock"
	genPrefix     = "gen-"
)

// generationManifest is the on-disk header of one generation.
type generationManifest struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	CreatedAt   time.Time          `json:"created_at"`
	TotalChunks int                `json:"total_chunks"`
	Docs        map[string]DocMeta `json:"docs"`
}

// Store manages index generations under one directory.
type Store struct {
	dir    string
	logger *slog.Logger

	// building guards against a second in-process build; the flock
	// guards against other processes.
	building atomic.Bool
}

// Open creates a store over the given index directory. The directory
// is created lazily on the first build.
func Open(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// loadRetries bounds re-resolution of the CURRENT pointer when the
// generation it named vanishes mid-read.
const loadRetries = 3

// Load reads the committed generation, chunks and keyword index
// included. Returns a KindIndexNotAvailable error when no generation
// has been committed. Callers own the returned generation and must
// Close it.
//
// A concurrent commit prunes the replaced generation right after its
// pointer swap, so a reader that resolved the old pointer can find the
// directory gone. The swap always precedes the prune, so re-reading the
// pointer yields the replacement; a short retry closes the race.
func (s *Store) Load() (*Generation, error) {
	var lastErr error
	for attempt := 0; attempt < loadRetries; attempt++ {
		manifest, genDir, err := s.currentManifest()
		if err != nil {
			if generationVanished(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		gen, err := s.loadGeneration(manifest, genDir)
		if err != nil {
			if generationVanished(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return gen, nil
	}
	return nil, lastErr
}

// loadGeneration reads one generation directory into memory and opens
// its keyword index read-only.
func (s *Store) loadGeneration(manifest *generationManifest, genDir string) (*Generation, error) {
	gen := &Generation{
		ID:        manifest.ID,
		Model:     manifest.Model,
		CreatedAt: manifest.CreatedAt,
		Docs:      manifest.Docs,
		Chunks:    make([]Record, 0, manifest.TotalChunks),
	}

	f, err := os.Open(filepath.Join(genDir, chunksFile))
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to open chunk data", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, ocerrors.Wrap(ocerrors.KindIO, "corrupt chunk record", err)
		}
		gen.Chunks = append(gen.Chunks, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to read chunk data", err)
	}
	if len(gen.Chunks) != manifest.TotalChunks {
		return nil, ocerrors.New(ocerrors.KindIO,
			fmt.Sprintf("generation %s has %d chunks, manifest says %d",
				manifest.ID, len(gen.Chunks), manifest.TotalChunks))
	}

	idx, err := bleve.OpenUsing(filepath.Join(genDir, keywordDir),
		map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to open keyword index", err)
	}
	gen.keyword = idx
	return gen, nil
}

// generationVanished reports whether err means the generation directory
// was pruned between the pointer read and the data read.
func generationVanished(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, bleve.ErrorIndexPathDoesNotExist)
}

// Stats reads summary information without loading chunk data.
func (s *Store) Stats() (Stats, error) {
	var manifest *generationManifest
	var err error
	for attempt := 0; attempt < loadRetries; attempt++ {
		manifest, _, err = s.currentManifest()
		if err == nil || !generationVanished(err) {
			break
		}
	}
	if err != nil {
		if ocerrors.IsKind(err, ocerrors.KindIndexNotAvailable) {
			return Stats{}, nil
		}
		return Stats{}, err
	}
	return Stats{
		Exists:      true,
		TotalChunks: manifest.TotalChunks,
		LastUpdated: manifest.CreatedAt,
		Model:       manifest.Model,
	}, nil
}

// Remove deletes the committed generation and the CURRENT pointer;
// status afterwards reports "not built".
func (s *Store) Remove() error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to read index dir", err)
	}
	if err := os.Remove(filepath.Join(s.dir, currentFile)); err != nil && !os.IsNotExist(err) {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to remove index pointer", err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), genPrefix) {
			if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
				return ocerrors.Wrap(ocerrors.KindIO, "failed to remove generation", err)
			}
		}
	}
	return nil
}

// BeginBuild starts writing a fresh generation. A build already in
// progress, in this process or another, is rejected.
func (s *Store) BeginBuild(model string) (*WriteHandle, error) {
	if !s.building.CompareAndSwap(false, true) {
		return nil, ocerrors.New(ocerrors.KindConcurrentBuildRejected,
			"an index build is already in progress")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.building.Store(false)
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to create index dir", err)
	}

	lock := flock.New(filepath.Join(s.dir, buildLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		s.building.Store(false)
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to acquire build lock", err)
	}
	if !locked {
		s.building.Store(false)
		return nil, ocerrors.New(ocerrors.KindConcurrentBuildRejected,
			"another process is building this index")
	}

	id := fmt.Sprintf("%d", time.Now().UnixNano())
	genDir := filepath.Join(s.dir, genPrefix+id)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		_ = lock.Unlock()
		s.building.Store(false)
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to create generation dir", err)
	}

	f, err := os.Create(filepath.Join(genDir, chunksFile))
	if err != nil {
		_ = os.RemoveAll(genDir)
		_ = lock.Unlock()
		s.building.Store(false)
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to create chunk data file", err)
	}

	kwMapping, err := keywordMapping()
	if err != nil {
		_ = f.Close()
		_ = os.RemoveAll(genDir)
		_ = lock.Unlock()
		s.building.Store(false)
		return nil, err
	}
	kw, err := bleve.New(filepath.Join(genDir, keywordDir), kwMapping)
	if err != nil {
		_ = f.Close()
		_ = os.RemoveAll(genDir)
		_ = lock.Unlock()
		s.building.Store(false)
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to create keyword index", err)
	}

	return &WriteHandle{
		store:   s,
		lock:    lock,
		id:      id,
		genDir:  genDir,
		file:    f,
		writer:  bufio.NewWriterSize(f, 1<<20),
		model:   model,
		docs:    make(map[string]DocMeta),
		keyword: kw,
		batch:   kw.NewBatch(),
	}, nil
}

// currentManifest resolves the CURRENT pointer and reads the manifest
// it names.
func (s *Store) currentManifest() (*generationManifest, string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ocerrors.New(ocerrors.KindIndexNotAvailable,
				"no index has been built; run a build first")
		}
		return nil, "", ocerrors.Wrap(ocerrors.KindIO, "failed to read index pointer", err)
	}

	id := strings.TrimSpace(string(data))
	genDir := filepath.Join(s.dir, genPrefix+id)

	raw, err := os.ReadFile(filepath.Join(genDir, manifestFile))
	if err != nil {
		// Includes the pointer naming a generation that a concurrent
		// commit has pruned; Load and Stats re-resolve on that.
		return nil, "", ocerrors.Wrap(ocerrors.KindIO, "failed to read generation manifest", err)
	}

	var manifest generationManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, "", ocerrors.Wrap(ocerrors.KindIO, "corrupt generation manifest", err)
	}
	return &manifest, genDir, nil
}

// keywordBatchSize bounds memory held by pending keyword index writes.
const keywordBatchSize = 500

// WriteHandle accumulates one in-progress generation. Not safe for
// concurrent use; the build orchestrator owns it exclusively.
type WriteHandle struct {
	store   *Store
	lock    *flock.Flock
	id      string
	genDir  string
	file    *os.File
	writer  *bufio.Writer
	model   string
	docs    map[string]DocMeta
	keyword bleve.Index
	batch   *bleve.Batch
	count   int
	done    bool
}

// PutDocument caches a document's metadata in the generation.
func (w *WriteHandle) PutDocument(meta DocMeta) {
	w.docs[meta.StableID] = meta
}

// PutChunk appends one chunk record and queues it for keyword indexing.
func (w *WriteHandle) PutChunk(rec Record) error {
	if w.done {
		return ocerrors.New(ocerrors.KindInternal, "write handle already finished")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to encode chunk record", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to write chunk record", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to write chunk record", err)
	}

	if err := w.batch.Index(rec.ChunkID, keywordDoc{Content: keywordText(rec)}); err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to queue chunk for keyword index", err)
	}
	if w.batch.Size() >= keywordBatchSize {
		if err := w.keyword.Batch(w.batch); err != nil {
			return ocerrors.Wrap(ocerrors.KindIO, "failed to write keyword index batch", err)
		}
		w.batch = w.keyword.NewBatch()
	}

	w.count++
	return nil
}

// Commit durably writes the generation and swaps the CURRENT pointer.
// Older generations are removed after the swap.
func (w *WriteHandle) Commit() (*Generation, error) {
	if w.done {
		return nil, ocerrors.New(ocerrors.KindInternal, "write handle already finished")
	}
	w.done = true
	defer w.release()

	if err := w.writer.Flush(); err != nil {
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to flush chunk data", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to sync chunk data", err)
	}
	if err := w.file.Close(); err != nil {
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to close chunk data", err)
	}

	// Finish the keyword index before the manifest: a visible manifest
	// implies a complete generation directory.
	if w.batch.Size() > 0 {
		if err := w.keyword.Batch(w.batch); err != nil {
			w.discard()
			return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to write keyword index batch", err)
		}
	}
	if err := w.keyword.Close(); err != nil {
		w.keyword = nil
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to close keyword index", err)
	}
	w.keyword = nil

	manifest := generationManifest{
		ID:          w.id,
		Model:       w.model,
		CreatedAt:   time.Now().UTC(),
		TotalChunks: w.count,
		Docs:        w.docs,
	}
	data, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to encode manifest", err)
	}
	if err := writeFileSync(filepath.Join(w.genDir, manifestFile), data); err != nil {
		w.discard()
		return nil, err
	}

	// The pointer swap is the commit point: write CURRENT to a temp
	// file and rename over the old one.
	pointer := filepath.Join(w.store.dir, currentFile)
	tmp := pointer + ".tmp"
	if err := writeFileSync(tmp, []byte(w.id+"\n")); err != nil {
		w.discard()
		return nil, err
	}
	if err := os.Rename(tmp, pointer); err != nil {
		w.discard()
		return nil, ocerrors.Wrap(ocerrors.KindIO, "failed to swap index pointer", err)
	}

	w.store.pruneOldGenerations(w.id)
	w.store.logger.Info("index generation committed",
		slog.String("generation", w.id),
		slog.Int("total_chunks", w.count))

	return &Generation{
		ID:        manifest.ID,
		Model:     manifest.Model,
		CreatedAt: manifest.CreatedAt,
		Docs:      manifest.Docs,
	}, nil
}

// Abort discards the in-progress generation. The previously committed
// generation is untouched.
func (w *WriteHandle) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.file.Close()
	w.discard()
	w.release()
	w.store.logger.Info("index build aborted", slog.String("generation", w.id))
}

func (w *WriteHandle) discard() {
	if w.keyword != nil {
		_ = w.keyword.Close()
		w.keyword = nil
	}
	_ = os.RemoveAll(w.genDir)
}

func (w *WriteHandle) release() {
	_ = w.lock.Unlock()
	w.store.building.Store(false)
}

// pruneOldGenerations removes every generation dir other than the
// freshly committed one.
func (s *Store) pruneOldGenerations(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, genPrefix) || name == genPrefix+keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to prune old generation",
				slog.String("generation", name), slog.String("error", err.Error()))
		}
	}
}

// writeFileSync writes a file and fsyncs it before returning.
func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to create "+filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return ocerrors.Wrap(ocerrors.KindIO, "failed to write "+filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return ocerrors.Wrap(ocerrors.KindIO, "failed to sync "+filepath.Base(path), err)
	}
	return f.Close()
}
