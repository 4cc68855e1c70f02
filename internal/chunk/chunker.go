package chunk

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opencontext/opencontext/internal/corpus"
)

// headingPattern matches ATX headings, levels 1 through 6.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Options configures the size-based sub-splitting of large sections.
type Options struct {
	// MaxChunkChars is the maximum chunk size before paragraph splitting.
	MaxChunkChars int
	// OverlapChars is the tail of the previous sub-chunk carried into
	// the next one so content straddling a split stays findable.
	OverlapChars int
}

// Chunker splits Markdown into chunks along heading boundaries.
type Chunker struct {
	maxChars int
	overlap  int
}

// New creates a chunker, filling zero options with defaults.
func New(opts Options) *Chunker {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.OverlapChars < 0 || opts.OverlapChars >= opts.MaxChunkChars {
		opts.OverlapChars = DefaultOverlapChars
	}
	return &Chunker{maxChars: opts.MaxChunkChars, overlap: opts.OverlapChars}
}

// Chunk splits a document into its ordered chunk sequence. Pure: the
// same input always produces the same chunks.
func (c *Chunker) Chunk(in Input) []Chunk {
	if strings.TrimSpace(in.Text) == "" {
		return nil
	}
	if in.DocType == corpus.DocTypeIdea {
		return c.chunkIdea(in)
	}
	return c.chunkDoc(in)
}

// section is one heading-delimited region of a document.
type section struct {
	path []string // heading stack, outermost first
	body string   // text below the heading, heading line excluded
}

// chunkDoc handles freeform pages: heading-boundary sections, each
// sub-split at paragraph boundaries when oversized.
func (c *Chunker) chunkDoc(in Input) []Chunk {
	var chunks []Chunk
	seq := 0
	for _, sec := range parseSections(in.Text) {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			continue
		}
		for _, text := range c.splitOversized(body) {
			chunks = append(chunks, newChunk(in.StableID, seq, sec.path, text, "", nil))
			seq++
		}
	}
	return chunks
}

// chunkIdea handles journal-style documents: one entry per chunk,
// entries delimited by level-2 headings. An ISO date prefix on the
// entry heading becomes the entry date.
func (c *Chunker) chunkIdea(in Input) []Chunk {
	var chunks []Chunk
	seq := 0
	entrySeq := 0

	emit := func(path []string, body, entryID string, date *time.Time) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		for _, text := range c.splitOversized(body) {
			chunks = append(chunks, newChunk(in.StableID, seq, path, text, entryID, date))
			seq++
		}
	}

	var path []string
	var entryID string
	var date *time.Time
	var body strings.Builder

	for _, line := range strings.Split(in.Text, "\n") {
		if strings.HasPrefix(line, "## ") {
			emit(path, body.String(), entryID, date)
			body.Reset()

			title := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			entrySeq++
			entryID = in.StableID + "#" + strconv.Itoa(entrySeq)
			path = []string{title}
			date = parseEntryDate(title)
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	emit(path, body.String(), entryID, date)

	return chunks
}

// parseSections walks the document tracking the heading stack, so
// nested sections inherit ancestor titles. Text before the first
// heading becomes a section with an empty path, as does a document
// with no headings at all. Heading lines inside fenced code blocks
// are treated as code, not structure.
func parseSections(text string) []section {
	var sections []section
	var stack [6]string
	var path []string
	var body strings.Builder
	inFence := false

	flush := func() {
		sections = append(sections, section{path: path, body: body.String()})
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		match := headingPattern.FindStringSubmatch(line)
		if match == nil || inFence {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		level := len(match[1])
		stack[level-1] = strings.TrimSpace(match[2])
		for i := level; i < len(stack); i++ {
			stack[i] = ""
		}
		path = nil
		for i := 0; i < level; i++ {
			if stack[i] != "" {
				path = append(path, stack[i])
			}
		}
	}
	flush()

	return sections
}

// splitOversized splits a section body at paragraph boundaries when it
// exceeds the configured maximum, carrying overlap between sub-chunks.
// Fenced code blocks stay intact even when they blow the size limit.
func (c *Chunker) splitOversized(body string) []string {
	if len(body) <= c.maxChars {
		return []string{body}
	}

	paragraphs := mergeFencedBlocks(splitParagraphs(body))

	var parts []string
	var cur strings.Builder
	for _, para := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(para)+2 > c.maxChars {
			parts = append(parts, cur.String())
			tail := overlapTail(cur.String(), c.overlap)
			cur.Reset()
			if tail != "" {
				cur.WriteString(tail)
				cur.WriteString("\n\n")
			}
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, cur.String())
	}
	return parts
}

// splitParagraphs splits on blank lines, dropping empty parts.
func splitParagraphs(body string) []string {
	var paragraphs []string
	for _, part := range strings.Split(body, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// mergeFencedBlocks rejoins paragraphs that were split inside a fenced
// code block, keeping the block atomic.
func mergeFencedBlocks(paragraphs []string) []string {
	var result []string
	var block strings.Builder
	open := false

	for _, para := range paragraphs {
		if open {
			block.WriteString("\n\n")
			block.WriteString(para)
			if strings.Count(para, "```")%2 == 1 {
				result = append(result, block.String())
				block.Reset()
				open = false
			}
			continue
		}
		if strings.Count(para, "```")%2 == 1 {
			open = true
			block.WriteString(para)
			continue
		}
		result = append(result, para)
	}
	if open {
		result = append(result, block.String())
	}
	return result
}

// overlapTail returns the last n characters of text, aligned to a
// word boundary so the carried context reads naturally.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return strings.TrimSpace(text)
	}
	tail := string(runes[len(runes)-n:])
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		tail = tail[idx:]
	}
	return strings.TrimSpace(tail)
}

// parseEntryDate extracts an ISO date (YYYY-MM-DD) prefix from an
// entry heading, if present.
func parseEntryDate(title string) *time.Time {
	if len(title) < 10 {
		return nil
	}
	t, err := time.Parse("2006-01-02", title[:10])
	if err != nil {
		return nil
	}
	return &t
}

// newChunk assembles one chunk with derived id and hash.
func newChunk(stableID string, seq int, path []string, text, entryID string, date *time.Time) Chunk {
	pathCopy := append([]string(nil), path...)
	return Chunk{
		ChunkID:        ChunkID(stableID, seq),
		OwningStableID: stableID,
		Seq:            seq,
		HeadingPath:    pathCopy,
		Text:           text,
		ContentHash:    ContentHash(pathCopy, text),
		EntryID:        entryID,
		EntryDate:      date,
	}
}
