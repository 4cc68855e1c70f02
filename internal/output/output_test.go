package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencontext/opencontext/internal/index"
)

func TestWriter_StatusAndSuccess(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("index built")
	w.Error("something failed")
	w.Status("", "plain line")

	out := buf.String()
	assert.Contains(t, out, "✓ index built")
	assert.Contains(t, out, "✗ something failed")
	assert.Contains(t, out, "   plain line")
}

func TestWriter_ProgressNonTTYPrintsOnlyCompletion(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf) // a bytes.Buffer is never a terminal

	w.Progress("embedding", 1, 4)
	w.Progress("embedding", 2, 4)
	w.Progress("embedding", 4, 4)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "embedding"))
	assert.Contains(t, out, "embedding: 4/4")
	assert.NotContains(t, out, "\r")
}

func TestBuildProgress_RendersPhases(t *testing.T) {
	var buf bytes.Buffer
	p := NewBuildProgress(New(&buf))

	p.OnProgress(index.Event{Phase: index.PhaseChunking, Current: 1, Total: 1})
	p.OnProgress(index.Event{Phase: index.PhaseEmbedding, Current: 0, Total: 0})
	p.OnProgress(index.Event{Phase: index.PhaseStoring, Current: 2, Total: 2})
	p.OnProgress(index.Event{Phase: index.PhaseDone, Current: 2, Total: 2, Message: "2 chunks indexed"})

	out := buf.String()
	assert.Contains(t, out, "chunking: 1/1")
	assert.Contains(t, out, "storing: 2/2")
	assert.Contains(t, out, "✓ 2 chunks indexed")
	// Nothing-to-embed renders no embedding line at all.
	assert.NotContains(t, out, "embedding")
}
