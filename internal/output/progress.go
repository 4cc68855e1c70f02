package output

import (
	"github.com/opencontext/opencontext/internal/index"
)

// BuildProgress adapts a Writer to the build observer interface.
type BuildProgress struct {
	w *Writer
}

// NewBuildProgress creates a progress observer rendering to w.
func NewBuildProgress(w *Writer) *BuildProgress {
	return &BuildProgress{w: w}
}

var _ index.Observer = (*BuildProgress)(nil)

// OnProgress renders one build event.
func (p *BuildProgress) OnProgress(e index.Event) {
	switch e.Phase {
	case index.PhaseDone:
		p.w.Success(e.Message)
	case index.PhaseEmbedding:
		if e.Total == 0 {
			return // nothing to embed, skip the empty bar
		}
		p.w.Progress(string(e.Phase), e.Current, e.Total)
	default:
		p.w.Progress(string(e.Phase), e.Current, e.Total)
	}
}
