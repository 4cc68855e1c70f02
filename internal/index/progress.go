package index

// Phase names the build pipeline stages. Observers rely on the exact
// string values.
type Phase string

const (
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseStoring   Phase = "storing"
	PhaseDone      Phase = "done"
)

// Event is one progress update from a build.
type Event struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Observer receives build progress. Implementations must be fast;
// they are called inline from the build pipeline.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnProgress(e Event) { f(e) }

// ChannelObserver forwards events to a channel, dropping events the
// receiver is too slow to take so builds never block on reporting.
type ChannelObserver chan Event

func (c ChannelObserver) OnProgress(e Event) {
	select {
	case c <- e:
	default:
	}
}

// nopObserver is used when the caller passes no observer.
type nopObserver struct{}

func (nopObserver) OnProgress(Event) {}
