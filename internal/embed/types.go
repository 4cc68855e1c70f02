// Package embed turns text into vectors via an OpenAI-compatible
// embeddings API.
package embed

import (
	"context"
	"math"
	"time"
)

// Default client parameters, overridable via config.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
)

// Client generates embeddings for text.
//
// EmbedBatch returns exactly one vector per input, in input order, or
// fails for the whole call; callers never receive misaligned results.
type Client interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases client resources.
	Close() error
}

// normalizeVector scales a vector to unit length in place, so cosine
// similarity reduces to a dot product at search time.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
