package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/opencontext/opencontext/internal/ocerrors"
)

// Config configures the OpenAI-compatible embeddings client. All values
// come from the config layer; nothing is hardcoded here.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimensions        int
	BatchSize         int
	Concurrency       int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// HTTPClient talks to an OpenAI-compatible /embeddings endpoint with
// batching, bounded concurrency, rate limiting and retries.
type HTTPClient struct {
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	config    Config
	logger    *slog.Logger

	mu   sync.Mutex
	dims int // detected from the first response when config leaves it 0
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an embeddings client.
func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, ocerrors.New(ocerrors.KindInvalidInput, "embeddings base URL is required")
	}
	if cfg.Model == "" {
		return nil, ocerrors.New(ocerrors.KindInvalidInput, "embeddings model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Concurrency,
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     10 * time.Second,
	}

	// No http.Client.Timeout: per-request contexts carry the deadline.
	return &HTTPClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		limiter:   limiter,
		config:    cfg,
		logger:    logger,
		dims:      cfg.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input order.
// Batches run concurrently up to the configured limit; one batch
// exhausting its retries fails the whole call.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for start := 0; start < len(texts); start += c.config.BatchSize {
		start := start
		end := start + c.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vectors, err := c.embedWithRetry(ctx, texts[start:end])
			if err != nil {
				var e *ocerrors.Error
				if errors.As(err, &e) {
					// Report batch-local index as an input index.
					if local, ok := e.Detail["first_failed_index"]; ok {
						if n, perr := strconv.Atoi(local); perr == nil {
							e.WithDetail("first_failed_index", strconv.Itoa(start+n))
						}
					} else {
						e.WithDetail("first_failed_index", strconv.Itoa(start))
					}
				}
				return err
			}
			// Each goroutine owns a disjoint slice range, no lock needed.
			copy(results[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedWithRetry calls the API with exponential backoff on transient
// failures (timeouts, 429, 5xx).
func (c *HTTPClient) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			c.logger.Debug("retrying embedding batch",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			break
		}
	}
	return nil, ocerrors.Wrap(ocerrors.KindEmbeddingFailure,
		fmt.Sprintf("embedding batch of %d failed after %d retries", len(texts), c.config.MaxRetries),
		lastErr)
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// statusError carries the HTTP status for retry classification.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embeddings API returned %d: %s", e.status, e.message)
}

// embedOnce performs one API round trip for a single batch.
func (c *HTTPClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode, message: strings.TrimSpace(string(msg))}
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embeddings API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ocerrors.New(ocerrors.KindEmbeddingFailure,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data))).
			WithDetail("first_failed_index", strconv.Itoa(len(parsed.Data)))
	}

	// The API echoes an index per item; place by index so out-of-order
	// responses still align with input order.
	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings API returned out-of-range index %d", item.Index)
		}
		normalizeVector(item.Embedding)
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, ocerrors.New(ocerrors.KindEmbeddingFailure,
				fmt.Sprintf("missing embedding for input %d", i)).
				WithDetail("first_failed_index", strconv.Itoa(i))
		}
	}

	c.mu.Lock()
	if c.dims == 0 && len(vectors[0]) > 0 {
		c.dims = len(vectors[0])
	}
	c.mu.Unlock()

	return vectors, nil
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Dimensions returns the embedding dimensionality (0 until the first
// successful call when not configured).
func (c *HTTPClient) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

// ModelName returns the configured model identifier.
func (c *HTTPClient) ModelName() string {
	return c.config.Model
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
