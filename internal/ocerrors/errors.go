// Package ocerrors provides structured error handling for OpenContext.
//
// Every error carries a Kind that automated callers (CLI, MCP tools) can
// branch on: "build the index first" is a different failure than "the
// embedding API is down", and both are different from "no matches".
package ocerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind string

const (
	// KindIndexNotAvailable means no committed index generation exists.
	// Recoverable by running a build.
	KindIndexNotAvailable Kind = "index_not_available"

	// KindEmbeddingFailure means the embedding API failed after retries.
	KindEmbeddingFailure Kind = "embedding_failure"

	// KindDocumentVanished means a document disappeared from the content
	// store between chunking and commit. Its chunks are dropped; this is
	// not a build failure.
	KindDocumentVanished Kind = "document_vanished"

	// KindConcurrentBuildRejected means a build was requested while one
	// is already running.
	KindConcurrentBuildRejected Kind = "concurrent_build_rejected"

	// KindInvalidInput means the caller supplied bad parameters.
	KindInvalidInput Kind = "invalid_input"

	// KindIO means a filesystem or persistence failure.
	KindIO Kind = "io_error"

	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "internal"
)

// Error is the structured error type for OpenContext.
type Error struct {
	// Kind is the machine-readable classification.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the same call may succeed later
	// without operator intervention.
	Retryable bool

	// Detail carries extra context as key-value pairs (e.g. the index
	// of the first failing item in an embedding batch).
	Detail map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind, enabling errors.Is with sentinel values.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error and returns it.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindEmbeddingFailure,
	}
}

// Wrap creates an Error wrapping a cause. Returns nil if cause is nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kind == KindEmbeddingFailure,
	}
}

// KindOf extracts the Kind from an error chain.
// Returns KindInternal for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
