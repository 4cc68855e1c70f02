// Package mcp exposes the indexer and searcher as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencontext/opencontext/internal/ocerrors"
)

// Custom MCP error codes. Clients branch on these: "no index yet" asks
// for a build and falls back to the document listing, while an
// embedding failure is worth retrying.
const (
	ErrCodeIndexNotAvailable = -32001
	ErrCodeEmbeddingFailed   = -32002
	ErrCodeTimeout           = -32003
	ErrCodeBuildInProgress   = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message, Kind: string(ocerrors.KindInvalidInput)}
}

// MapError converts internal errors to MCP protocol errors, carrying
// the machine-readable kind through.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	kind := ocerrors.KindOf(err)

	switch {
	case kind == ocerrors.KindIndexNotAvailable:
		return &MCPError{
			Code:    ErrCodeIndexNotAvailable,
			Message: "No index exists yet. Run oc_index_build, or use oc_list_documents as a fallback.",
			Kind:    string(kind),
		}
	case kind == ocerrors.KindEmbeddingFailure:
		return &MCPError{
			Code:    ErrCodeEmbeddingFailed,
			Message: "Embedding API failed after retries; the previous index is still in place.",
			Kind:    string(kind),
		}
	case kind == ocerrors.KindConcurrentBuildRejected:
		return &MCPError{
			Code:    ErrCodeBuildInProgress,
			Message: "An index build is already in progress.",
			Kind:    string(kind),
		}
	case kind == ocerrors.KindInvalidInput:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: err.Error(),
			Kind:    string(kind),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
			Kind:    string(kind),
		}
	}
}
