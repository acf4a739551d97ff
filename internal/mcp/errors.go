// Package mcp implements the Model Context Protocol server front-end:
// it exposes index and query as MCP tools so IDE/agent integrations can
// drive the same core packages the CLI does, over stdio JSON-RPC.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// JSON-RPC and semindex-specific MCP error codes.
const (
	ErrCodeInvalidParams     = -32602
	ErrCodeMethodNotFound    = -32601
	ErrCodeInternalError     = -32603
	ErrCodeRepositoryMissing = -32001
	ErrCodeProviderFailed    = -32002
	ErrCodeTimeout           = -32003
)

// MCPError represents an MCP protocol error with a numeric code and a
// human-readable message, matching the JSON-RPC error object shape.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an invalid-params error with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError builds a method-not-found error for an unknown tool name.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// MapError converts an internal error into an MCPError, preferring the
// structured *IndexError's category when present.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ie *ierrors.IndexError
	if errors.As(err, &ie) {
		return mapIndexError(ie)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out or was canceled"}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

func mapIndexError(ie *ierrors.IndexError) *MCPError {
	message := ie.Message
	if len(ie.Suggestions) > 0 {
		message = fmt.Sprintf("%s (%s)", message, ie.Suggestions[0])
	}

	switch {
	case ie.Code == ierrors.ErrCodeRepositoryNotFound:
		return &MCPError{Code: ErrCodeRepositoryMissing, Message: message}
	case ie.Category == ierrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	case ie.Category == ierrors.CategoryValidation, ie.Category == ierrors.CategoryConfig:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
