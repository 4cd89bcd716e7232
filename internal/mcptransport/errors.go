// Package mcptransport exposes the Switch Coordinator over the Model
// Context Protocol: one tool per operation in the external-interfaces
// surface table, each a thin wrapper that validates input, calls into
// switchcoordinator.Coordinator, and maps the result onto the MCP wire
// format.
package mcptransport

import (
	"errors"
	"fmt"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
)

// Custom MCP error codes for chunkcore, following the JSON-RPC reserved
// range convention the underlying protocol uses for server-defined errors.
const (
	ErrCodeInputError       = -32001
	ErrCodeNotFoundError    = -32002
	ErrCodeStateError       = -32003
	ErrCodeFingerprintError = -32004
	ErrCodeRegistryError    = -32005
	ErrCodeIOError          = -32006

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a JSON-RPC-shaped error returned to MCP clients.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an error for a malformed tool call.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// mapError converts a coreerrors.CoreError (or any other error) into an MCPError.
func mapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var coreErr *coreerrors.CoreError
	if errors.As(err, &coreErr) {
		return &MCPError{Code: categoryCode(coreErr.Category), Message: coreErr.Message}
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}

func categoryCode(cat coreerrors.Category) int {
	switch cat {
	case coreerrors.CategoryInput:
		return ErrCodeInputError
	case coreerrors.CategoryNotFound:
		return ErrCodeNotFoundError
	case coreerrors.CategoryState:
		return ErrCodeStateError
	case coreerrors.CategoryFingerprint:
		return ErrCodeFingerprintError
	case coreerrors.CategoryRegistry:
		return ErrCodeRegistryError
	case coreerrors.CategoryIO:
		return ErrCodeIOError
	default:
		return ErrCodeInternalError
	}
}
