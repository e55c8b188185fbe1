package shared

import (
	"encoding/json"
	"fmt"

	"github.com/mcpwire/mcpwire/shared/schema"
)

const (
	JSONRPCVersion = "2.0"

	// Standard JSON-RPC 2.0 error codes
	JSONRPCErrorParseError     = -32700 // Invalid JSON was received
	JSONRPCErrorInvalidRequest = -32600 // The JSON sent is not a valid Request object
	JSONRPCErrorMethodNotFound = -32601 // The method does not exist / is not available
	JSONRPCErrorInvalidParams  = -32602 // Invalid method parameter(s)
	JSONRPCErrorInternal       = -32603 // Internal JSON-RPC error

	// -32000 to -32099 are reserved for implementation-defined server errors
	JSONRPCErrorServerError = -32000 // Generic server error, also used for protocol version rejection

	JSONRPCErrorTimeout = -32001 // Server-initiated request timed out
)

// JSONRPCErrorResponse represents the structure for sending JSON-RPC error responses.
type JSONRPCErrorResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id"`
	Error   *JSONRPCError     `json:"error"`
}

// JSONRPCResponse represents the structure for sending successful JSON-RPC responses.
type JSONRPCResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id"` // Must be present and same as request ID
	Result  *json.RawMessage  `json:"result"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error type code
	Message string      `json:"message"`        // Short error description
	Data    interface{} `json:"data,omitempty"` // Additional error information
}

// Error implements the Go error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewJSONRPCError wraps an arbitrary Go error into a JSONRPCError.
// An existing *JSONRPCError passes through unchanged.
func NewJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}
	if jsonErr, ok := err.(*JSONRPCError); ok {
		return jsonErr
	}
	return &JSONRPCError{
		Code:    JSONRPCErrorInternal,
		Message: err.Error(),
	}
}

// Errorf builds a JSONRPCError with the given code and formatted message.
func Errorf(code int, format string, args ...interface{}) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}
