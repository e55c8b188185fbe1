// Package pending bridges server-initiated JSON-RPC requests (elicitation,
// sampling) to the client responses that arrive later on a separate HTTP POST.
// A handler parks on the outcome channel; the transport resolves or rejects
// the entry when the matching response comes back.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mcpwire/mcpwire/shared"
)

// DefaultTimeout bounds how long a pending request waits for the client.
const DefaultTimeout = 30 * time.Second

// ErrAlreadyPending is returned by CreatePending when the session/request key
// is already occupied.
var ErrAlreadyPending = errors.New("request is already pending")

// Outcome is the terminal state of a pending request: exactly one of Result
// and Err is set.
type Outcome struct {
	Result json.RawMessage
	Err    *shared.JSONRPCError
}

// Adapter tracks in-flight server-to-client requests. Implementations must be
// safe for concurrent use. Each entry reaches exactly one terminal state
// (resolved, rejected, or timed out); later transitions are ignored.
type Adapter interface {
	// CreatePending registers a request and returns a channel that yields its
	// single Outcome. A non-positive timeout falls back to DefaultTimeout.
	CreatePending(ctx context.Context, sessionID string, requestID string, timeout time.Duration) (<-chan Outcome, error)

	// ResolvePending completes a pending request with a result. It reports
	// whether an entry was actually resolved.
	ResolvePending(ctx context.Context, sessionID string, requestID string, result json.RawMessage) bool

	// RejectPending completes a pending request with an error. It reports
	// whether an entry was actually rejected.
	RejectPending(ctx context.Context, sessionID string, requestID string, rpcErr *shared.JSONRPCError) bool
}

func pendingKey(sessionID, requestID string) string {
	return sessionID + ":" + requestID
}

// TimeoutError builds the JSON-RPC error delivered when a pending request
// expires before the client answers.
func TimeoutError(timeout time.Duration) *shared.JSONRPCError {
	return shared.Errorf(shared.JSONRPCErrorTimeout, "request timed out after %s", timeout)
}
