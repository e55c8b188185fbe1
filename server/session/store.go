// Package session owns per-session state for the streaming HTTP transport:
// negotiated protocol metadata and the ordered, resumable event buffers that
// back the per-session SSE stream. Stores are pluggable; the in-memory store
// serves a single process while the Redis store coordinates multiple
// instances behind a load balancer.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mcpwire/mcpwire/shared/schema"
)

// DefaultMaxEventBufferSize caps the number of retained events per stream.
const DefaultMaxEventBufferSize = 1024

// ErrSessionExists is returned by Create when the id is already taken.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionNotFound is returned by Get for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Meta holds the immutable handshake outcome plus the mutable logging level.
type Meta struct {
	ProtocolVersion    string                    `json:"protocolVersion"`
	ClientInfo         schema.Implementation     `json:"clientInfo"`
	ClientCapabilities schema.ClientCapabilities `json:"clientCapabilities"`
	LogLevel           schema.LoggingLevel       `json:"logLevel,omitempty"`
	CreatedAt          time.Time                 `json:"createdAt"`
	LastActivity       time.Time                 `json:"lastActivity"`
}

// ReplayFunc receives one buffered event during Replay, in append order.
type ReplayFunc func(eventID string, message []byte) error

// Store is the pluggable session/event persistence contract. All methods are
// safe for concurrent use.
type Store interface {
	// GenerateSessionID allocates a new opaque, unforgeable session id.
	GenerateSessionID() string

	// Create registers a session. The protocol version and capabilities in
	// meta are immutable afterwards.
	Create(ctx context.Context, id string, meta Meta) error

	// Has reports session existence without fetching metadata.
	Has(ctx context.Context, id string) (bool, error)

	// Get fetches session metadata; ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Meta, error)

	// Touch refreshes the session's last-activity timestamp.
	Touch(ctx context.Context, id string) error

	// SetLogLevel stores the logging/setLevel threshold for the session.
	SetLogLevel(ctx context.Context, id string, level schema.LoggingLevel) error

	// AppendEvent persists a message on the given stream and returns its
	// event id. A missing session is not an error: it returns ("", nil) so
	// the caller can fall through to direct delivery.
	AppendEvent(ctx context.Context, id string, streamID string, message []byte) (string, error)

	// Replay walks the retained buffer of the stream named in lastEventID
	// and invokes write for every event with a later sequence number, in
	// order. An unknown stream id is a silent no-op.
	Replay(ctx context.Context, id string, lastEventID string, write ReplayFunc) error

	// Delete removes the session and all its stream buffers.
	Delete(ctx context.Context, id string) error

	// CleanupIdle deletes sessions whose last activity is older than the
	// timeout and returns their ids so the transport can close writers.
	CleanupIdle(ctx context.Context, timeout time.Duration) ([]string, error)
}
