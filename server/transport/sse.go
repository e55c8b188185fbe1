package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

// ErrWriterClosed is returned by Write after the stream closed.
var ErrWriterClosed = errors.New("sse writer is closed")

// SSEWriter frames messages as Server-Sent Events on one HTTP response.
// Writes are serialized; Close is idempotent and unblocks Done.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	done    chan struct{}
	onClose []func()
}

// NewSSEWriter prepares SSE framing on the response. It sets the stream
// headers and flushes them immediately so the client sees the stream open.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

// NewSSEWriterDeferred is like NewSSEWriter but does not send the stream
// headers yet, so the caller can still answer with a plain HTTP error (for
// example 409 when a stream key is taken). Call Start before the first Write.
func NewSSEWriterDeferred(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEWriter{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

// Start sends the SSE headers for a writer created with NewSSEWriterDeferred.
func (s *SSEWriter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.w.Header().Set("Content-Type", contentTypeSSE)
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// Write frames one message event. A non-empty eventID is emitted as the SSE
// id: line so clients can resume with Last-Event-ID.
func (s *SSEWriter) Write(data []byte, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrWriterClosed
	}

	if _, err := fmt.Fprint(s.w, "event: message\n"); err != nil {
		return err
	}
	if eventID != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", eventID); err != nil {
			return err
		}
	}
	// Multi-line payloads need one data: line each per the SSE format.
	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive emits an SSE comment frame so intermediaries keep the
// connection open.
func (s *SSEWriter) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrWriterClosed
	}
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// OnClose registers a callback fired exactly once when the writer closes.
func (s *SSEWriter) OnClose(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Close marks the stream closed and fires the OnClose callbacks. It is safe
// to call multiple times.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	callbacks := s.onClose
	s.onClose = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Done is closed when the stream ends, from either side.
func (s *SSEWriter) Done() <-chan struct{} {
	return s.done
}
