package transport

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrWriterExists is returned when a stream key is already occupied; the
// HTTP layer maps it to 409 Conflict.
var ErrWriterExists = errors.New("a stream already exists for this key")

// Writer registry key namespaces. At most one writer may hold a key.
func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func sessionRequestKey(sessionID, requestID string) string {
	return "session:" + sessionID + ":request:" + requestID
}

func requestKey(requestID string) string {
	return "request:" + requestID
}

// writerRegistry tracks every open SSE stream by key: the per-session
// streams opened by GET and the ephemeral per-request streams opened by POST.
type writerRegistry struct {
	mu      sync.RWMutex
	writers map[string]*SSEWriter
	logger  *zap.Logger
}

func newWriterRegistry(logger *zap.Logger) *writerRegistry {
	return &writerRegistry{
		writers: make(map[string]*SSEWriter),
		logger:  logger.Named("writers"),
	}
}

// Add claims a key for the writer. A second writer for the same key is
// rejected so duplicate streams surface as 409 at the HTTP layer.
func (reg *writerRegistry) Add(key string, w *SSEWriter) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.writers[key]; exists {
		return ErrWriterExists
	}
	reg.writers[key] = w
	reg.logger.Debug("Stream registered", zap.String("key", key))
	return nil
}

// Remove releases the key, but only if it is still held by this writer.
func (reg *writerRegistry) Remove(key string, w *SSEWriter) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if current, ok := reg.writers[key]; ok && current == w {
		delete(reg.writers, key)
		reg.logger.Debug("Stream removed", zap.String("key", key))
	}
}

// Get returns the writer holding the key, or nil.
func (reg *writerRegistry) Get(key string) *SSEWriter {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.writers[key]
}

// SessionWriters snapshots all per-session stream writers, for broadcasts.
func (reg *writerRegistry) SessionWriters() []*SSEWriter {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var out []*SSEWriter
	for key, w := range reg.writers {
		if strings.HasPrefix(key, "session:") && !strings.Contains(key, ":request:") {
			out = append(out, w)
		}
	}
	return out
}

// CloseSession closes the session's stream and every per-request stream
// opened under it.
func (reg *writerRegistry) CloseSession(sessionID string) {
	prefix := sessionKey(sessionID)
	reg.mu.Lock()
	var toClose []*SSEWriter
	for key, w := range reg.writers {
		if key == prefix || strings.HasPrefix(key, prefix+":request:") {
			toClose = append(toClose, w)
			delete(reg.writers, key)
		}
	}
	reg.mu.Unlock()

	for _, w := range toClose {
		w.Close()
	}
	if len(toClose) > 0 {
		reg.logger.Debug("Closed session streams",
			zap.String("sessionID", sessionID),
			zap.Int("count", len(toClose)),
		)
	}
}

// CloseAll closes every open stream, for shutdown.
func (reg *writerRegistry) CloseAll() {
	reg.mu.Lock()
	toClose := make([]*SSEWriter, 0, len(reg.writers))
	for key, w := range reg.writers {
		toClose = append(toClose, w)
		delete(reg.writers, key)
	}
	reg.mu.Unlock()

	for _, w := range toClose {
		w.Close()
	}
}
