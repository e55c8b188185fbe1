package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/shared/schema"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions and event buffers in process memory. It is the
// default store for single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	maxSize  int
	logger   *zap.Logger
}

type memorySession struct {
	meta    Meta
	streams map[string]*streamState
}

type streamState struct {
	nextSeq uint64
	events  []bufferedEvent
}

type bufferedEvent struct {
	seq     uint64
	eventID string
	message []byte
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxEventBufferSize overrides the per-stream retention cap.
func WithMaxEventBufferSize(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(logger *zap.Logger, options ...MemoryStoreOption) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		sessions: make(map[string]*memorySession),
		maxSize:  DefaultMaxEventBufferSize,
		logger:   logger.Named("session-store"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *MemoryStore) GenerateSessionID() string {
	return uuid.NewString()
}

func (s *MemoryStore) Create(_ context.Context, id string, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return ErrSessionExists
	}
	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.LastActivity = now
	s.sessions[id] = &memorySession{
		meta:    meta,
		streams: make(map[string]*streamState),
	}
	s.logger.Debug("Session created",
		zap.String("sessionID", id),
		zap.String("protocolVersion", meta.ProtocolVersion),
	)
	return nil
}

func (s *MemoryStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	meta := sess.meta
	return &meta, nil
}

func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.meta.LastActivity = time.Now()
	return nil
}

func (s *MemoryStore) SetLogLevel(_ context.Context, id string, level schema.LoggingLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.meta.LogLevel = level
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, id string, streamID string, message []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		// Missing session is tolerated: the caller delivers directly.
		return "", nil
	}

	stream, ok := sess.streams[streamID]
	if !ok {
		stream = &streamState{nextSeq: 1}
		sess.streams[streamID] = stream
	}

	seq := stream.nextSeq
	stream.nextSeq++
	eventID := FormatEventID(seq, streamID)

	stream.events = append(stream.events, bufferedEvent{
		seq:     seq,
		eventID: eventID,
		message: message,
	})
	if overflow := len(stream.events) - s.maxSize; overflow > 0 {
		// FIFO trim; the slice stays ordered by seq.
		stream.events = append(stream.events[:0:0], stream.events[overflow:]...)
	}
	return eventID, nil
}

func (s *MemoryStore) Replay(_ context.Context, id string, lastEventID string, write ReplayFunc) error {
	lastSeq, streamID, err := ParseEventID(lastEventID)
	if err != nil {
		return err
	}

	// Copy the suffix under the lock, deliver outside it, so a slow SSE
	// write cannot block appends.
	s.mu.RLock()
	var pending []bufferedEvent
	if sess, ok := s.sessions[id]; ok {
		if stream, ok := sess.streams[streamID]; ok {
			for _, ev := range stream.events {
				if ev.seq > lastSeq {
					pending = append(pending, ev)
				}
			}
		}
	}
	s.mu.RUnlock()

	for _, ev := range pending {
		if err := write(ev.eventID, ev.message); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) CleanupIdle(_ context.Context, timeout time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.meta.LastActivity.Before(cutoff) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("Cleaned up idle sessions", zap.Int("count", len(expired)))
	}
	return expired, nil
}
