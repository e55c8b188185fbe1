package pending

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/shared"
)

var _ Adapter = (*MemoryAdapter)(nil)

// MemoryAdapter tracks pending requests in process memory. It only works when
// the response POST lands on the same instance that issued the request.
type MemoryAdapter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	logger  *zap.Logger
}

type memoryEntry struct {
	outcome chan Outcome
	timer   *time.Timer
}

// NewMemoryAdapter creates an in-memory pending-request adapter.
func NewMemoryAdapter(logger *zap.Logger) *MemoryAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryAdapter{
		entries: make(map[string]*memoryEntry),
		logger:  logger.Named("pending"),
	}
}

func (a *MemoryAdapter) CreatePending(_ context.Context, sessionID string, requestID string, timeout time.Duration) (<-chan Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	key := pendingKey(sessionID, requestID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.entries[key]; exists {
		return nil, ErrAlreadyPending
	}

	entry := &memoryEntry{
		// Buffered so a resolve never blocks even if the waiter is gone.
		outcome: make(chan Outcome, 1),
	}
	entry.timer = time.AfterFunc(timeout, func() {
		if a.complete(key, Outcome{Err: TimeoutError(timeout)}) {
			a.logger.Debug("Pending request timed out",
				zap.String("sessionID", sessionID),
				zap.String("requestID", requestID),
			)
		}
	})
	a.entries[key] = entry
	return entry.outcome, nil
}

func (a *MemoryAdapter) ResolvePending(_ context.Context, sessionID string, requestID string, result json.RawMessage) bool {
	return a.complete(pendingKey(sessionID, requestID), Outcome{Result: result})
}

func (a *MemoryAdapter) RejectPending(_ context.Context, sessionID string, requestID string, rpcErr *shared.JSONRPCError) bool {
	if rpcErr == nil {
		rpcErr = shared.Errorf(shared.JSONRPCErrorInternal, "request rejected")
	}
	return a.complete(pendingKey(sessionID, requestID), Outcome{Err: rpcErr})
}

// complete removes the entry and delivers its single outcome. It reports false
// when the entry already reached a terminal state.
func (a *MemoryAdapter) complete(key string, outcome Outcome) bool {
	a.mu.Lock()
	entry, ok := a.entries[key]
	if ok {
		delete(a.entries, key)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	entry.timer.Stop()
	entry.outcome <- outcome
	return true
}
