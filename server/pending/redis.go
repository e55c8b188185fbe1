package pending

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/shared"
)

var _ Adapter = (*RedisAdapter)(nil)

// RedisAdapter coordinates pending requests across instances: the instance
// holding the SSE stream parks a waiter that polls Redis, and whichever
// instance receives the client's response POST publishes the outcome there.
//
//	<prefix>pending:<session>:<request>          marker, exists while waiting
//	<prefix>pending:<session>:<request>:outcome  JSON outcome once terminal
type RedisAdapter struct {
	rdb          *redis.Client
	prefix       string
	pollInterval time.Duration
	logger       *zap.Logger
}

type redisOutcome struct {
	Result json.RawMessage      `json:"result,omitempty"`
	Err    *shared.JSONRPCError `json:"error,omitempty"`
}

// RedisAdapterOption configures a RedisAdapter.
type RedisAdapterOption func(*RedisAdapter)

// WithRedisPendingKeyPrefix overrides the default "mcp:" key prefix.
func WithRedisPendingKeyPrefix(prefix string) RedisAdapterOption {
	return func(a *RedisAdapter) { a.prefix = prefix }
}

// WithRedisPollInterval tunes how often waiters check for an outcome.
func WithRedisPollInterval(d time.Duration) RedisAdapterOption {
	return func(a *RedisAdapter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// NewRedisAdapter creates a Redis-backed pending-request adapter.
func NewRedisAdapter(rdb *redis.Client, logger *zap.Logger, options ...RedisAdapterOption) *RedisAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &RedisAdapter{
		rdb:          rdb,
		prefix:       "mcp:",
		pollInterval: 250 * time.Millisecond,
		logger:       logger.Named("pending-redis"),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *RedisAdapter) keyMarker(sessionID, requestID string) string {
	return a.prefix + "pending:" + pendingKey(sessionID, requestID)
}

func (a *RedisAdapter) keyOutcome(sessionID, requestID string) string {
	return a.keyMarker(sessionID, requestID) + ":outcome"
}

func (a *RedisAdapter) CreatePending(ctx context.Context, sessionID string, requestID string, timeout time.Duration) (<-chan Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	marker := a.keyMarker(sessionID, requestID)

	// Keys outlive the deadline slightly so a racing resolver sees the
	// marker while the waiter is shutting down.
	ttl := timeout + time.Minute
	ok, err := a.rdb.SetNX(ctx, marker, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPending
	}

	ch := make(chan Outcome, 1)
	go a.await(sessionID, requestID, timeout, ch)
	return ch, nil
}

func (a *RedisAdapter) await(sessionID, requestID string, timeout time.Duration, ch chan<- Outcome) {
	marker := a.keyMarker(sessionID, requestID)
	outcomeKey := a.keyOutcome(sessionID, requestID)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for range ticker.C {
		raw, err := a.rdb.Get(ctx, outcomeKey).Bytes()
		if err == nil {
			a.rdb.Del(ctx, marker, outcomeKey)
			var out redisOutcome
			if uerr := json.Unmarshal(raw, &out); uerr != nil {
				a.logger.Error("Corrupt pending outcome", zap.Error(uerr),
					zap.String("sessionID", sessionID), zap.String("requestID", requestID))
				ch <- Outcome{Err: shared.Errorf(shared.JSONRPCErrorInternal, "corrupt pending outcome")}
				return
			}
			ch <- Outcome{Result: out.Result, Err: out.Err}
			return
		}
		if err != redis.Nil {
			a.logger.Error("Pending outcome poll failed", zap.Error(err),
				zap.String("sessionID", sessionID), zap.String("requestID", requestID))
		}
		if time.Now().After(deadline) {
			a.rdb.Del(ctx, marker, outcomeKey)
			ch <- Outcome{Err: TimeoutError(timeout)}
			return
		}
	}
}

func (a *RedisAdapter) ResolvePending(ctx context.Context, sessionID string, requestID string, result json.RawMessage) bool {
	return a.publish(ctx, sessionID, requestID, redisOutcome{Result: result})
}

func (a *RedisAdapter) RejectPending(ctx context.Context, sessionID string, requestID string, rpcErr *shared.JSONRPCError) bool {
	if rpcErr == nil {
		rpcErr = shared.Errorf(shared.JSONRPCErrorInternal, "request rejected")
	}
	return a.publish(ctx, sessionID, requestID, redisOutcome{Err: rpcErr})
}

func (a *RedisAdapter) publish(ctx context.Context, sessionID, requestID string, out redisOutcome) bool {
	exists, err := a.rdb.Exists(ctx, a.keyMarker(sessionID, requestID)).Result()
	if err != nil || exists == 0 {
		return false
	}
	data, err := json.Marshal(&out)
	if err != nil {
		a.logger.Error("Failed to marshal pending outcome", zap.Error(err))
		return false
	}
	// First outcome wins; a second resolve for the same request is ignored.
	ok, err := a.rdb.SetNX(ctx, a.keyOutcome(sessionID, requestID), data, 2*time.Minute).Result()
	if err != nil {
		a.logger.Error("Failed to publish pending outcome", zap.Error(err))
		return false
	}
	return ok
}
