package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/shared/schema"
)

var _ Store = (*RedisStore)(nil)

// RedisStore persists sessions and stream buffers in Redis so several server
// instances behind a load balancer can share them. Layout per session:
//
//	<prefix>session:<id>          JSON-encoded Meta, with TTL
//	<prefix>session:<id>:streams  set of stream ids seen for the session
//	<prefix>stream:<id>:<sid>:seq  INCR counter for the next sequence number
//	<prefix>stream:<id>:<sid>      list of JSON events, LTRIM'ed to the cap
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	maxSize int64
	ttl     time.Duration
	logger  *zap.Logger
}

type redisEvent struct {
	Seq     uint64          `json:"seq"`
	EventID string          `json:"eventId"`
	Message json.RawMessage `json:"message"`
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix overrides the default "mcp:" key prefix.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisMaxEventBufferSize overrides the per-stream retention cap.
func WithRedisMaxEventBufferSize(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxSize = int64(n)
		}
	}
}

// WithRedisSessionTTL sets the expiry applied to session keys (refreshed on
// Touch). Zero disables the TTL.
func WithRedisSessionTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(rdb *redis.Client, logger *zap.Logger, options ...RedisStoreOption) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisStore{
		rdb:     rdb,
		prefix:  "mcp:",
		maxSize: DefaultMaxEventBufferSize,
		ttl:     time.Hour,
		logger:  logger.Named("redis-session-store"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *RedisStore) keySession(id string) string { return s.prefix + "session:" + id }
func (s *RedisStore) keyStreams(id string) string { return s.prefix + "session:" + id + ":streams" }
func (s *RedisStore) keyStream(id, streamID string) string {
	return s.prefix + "stream:" + id + ":" + streamID
}
func (s *RedisStore) keySeq(id, streamID string) string {
	return s.prefix + "stream:" + id + ":" + streamID + ":seq"
}

func (s *RedisStore) GenerateSessionID() string {
	return uuid.NewString()
}

func (s *RedisStore) Create(ctx context.Context, id string, meta Meta) error {
	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.LastActivity = now
	data, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session meta: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.keySession(id), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisStore) Has(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.keySession(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Meta, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	meta := &Meta{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session meta: %w", err)
	}
	return meta, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) error {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	meta.LastActivity = time.Now()
	return s.putMeta(ctx, id, meta)
}

func (s *RedisStore) SetLogLevel(ctx context.Context, id string, level schema.LoggingLevel) error {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	meta.LogLevel = level
	return s.putMeta(ctx, id, meta)
}

func (s *RedisStore) putMeta(ctx context.Context, id string, meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session meta: %w", err)
	}
	return s.rdb.Set(ctx, s.keySession(id), data, s.ttl).Err()
}

func (s *RedisStore) AppendEvent(ctx context.Context, id string, streamID string, message []byte) (string, error) {
	exists, err := s.Has(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}

	seq, err := s.rdb.Incr(ctx, s.keySeq(id, streamID)).Result()
	if err != nil {
		return "", err
	}
	eventID := FormatEventID(uint64(seq), streamID)

	entry, err := json.Marshal(&redisEvent{
		Seq:     uint64(seq),
		EventID: eventID,
		Message: json.RawMessage(message),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.keyStream(id, streamID), entry)
	pipe.LTrim(ctx, s.keyStream(id, streamID), -s.maxSize, -1)
	pipe.SAdd(ctx, s.keyStreams(id), streamID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.keyStream(id, streamID), s.ttl)
		pipe.Expire(ctx, s.keySeq(id, streamID), s.ttl)
		pipe.Expire(ctx, s.keyStreams(id), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return eventID, nil
}

func (s *RedisStore) Replay(ctx context.Context, id string, lastEventID string, write ReplayFunc) error {
	lastSeq, streamID, err := ParseEventID(lastEventID)
	if err != nil {
		return err
	}

	entries, err := s.rdb.LRange(ctx, s.keyStream(id, streamID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	for _, raw := range entries {
		var ev redisEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			s.logger.Error("Skipping corrupt buffered event", zap.Error(err), zap.String("sessionID", id))
			continue
		}
		if ev.Seq <= lastSeq {
			continue
		}
		if err := write(ev.EventID, ev.Message); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	streams, err := s.rdb.SMembers(ctx, s.keyStreams(id)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	for _, streamID := range streams {
		pipe.Del(ctx, s.keyStream(id, streamID))
		pipe.Del(ctx, s.keySeq(id, streamID))
	}
	pipe.Del(ctx, s.keyStreams(id))
	pipe.Del(ctx, s.keySession(id))
	_, err = pipe.Exec(ctx)
	return err
}

// CleanupIdle scans live session keys and removes the ones whose LastActivity
// is older than the timeout. Redis key TTLs act as a backstop for sessions the
// scan never reaches.
func (s *RedisStore) CleanupIdle(ctx context.Context, timeout time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-timeout)
	var expired []string

	iter := s.rdb.Scan(ctx, 0, s.prefix+"session:*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// Skip the ":streams" companion keys.
		if len(key) > 8 && key[len(key)-8:] == ":streams" {
			continue
		}
		id := key[len(s.prefix+"session:"):]
		meta, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if meta.LastActivity.Before(cutoff) {
			if err := s.Delete(ctx, id); err == nil {
				expired = append(expired, id)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return expired, err
	}
	return expired, nil
}
